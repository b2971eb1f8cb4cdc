package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"tcross-assistant/internal/domain/ports/adapter"
	"tcross-assistant/internal/safety"
)

var _ adapter.AIServiceAdapter = (*OfflineAdapter)(nil)

const OfflineModel = "tcross-offline"

type cannedAnswer struct {
	keyword string
	text    string
}

// checked in order; the first keyword found in the question wins
var cannedAnswers = []cannedAnswer{
	{"consumo", "O VW T-Cross tem consumo médio de 14,5 km/l na cidade e 16,2 km/l na estrada com motor 1.0 TSI. " +
		"Com motor 1.4 TSI, o consumo é de 13,8 km/l cidade e 15,1 km/l estrada."},
	{"preço", "O preço do VW T-Cross varia de R$ 85.000 a R$ 130.000, dependendo da versão (Sense, Comfortline, Highline). " +
		"Consulte uma concessionária para valores atualizados."},
	{"ficha técnica", "VW T-Cross principais especificações:\n" +
		"- Motores: 1.0 TSI (128cv) ou 1.4 TSI (150cv)\n" +
		"- Transmissão: Manual 6 marchas ou automática 6 marchas\n" +
		"- Comprimento: 4,19m\n" +
		"- Porta-malas: 420 litros"},
	{"versões", "O VW T-Cross tem 3 versões principais:\n" +
		"• Sense: versão de entrada\n" +
		"• Comfortline: versão intermediária\n" +
		"• Highline: versão top de linha\n" +
		"Cada uma com diferentes níveis de equipamentos."},
	{"manutenção", "A manutenção do VW T-Cross deve ser feita a cada 10.000 km ou 12 meses. " +
		"O custo médio das revisões varia entre R$ 400 a R$ 800, dependendo do tipo de serviço necessário."},
}

var genericAnswers = []string{
	"Como %s, posso ajudar com informações sobre o VW T-Cross. Você gostaria de saber sobre consumo, preço, versões ou manutenção?",
	"Baseado no %s, posso fornecer detalhes técnicos e práticos sobre o VW T-Cross. O que especificamente você gostaria de saber?",
	"Usando %s, posso esclarecer suas dúvidas sobre o VW T-Cross. Pergunte sobre características, desempenho ou qualquer aspecto do veículo.",
}

// OfflineAdapter answers from a fixed table of T-Cross facts so the whole
// pipeline can run without provider keys. Answers are deterministic.
type OfflineAdapter struct{}

func NewOfflineAdapter() *OfflineAdapter { return &OfflineAdapter{} }

func (o *OfflineAdapter) Name() string { return "offline" }

func (o *OfflineAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{OfflineModel}, nil
}

func (o *OfflineAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{
		Name:        OfflineModel,
		Description: "Respostas locais de demonstração",
		MaxTokens:   1024,
		Supports:    []string{"text"},
	}, nil
}

func (o *OfflineAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content)
	}
	return total, nil
}

func (o *OfflineAdapter) Chat(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, error) {
	reply, _, err := o.ChatWithUsage(ctx, model, messages, params)
	return reply, err
}

func (o *OfflineAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, adapter.Usage, error) {
	if err := ctx.Err(); err != nil {
		return "", adapter.Usage{}, err
	}
	model = modelOrDefault(model, OfflineModel)
	question := lastUserQuestion(messages)
	reply := answerFor(question, model)

	in, _ := o.CountTokens(ctx, model, messages)
	out := estimateTokens(reply)
	return reply, adapter.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}, nil
}

func answerFor(question, model string) string {
	lowered := strings.ToLower(question)
	for _, a := range cannedAnswers {
		if strings.Contains(lowered, a.keyword) {
			return fmt.Sprintf("[%s] %s", model, a.text)
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(lowered))
	return fmt.Sprintf(genericAnswers[int(h.Sum32()%uint32(len(genericAnswers)))], model)
}

// lastUserQuestion returns the text of the last user turn without the
// delimiter lines the prompt protector wraps around it.
func lastUserQuestion(messages []adapter.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if !strings.EqualFold(messages[i].Role, "user") {
			continue
		}
		text := messages[i].Content
		text = strings.Replace(text, safety.UserMessageStart, "", 1)
		if j := strings.LastIndex(text, safety.UserMessageEnd); j >= 0 {
			text = text[:j]
		}
		return strings.TrimSpace(text)
	}
	return ""
}
