//go:build !integration

package usecase_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"tcross-assistant/internal/domain"
	"tcross-assistant/internal/domain/model"
	"tcross-assistant/internal/usecase"
)

func sampleSession() *model.ChatSession {
	s := model.NewChatSession("s-1", "gpt-4o-mini")
	s.AddMessage(model.NewMessage(model.RoleUser, "Qual o consumo na cidade?", ""))
	s.AddMessage(model.NewMessage(model.RoleAssistant, "Cerca de **11 km/l**.", "gpt-4o-mini"))
	return s
}

func TestExportJSON_Document(t *testing.T) {
	uc := usecase.NewExportUseCase()
	data, err := uc.ExportJSON(sampleSession())
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "title", "model", "created_at", "messages", "export"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("document missing %q", key)
		}
	}
	msgs := raw["messages"].([]any)
	first := msgs[0].(map[string]any)
	if _, ok := first["model_used"]; ok {
		t.Error("user message should omit model_used")
	}
	if second := msgs[1].(map[string]any); second["model_used"] != "gpt-4o-mini" {
		t.Errorf("assistant model_used = %v", second["model_used"])
	}

	if _, err := uc.ExportJSON(nil); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Errorf("nil session err = %v", err)
	}
}

func TestImportJSON_RestoresSession(t *testing.T) {
	uc := usecase.NewExportUseCase()
	orig := sampleSession()
	data, _ := uc.ExportJSON(orig)

	got, err := uc.ImportJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != orig.ID || got.Title != orig.Title || got.Model != orig.Model || len(got.Messages) != 2 {
		t.Fatalf("imported = %+v", got)
	}
	if got.Messages[1].Role != model.RoleAssistant || got.Messages[1].ID != orig.Messages[1].ID {
		t.Errorf("message = %+v", got.Messages[1])
	}
}

func TestImportJSON_Rejects(t *testing.T) {
	uc := usecase.NewExportUseCase()
	for name, body := range map[string]string{
		"not json": "{",
		"no model": `{"id":"x","messages":[]}`,
		"bad role": `{"id":"x","model":"m","messages":[{"role":"admin","content":"oi"}]}`,
	} {
		if _, err := uc.ImportJSON([]byte(body)); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestExportMarkdown(t *testing.T) {
	md := usecase.NewExportUseCase().ExportMarkdown(sampleSession())
	for _, want := range []string{"# Qual o consumo na cidade?", "`gpt-4o-mini`", "### Você", "### T-Cross Assistant", "**11 km/l**"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}
