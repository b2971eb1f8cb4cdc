package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tcross-assistant/internal/domain"
	"tcross-assistant/internal/domain/model"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

func (b *Bot) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":    b.handleStartCommand,
		"help":     b.handleHelpCommand,
		"nova":     b.handleNewCommand,
		"limpar":   b.handleClearCommand,
		"veiculo":  b.handleVehicleCommand,
		"stats":    b.handleStatsCommand,
		"modelos":  b.handleModelsCommand,
		"exportar": b.handleExportCommand,
	}
}

func (b *Bot) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	chat, err := b.hub.Get(identityFor(message.Chat.ID))
	if err != nil {
		return b.replyError(ctx, message.Chat.ID, err)
	}
	return b.reply(message.Chat.ID, b.text.T("bot.welcome", chat.Vehicle().Label()))
}

func (b *Bot) handleHelpCommand(_ context.Context, message *tgbotapi.Message) error {
	return b.reply(message.Chat.ID, b.text.T("bot.help"))
}

// handleNewCommand handles "/nova [model]".
func (b *Bot) handleNewCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	chat, err := b.hub.Get(identityFor(chatID))
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	name := strings.TrimSpace(message.CommandArguments())
	sess, err := chat.StartNewSession(name)
	if errors.Is(err, domain.ErrNotFound) {
		return b.reply(chatID, b.text.T("bot.unknown_model", name))
	}
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.reply(chatID, b.text.T("bot.new_session", sess.Model))
}

func (b *Bot) handleClearCommand(ctx context.Context, message *tgbotapi.Message) error {
	chat, err := b.hub.Get(identityFor(message.Chat.ID))
	if err != nil {
		return b.replyError(ctx, message.Chat.ID, err)
	}
	chat.ClearSession()
	return b.reply(message.Chat.ID, b.text.T("bot.cleared"))
}

// handleVehicleCommand handles "/veiculo <year> <version>".
func (b *Bot) handleVehicleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	v, ok := model.ParseVehicle(message.CommandArguments())
	if !ok {
		years, versions := b.hub.Vehicles()
		return b.reply(chatID, b.text.T("bot.vehicle_usage", strings.Join(years, ", "), strings.Join(versions, ", ")))
	}
	chat, err := b.hub.Get(identityFor(chatID))
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	if err := chat.SelectVehicle(v); err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.reply(chatID, b.text.T("bot.vehicle_set", v.Label()))
}

func (b *Bot) handleStatsCommand(ctx context.Context, message *tgbotapi.Message) error {
	chat, err := b.hub.Get(identityFor(message.Chat.ID))
	if err != nil {
		return b.replyError(ctx, message.Chat.ID, err)
	}
	if chat.CurrentSession() == nil {
		return b.reply(message.Chat.ID, b.text.T("chat.no_session"))
	}
	st := chat.Stats()
	return b.reply(message.Chat.ID, b.text.T("bot.stats", st.UserMessages, st.AssistantMessages, st.TotalCharacters))
}

func (b *Bot) handleModelsCommand(ctx context.Context, message *tgbotapi.Message) error {
	current := ""
	if chat, err := b.hub.Get(identityFor(message.Chat.ID)); err == nil {
		if s := chat.CurrentSession(); s != nil {
			current = s.Model
		}
	}
	var sb strings.Builder
	sb.WriteString(b.text.T("bot.models_header"))
	for _, m := range b.hub.Models().List(ctx) {
		mark := ""
		if strings.EqualFold(m.Name, current) {
			mark = " *"
		}
		fmt.Fprintf(&sb, "\n• %s (%s)%s", m.Name, m.Provider, mark)
	}
	return b.reply(message.Chat.ID, sb.String())
}

// handleExportCommand sends the conversation as a Markdown document.
func (b *Bot) handleExportCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	chat, err := b.hub.Get(identityFor(chatID))
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	sess := chat.CurrentSession()
	if sess == nil {
		return b.reply(chatID, b.text.T("chat.no_session"))
	}
	if len(sess.Messages) == 0 {
		return b.reply(chatID, b.text.T("bot.nothing_to_export"))
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  "conversa-" + sess.ID + ".md",
		Bytes: []byte(b.export.ExportMarkdown(sess)),
	})
	if _, err := b.send.Send(doc); err != nil {
		return fmt.Errorf("send export to %d: %w", chatID, err)
	}
	return nil
}
