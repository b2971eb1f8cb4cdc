package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tcross-assistant/internal/config"
	"tcross-assistant/internal/infra/logging"
	"tcross-assistant/internal/infra/metrics"
	"tcross-assistant/internal/infra/worker"
	"tcross-assistant/internal/safety"
	"tcross-assistant/internal/usecase"
)

// maxMessageRunes is Telegram's limit for one text message.
const maxMessageRunes = 4096

// Sender is the part of the Bot API the bot writes to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot serves the chat pipeline over Telegram long polling. Each chat is one
// identity ("tg:<chat id>") in the session hub.
type Bot struct {
	api    *tgbotapi.BotAPI
	send   Sender
	hub    *usecase.SessionHub
	export usecase.ExportUseCase
	text   safety.Localizer
	pool   *worker.Pool
	log    *zerolog.Logger

	mu   sync.Mutex
	busy map[int64]struct{}
}

func NewBot(cfg config.BotConfig, hub *usecase.SessionHub, export usecase.ExportUseCase, text safety.Localizer, logger *zerolog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	b := newBot(api, hub, export, text, worker.NewPool(cfg.Workers, cfg.Queue, logger), logger)
	b.api = api
	return b, nil
}

func newBot(send Sender, hub *usecase.SessionHub, export usecase.ExportUseCase, text safety.Localizer, pool *worker.Pool, logger *zerolog.Logger) *Bot {
	return &Bot{
		send:   send,
		hub:    hub,
		export: export,
		text:   text,
		pool:   pool,
		log:    logger,
		busy:   make(map[int64]struct{}),
	}
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return errors.New("telegram bot is not connected")
	}
	b.pool.Start(ctx)
	defer b.pool.Stop()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Str("bot", b.api.Self.UserName).Msg("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info().Msg("telegram polling stopped")
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			b.Dispatch(up)
		}
	}
}

// Dispatch queues an update on the worker pool. A saturated pool gets an
// immediate busy answer instead of queueing without bound.
func (b *Bot) Dispatch(up tgbotapi.Update) {
	msg := up.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	err := b.pool.Submit(func(ctx context.Context) error {
		return b.handleMessage(ctx, msg)
	})
	switch {
	case errors.Is(err, worker.ErrQueueFull):
		metrics.IncTelegramBusy()
		_ = b.reply(msg.Chat.ID, b.text.T("bot.busy"))
	case err != nil:
		b.log.Warn().Err(err).Int64("chat_id", msg.Chat.ID).Msg("update dropped")
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	ctx = logging.WithIdentity(ctx, identityFor(chatID))

	if msg.IsCommand() {
		metrics.IncTelegramCommand("/" + msg.Command())
		h, ok := b.commandRoutes()[strings.ToLower(msg.Command())]
		if !ok {
			return b.reply(chatID, b.text.T("bot.unknown_command"))
		}
		return h(ctx, msg)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	metrics.IncTelegramCommand("text")
	return b.handleQuestion(ctx, chatID, text)
}

// handleQuestion runs one turn. A chat waiting on a reply is told to wait
// rather than queueing a second turn behind the first.
func (b *Bot) handleQuestion(ctx context.Context, chatID int64, text string) error {
	if !b.acquire(chatID) {
		metrics.IncTelegramBusy()
		return b.reply(chatID, b.text.T("bot.busy"))
	}
	defer b.release(chatID)

	identity := identityFor(chatID)
	chat, err := b.hub.Get(identity)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	b.typing(chatID)

	_, reply, status, err := chat.Ask(ctx, text, identity)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	if status != b.text.T("chat.sent") {
		_ = b.reply(chatID, status)
	}
	return b.reply(chatID, reply.Content)
}

func (b *Bot) acquire(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.busy[chatID]; ok {
		return false
	}
	b.busy[chatID] = struct{}{}
	return true
}

func (b *Bot) release(chatID int64) {
	b.mu.Lock()
	delete(b.busy, chatID)
	b.mu.Unlock()
}

func (b *Bot) typing(chatID int64) {
	if _, err := b.send.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.log.Debug().Err(err).Msg("chat action failed")
	}
}

// reply sends text, split into Telegram-sized parts.
func (b *Bot) reply(chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageRunes) {
		if _, err := b.send.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("send to %d: %w", chatID, err)
		}
	}
	return nil
}

// replyError tells the user what went wrong in their language.
func (b *Bot) replyError(ctx context.Context, chatID int64, err error) error {
	text, known := usecase.Explain(err, b.text)
	if !known {
		logging.With(ctx, b.log).Error().Err(err).Msg("telegram turn failed")
	}
	return b.reply(chatID, text)
}

func identityFor(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}

// splitMessage cuts s into parts of at most max runes, preferring to break
// after a newline.
func splitMessage(s string, max int) []string {
	if utf8.RuneCountInString(s) <= max {
		return []string{s}
	}
	var parts []string
	runes := []rune(s)
	for len(runes) > max {
		cut := max
		for i := max - 1; i > max/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
