package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tcross-assistant/internal/domain"
	"tcross-assistant/internal/domain/model"
)

const exportFormatVersion = "1.0"

// SessionDocument is the portable form of a conversation.
type SessionDocument struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Model     string             `json:"model"`
	CreatedAt time.Time          `json:"created_at"`
	Messages  []MessageDocument  `json:"messages"`
	Stats     model.SessionStats `json:"stats"`
	Export    ExportMetadata     `json:"export"`
}

type MessageDocument struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ModelUsed string    `json:"model_used,omitempty"`
}

type ExportMetadata struct {
	App        string    `json:"app"`
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
}

// ExportUseCase converts sessions to and from exchange formats.
type ExportUseCase interface {
	ExportJSON(s *model.ChatSession) ([]byte, error)
	ExportMarkdown(s *model.ChatSession) string
	ImportJSON(data []byte) (*model.ChatSession, error)
}

var _ ExportUseCase = (*exportUC)(nil)

type exportUC struct {
	now func() time.Time
}

func NewExportUseCase() ExportUseCase {
	return &exportUC{now: time.Now}
}

func (e *exportUC) ExportJSON(s *model.ChatSession) ([]byte, error) {
	if s == nil {
		return nil, domain.ErrNoActiveSession
	}
	doc := SessionDocument{
		ID:        s.ID,
		Title:     s.Title,
		Model:     s.Model,
		CreatedAt: s.CreatedAt,
		Messages:  make([]MessageDocument, 0, len(s.Messages)),
		Stats:     s.Stats(),
		Export: ExportMetadata{
			App:        "tcross-assistant",
			Version:    exportFormatVersion,
			ExportedAt: e.now(),
		},
	}
	for _, m := range s.Messages {
		doc.Messages = append(doc.Messages, MessageDocument{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
			ModelUsed: m.ModelUsed,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (e *exportUC) ExportMarkdown(s *model.ChatSession) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	title := s.Title
	if title == "" {
		title = "Conversa"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Modelo: `%s`\n", s.Model)
	fmt.Fprintf(&b, "- Criada em: %s\n", s.CreatedAt.Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "- Mensagens: %d\n\n", len(s.Messages))
	for _, m := range s.Messages {
		who := "Você"
		if m.Role == model.RoleAssistant {
			who = "T-Cross Assistant"
		}
		fmt.Fprintf(&b, "### %s (%s)\n\n%s\n\n", who, m.Timestamp.Format("15:04"), m.Content)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func (e *exportUC) ImportJSON(data []byte) (*model.ChatSession, error) {
	var doc SessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode session: %v: %w", err, domain.ErrInvalidArgument)
	}
	if doc.Model == "" {
		return nil, fmt.Errorf("session without model: %w", domain.ErrInvalidArgument)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	s := model.NewChatSession(doc.ID, doc.Model)
	if !doc.CreatedAt.IsZero() {
		s.CreatedAt = doc.CreatedAt
	}
	s.Title = doc.Title
	for i, md := range doc.Messages {
		role := model.Role(md.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("message %d has role %q: %w", i, md.Role, domain.ErrInvalidArgument)
		}
		m := model.NewMessage(role, md.Content, md.ModelUsed)
		if md.ID != "" {
			m.ID = md.ID
		}
		if !md.Timestamp.IsZero() {
			m.Timestamp = md.Timestamp
		}
		s.AddMessage(m)
	}
	return s, nil
}
