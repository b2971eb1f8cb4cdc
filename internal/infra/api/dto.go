package api

import (
	"time"

	"tcross-assistant/internal/domain/model"
)

type messageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ModelUsed string    `json:"model_used,omitempty"`
}

type sessionView struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Model     string             `json:"model"`
	CreatedAt time.Time          `json:"created_at"`
	Messages  []messageView      `json:"messages"`
	Stats     model.SessionStats `json:"stats"`
	Vehicle   model.VehicleInfo  `json:"vehicle"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

type startSessionRequest struct {
	Model string `json:"model"`
}

type sendMessageRequest struct {
	Content string             `json:"content"`
	Vehicle *model.VehicleInfo `json:"vehicle,omitempty"`
}

type sendMessageResponse struct {
	Status  string       `json:"status"`
	User    messageView  `json:"user"`
	Reply   *messageView `json:"reply,omitempty"`
	Session string       `json:"session_id"`
}

type updateModelRequest struct {
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

type vehiclesResponse struct {
	Years    []string          `json:"years"`
	Versions []string          `json:"versions"`
	Default  model.VehicleInfo `json:"default"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func toMessageView(m *model.Message) messageView {
	return messageView{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
		ModelUsed: m.ModelUsed,
	}
}

func toSessionView(s *model.ChatSession, v model.VehicleInfo) sessionView {
	out := sessionView{
		ID:        s.ID,
		Title:     s.Title,
		Model:     s.Model,
		CreatedAt: s.CreatedAt,
		Messages:  make([]messageView, len(s.Messages)),
		Stats:     s.Stats(),
		Vehicle:   v,
	}
	for i := range s.Messages {
		out.Messages[i] = toMessageView(&s.Messages[i])
	}
	return out
}
