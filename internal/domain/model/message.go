package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one entry of a chat session. It is never edited after creation.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
	ModelUsed string // empty for user messages
}

func NewMessage(role Role, content, modelUsed string) Message {
	return Message{
		ID:        ulid.Make().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		ModelUsed: modelUsed,
	}
}

func (m Message) IsUser() bool { return m.Role == RoleUser }
