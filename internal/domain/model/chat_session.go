package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

const titleMaxRunes = 40

// ChatSession is the aggregate root for one conversation. Messages are only
// ever appended; a conversation is reset by replacing the whole session.
type ChatSession struct {
	ID        string
	Messages  []Message
	CreatedAt time.Time
	Model     string
	Title     string
}

// SessionStats mirrors the counters shown next to a conversation.
type SessionStats struct {
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"ai_messages"`
	TotalCharacters   int `json:"total_characters"`
}

func NewChatSession(id, model string) *ChatSession {
	return &ChatSession{
		ID:        id,
		Messages:  make([]Message, 0, 8),
		CreatedAt: time.Now(),
		Model:     model,
	}
}

func (s *ChatSession) AddMessage(m Message) {
	s.Messages = append(s.Messages, m)
	if s.Title == "" && m.Role == RoleUser {
		s.Title = titleFrom(m.Content)
	}
}

func (s *ChatSession) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s *ChatSession) UserMessagesCount() int { return s.countRole(RoleUser) }

func (s *ChatSession) AssistantMessagesCount() int { return s.countRole(RoleAssistant) }

func (s *ChatSession) TotalCharacters() int {
	n := 0
	for _, m := range s.Messages {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}

func (s *ChatSession) Stats() SessionStats {
	return SessionStats{
		UserMessages:      s.UserMessagesCount(),
		AssistantMessages: s.AssistantMessagesCount(),
		TotalCharacters:   s.TotalCharacters(),
	}
}

// Snapshot returns a copy that callers may keep without aliasing the
// session's message slice.
func (s *ChatSession) Snapshot() *ChatSession {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}

func (s *ChatSession) countRole(r Role) int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == r {
			n++
		}
	}
	return n
}

func titleFrom(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes]) + "..."
	}
	return content
}
