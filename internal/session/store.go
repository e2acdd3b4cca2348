// Package session persists chat sessions, their turns and the response cache.
package session

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cortexlab/cortex/internal/model"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

const (
	titleChars   = 30
	previewChars = 50
	defaultTitle = "New Chat"
)

// Session is a stored conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Grade     string    `json:"class,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Turns     []Turn    `json:"turns,omitempty"`
}

// History returns the session turns as runtime history.
func (s *Session) History() []model.Turn {
	out := make([]model.Turn, 0, len(s.Turns))
	for _, t := range s.Turns {
		out = append(out, model.Turn{Role: t.Role, Content: t.Content})
	}
	return out
}

// Turn is one stored message.
type Turn struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Seq       int        `json:"seq"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	PackID    string     `json:"pack_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Summary is a session as shown in a list.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	Grade     string    `json:"class,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	TurnCount int       `json:"turn_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateParams holds the context a session starts with.
type CreateParams struct {
	Grade   string
	Subject string
	Tool    string
	Model   string
}

// AppendParams holds one turn to add.
type AppendParams struct {
	SessionID string
	Role      model.Role
	Content   string
	PackID    string
}

// ListParams holds parameters for listing sessions.
type ListParams struct {
	Limit int
}

// Store defines session persistence.
type Store interface {
	Create(ctx context.Context, p CreateParams) (*Session, error)
	AppendTurn(ctx context.Context, p AppendParams) (*Turn, error)
	// Get returns a session with all its turns in order.
	Get(ctx context.Context, id string) (*Session, error)
	// List returns sessions, most recently updated first.
	List(ctx context.Context, p ListParams) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// TitleFrom derives a session title from its first user message.
func TitleFrom(first string) string {
	first = strings.TrimSpace(first)
	if first == "" {
		return defaultTitle
	}
	if utf8.RuneCountInString(first) <= titleChars {
		return first
	}
	return strings.TrimSpace(string([]rune(first)[:titleChars])) + "..."
}

// PreviewFrom derives the list preview from the last message.
func PreviewFrom(last string) string {
	last = strings.ReplaceAll(last, "\n", " ")
	if utf8.RuneCountInString(last) <= previewChars {
		return last
	}
	return string([]rune(last)[:previewChars]) + "..."
}
