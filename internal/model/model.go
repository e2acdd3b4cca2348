// Package model defines the core runtime data types.
package model

import "strings"

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// KnowledgePack is a grade and subject scoped reference bundle used for grounding.
type KnowledgePack struct {
	ID             string   `json:"id"`
	Grade          string   `json:"class"`
	Subject        string   `json:"subject"`
	Language       string   `json:"language,omitempty"`
	Version        string   `json:"version,omitempty"`
	Scope          string   `json:"scope,omitempty"`
	Strict         bool     `json:"strict"`
	Keywords       []string `json:"keywords"`
	FullContent    string   `json:"-"`
	CompactContent string   `json:"-"`
}

// Matches reports whether any pack keyword occurs in text, ignoring case.
func (p *KnowledgePack) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range p.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// GenerationParams are the sampling knobs passed to the engine.
// Zero values mean "not set" when used as caller overrides.
type GenerationParams struct {
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature"`
	TopP        float64 `json:"top_p,omitempty" yaml:"top_p"`
	TopK        int     `json:"top_k,omitempty" yaml:"top_k"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// QueryResult is what the runtime hands back to the caller for one query.
type QueryResult struct {
	Response string `json:"response"`
	PackID   string `json:"pack_id,omitempty"`

	Family      string `json:"family,omitempty"`
	Detail      bool   `json:"detail,omitempty"`
	Resume      bool   `json:"resume,omitempty"`
	Refused     bool   `json:"refused,omitempty"`
	Stopped     bool   `json:"stopped,omitempty"`
	PromptChars int    `json:"prompt_chars,omitempty"`
}

// ValidRoles are the allowed turn roles.
var ValidRoles = map[Role]bool{
	RoleUser:      true,
	RoleAssistant: true,
}
