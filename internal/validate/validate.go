// Package validate screens generated text before it reaches the student.
package validate

import "strings"

// HardRefusal replaces any output that fails validation.
const HardRefusal = "Cortex has intercepted a violation of the Constitution or Safety Rules. The model's output has been discarded."

const safetyReason = "Safety violation detected."

// DefaultBanned is the banned-topic list. Matching is a plain substring test, so
// "drug" also catches "drugs".
var DefaultBanned = []string{
	"violence", "sexual", "drug", "illegal", "politics", "religion", "suicide", "self-harm",
}

// Verdict is the outcome of validating one response.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validator holds a lowercased banned list.
type Validator struct {
	banned []string
}

// New returns a validator for banned, or DefaultBanned when banned is empty.
func New(banned []string) *Validator {
	if len(banned) == 0 {
		banned = DefaultBanned
	}
	v := &Validator{}
	for _, b := range banned {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			v.banned = append(v.banned, b)
		}
	}
	return v
}

// Validate reports the first banned term found in text, case-insensitively.
func (v *Validator) Validate(text string) Verdict {
	lower := strings.ToLower(text)
	for _, b := range v.banned {
		if strings.Contains(lower, b) {
			return Verdict{Valid: false, Reason: safetyReason}
		}
	}
	return Verdict{Valid: true}
}

// Banned returns a copy of the active banned list.
func (v *Validator) Banned() []string {
	return append([]string(nil), v.banned...)
}
