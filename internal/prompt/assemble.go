package prompt

import (
	"strings"

	"github.com/cortexlab/cortex/internal/section"
)

var (
	detailKeywords = []string{"explain", "detail", "describe", "notes", "process", "syllabus", "define"}
	resumeKeywords = []string{"resume", "continue", "go on", "tell me more", "keep going"}
)

// NeedsDetail reports whether the query asks for depth.
func NeedsDetail(query string) bool { return containsAny(query, detailKeywords) }

// IsResume reports whether the query asks to continue the previous answer.
func IsResume(query string) bool { return containsAny(query, resumeKeywords) }

func containsAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Parts are the inputs to BuildSystemPrompt. Empty parts are omitted.
type Parts struct {
	// Persona replaces DefaultPersona when non-blank.
	Persona string
	Grade   string
	Subject string
	Tool    Tool

	CompactGrounding  string
	DetailedGrounding string
	Resume            bool
}

// BuildSystemPrompt joins the prompt layers in their fixed order: constitution,
// safety rules, persona, grade context, tool instructions, compact grounding,
// detailed grounding, continuation instruction and the constitutional fallback.
// Grounding is capped here, so callers may pass raw pack content.
func BuildSystemPrompt(p Parts) string {
	persona := strings.TrimSpace(p.Persona)
	if persona == "" {
		persona = DefaultPersona
	}

	blocks := []string{
		Constitution,
		SafetyRules,
		persona,
		GradeContext(p.Grade, p.Subject),
		ToolInstructions(p.Tool, p.Grade),
	}
	if g := strings.TrimSpace(p.CompactGrounding); g != "" {
		blocks = append(blocks, compactHeader+section.Cap(g, section.CompactLimit))
	}
	if g := strings.TrimSpace(p.DetailedGrounding); g != "" {
		blocks = append(blocks, detailHeader+section.Cap(g, section.DetailLimit))
	}
	if p.Resume {
		blocks = append(blocks, ContinuationInstruction)
	}
	blocks = append(blocks, Fallback)

	out := blocks[:0]
	for _, b := range blocks {
		if b != "" {
			out = append(out, b)
		}
	}
	return strings.Join(out, "\n\n")
}
