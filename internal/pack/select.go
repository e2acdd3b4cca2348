package pack

import (
	"strings"
	"unicode/utf8"

	"github.com/cortexlab/cortex/internal/model"
)

const (
	minDirectQueryLen = 4
	followUpMaxChars  = 25
	followUpMaxWords  = 5
)

// MatchReason records which selection tier chose a pack.
type MatchReason int

const (
	MatchNone MatchReason = iota
	MatchKeyword
	MatchDeclared
	MatchHistory
)

func (r MatchReason) String() string {
	switch r {
	case MatchKeyword:
		return "keyword"
	case MatchDeclared:
		return "declared"
	case MatchHistory:
		return "history"
	default:
		return "none"
	}
}

// Criteria is the input to Select.
type Criteria struct {
	Grade   string
	Subject string
	Query   string
	History []model.Turn
}

// Selection is the pack chosen for a query, if any.
type Selection struct {
	Pack   *model.KnowledgePack
	Reason MatchReason
}

// Grounded reports whether a pack was selected.
func (s Selection) Grounded() bool { return s.Pack != nil }

// KeywordBased reports whether the pack was chosen from query or history keywords
// rather than from the declared grade and subject alone.
func (s Selection) KeywordBased() bool {
	return s.Reason == MatchKeyword || s.Reason == MatchHistory
}

// ID returns the selected pack id or "".
func (s Selection) ID() string {
	if s.Pack == nil {
		return ""
	}
	return s.Pack.ID
}

// Select picks at most one pack for a query. Tiers, in order:
//  1. a pack keyword occurs in the query (queries longer than 3 characters)
//  2. a pack whose grade and subject equal the declared ones
//  3. for short follow-ups, the first pack matching a history turn, newest first
func Select(packs []model.KnowledgePack, c Criteria) Selection {
	if utf8.RuneCountInString(c.Query) >= minDirectQueryLen {
		if p := FindByQuery(packs, c.Query); p != nil {
			return Selection{Pack: p, Reason: MatchKeyword}
		}
	}

	if p := FindByContext(packs, c.Grade, c.Subject); p != nil {
		return Selection{Pack: p, Reason: MatchDeclared}
	}

	if len(c.History) > 0 && IsFollowUp(c.Query) {
		for i := len(c.History) - 1; i >= 0; i-- {
			if p := FindByQuery(packs, c.History[i].Content); p != nil {
				return Selection{Pack: p, Reason: MatchHistory}
			}
		}
	}

	return Selection{}
}

// FindByQuery returns the first pack with a keyword contained in text.
func FindByQuery(packs []model.KnowledgePack, text string) *model.KnowledgePack {
	for i := range packs {
		if packs[i].Matches(text) {
			return &packs[i]
		}
	}
	return nil
}

// FindByContext returns the pack for grade and subject. Both must be known.
func FindByContext(packs []model.KnowledgePack, grade, subject string) *model.KnowledgePack {
	grade = strings.TrimSpace(grade)
	subject = strings.TrimSpace(subject)
	if grade == "" || subject == "" {
		return nil
	}
	for i := range packs {
		if packs[i].Grade == grade && strings.EqualFold(packs[i].Subject, subject) {
			return &packs[i]
		}
	}
	return nil
}

// IsFollowUp reports whether query looks like a short continuation of the
// conversation rather than a new question.
func IsFollowUp(query string) bool {
	return utf8.RuneCountInString(query) < followUpMaxChars || len(strings.Fields(query)) < followUpMaxWords
}

// StrictForGrade returns the strict packs declared for grade.
func StrictForGrade(packs []model.KnowledgePack, grade string) []model.KnowledgePack {
	var out []model.KnowledgePack
	for _, p := range packs {
		if p.Strict && p.Grade == grade {
			out = append(out, p)
		}
	}
	return out
}
