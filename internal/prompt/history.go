package prompt

import (
	"unicode/utf8"

	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/section"
)

const (
	groundedHistoryTurns   = 2
	ungroundedHistoryTurns = 4
	groundedTurnCap        = 300
	ungroundedTurnCap      = 500
	resumeAnchorChars      = 800
	turnTruncationMarker   = " [truncated]"
)

// PruneHistory keeps the most recent turns and caps each one. Grounded prompts keep
// less history since the pack already carries the context. When resume is set, the
// newest retained assistant turn keeps its tail instead of its head so the model
// can see where it stopped.
func PruneHistory(history []model.Turn, grounded, resume bool) []model.Turn {
	keep, limit := ungroundedHistoryTurns, ungroundedTurnCap
	if grounded {
		keep, limit = groundedHistoryTurns, groundedTurnCap
	}
	if len(history) > keep {
		history = history[len(history)-keep:]
	}

	anchor := -1
	if resume {
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Role == model.RoleAssistant {
				anchor = i
				break
			}
		}
	}

	out := make([]model.Turn, len(history))
	for i, t := range history {
		if utf8.RuneCountInString(t.Content) > limit {
			if i == anchor {
				t.Content = section.Tail(t.Content, resumeAnchorChars)
			} else {
				t.Content = section.CapWith(t.Content, limit, turnTruncationMarker)
			}
		}
		out[i] = t
	}
	return out
}
