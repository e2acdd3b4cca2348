package runtime

import (
	"strings"

	"github.com/cortexlab/cortex/internal/config"
	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/pack"
	"github.com/cortexlab/cortex/internal/prompt"
)

// BusyPolicy decides what happens to a query while another one is generating.
type BusyPolicy string

const (
	BusyReject BusyPolicy = "reject"
	BusyQueue  BusyPolicy = "queue"
)

// RefusalPolicy configures the out-of-syllabus short circuit. A query is refused
// without generation when its tool is listed in Tools, its grade is listed in
// Grades (empty means any grade), the grade has at least one strict pack, and the
// pack selection did not come from a keyword match on the query or history.
type RefusalPolicy struct {
	Tools  []string
	Grades []string
}

// Check returns the refusal text and true when the policy fires.
func (p RefusalPolicy) Check(tool prompt.Tool, grade, subject string, packs []model.KnowledgePack, sel pack.Selection) (string, bool) {
	grade = strings.TrimSpace(grade)
	if grade == "" || tool == prompt.ToolNone {
		return "", false
	}
	if !contains(p.Tools, string(tool)) {
		return "", false
	}
	if len(p.Grades) > 0 && !contains(p.Grades, grade) {
		return "", false
	}
	strict := pack.StrictForGrade(packs, grade)
	if len(strict) == 0 || sel.KeywordBased() {
		return "", false
	}
	if strings.TrimSpace(subject) == "" {
		subject = strict[0].Subject
	}
	return prompt.OutOfSyllabus(grade, subject), true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// Config is the runtime's long-lived generation and policy settings.
type Config struct {
	Defaults               model.GenerationParams
	DetailMaxTokens        int
	GroundedMaxTemperature float64
	Refusal                RefusalPolicy
	Busy                   BusyPolicy
}

// DefaultConfig mirrors config.DefaultConfig.
func DefaultConfig() Config {
	return ConfigFrom(config.DefaultConfig(""))
}

// ConfigFrom extracts the runtime settings from the application config.
func ConfigFrom(c *config.Config) Config {
	busy := BusyReject
	if strings.EqualFold(c.Policy.BusyPolicy, string(BusyQueue)) {
		busy = BusyQueue
	}
	return Config{
		Defaults:               c.Generation.Standard,
		DetailMaxTokens:        c.Generation.DetailMaxTokens,
		GroundedMaxTemperature: c.Generation.GroundedMaxTemperature,
		Refusal: RefusalPolicy{
			Tools:  c.Policy.StrictTools,
			Grades: c.Policy.StrictGrades,
		},
		Busy: busy,
	}
}

// MergeParams layers caller overrides on the mode defaults. deep selects the detail
// token budget; grounded clamps temperature to the grounded ceiling.
func (c Config) MergeParams(deep, grounded bool, override model.GenerationParams) model.GenerationParams {
	p := c.Defaults
	if deep && c.DetailMaxTokens > 0 {
		p.MaxTokens = c.DetailMaxTokens
	}
	if override.Temperature > 0 {
		p.Temperature = override.Temperature
	}
	if override.TopP > 0 {
		p.TopP = override.TopP
	}
	if override.TopK > 0 {
		p.TopK = override.TopK
	}
	if override.MaxTokens > 0 {
		p.MaxTokens = override.MaxTokens
	}
	if grounded && c.GroundedMaxTemperature > 0 && p.Temperature > c.GroundedMaxTemperature {
		p.Temperature = c.GroundedMaxTemperature
	}
	return p
}
