package prompt

import (
	"strings"

	"github.com/cortexlab/cortex/internal/model"
)

// Family is a chat markup convention shared by a group of models.
type Family int

const (
	FamilyGeneric Family = iota
	FamilyLlama3
	FamilyQwen
	FamilyTinyLlama
	FamilyMistral
)

func (f Family) String() string {
	switch f {
	case FamilyLlama3:
		return "llama3"
	case FamilyQwen:
		return "qwen"
	case FamilyTinyLlama:
		return "tinyllama"
	case FamilyMistral:
		return "mistral"
	default:
		return "generic"
	}
}

// familyMatchers are checked in order; the first substring hit wins.
var familyMatchers = []struct {
	family Family
	needle []string
}{
	{FamilyTinyLlama, []string{"tinyllama"}},
	{FamilyLlama3, []string{"llama 3", "llama-3", "llama3"}},
	{FamilyQwen, []string{"qwen"}},
	{FamilyMistral, []string{"mistral"}},
}

// DetectFamily resolves a model name to its family. Unknown names are generic.
func DetectFamily(modelName string) Family {
	name := strings.ToLower(modelName)
	for _, m := range familyMatchers {
		for _, n := range m.needle {
			if strings.Contains(name, n) {
				return m.family
			}
		}
	}
	return FamilyGeneric
}

// Serialize renders the system prompt, history and the new user input in the
// family's markup, ending with an open assistant turn.
func Serialize(system string, history []model.Turn, input string, f Family) string {
	var b strings.Builder
	switch f {
	case FamilyLlama3:
		b.WriteString("<|begin_of_text|><|start_header_id|>system<|end_header_id|>\n\n" + system + "<|eot_id|>")
		for _, t := range history {
			b.WriteString("<|start_header_id|>" + string(t.Role) + "<|end_header_id|>\n\n" + t.Content + "<|eot_id|>")
		}
		b.WriteString("<|start_header_id|>user<|end_header_id|>\n\n" + input + "<|eot_id|>")
		b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")

	case FamilyQwen:
		b.WriteString("<|im_start|>system\n" + system + "<|im_end|>\n")
		for _, t := range history {
			b.WriteString("<|im_start|>" + string(t.Role) + "\n" + t.Content + "<|im_end|>\n")
		}
		b.WriteString("<|im_start|>user\n" + input + "<|im_end|>\n<|im_start|>assistant\n")

	case FamilyTinyLlama:
		b.WriteString("<|system|>\n" + system + "</s>\n")
		for _, t := range history {
			b.WriteString("<|" + string(t.Role) + "|>\n" + t.Content + "</s>\n")
		}
		b.WriteString("<|user|>\n" + input + "</s>\n<|assistant|>\n")

	case FamilyMistral:
		if len(history) == 0 {
			b.WriteString("<s>[INST] " + system + "\n\n" + input + " [/INST]")
			break
		}
		b.WriteString("<s>[INST] " + system + " [/INST] </s>")
		for _, t := range history {
			if t.Role == model.RoleUser {
				b.WriteString("<s>[INST] " + t.Content + " [/INST] ")
			} else {
				b.WriteString(t.Content + " </s>")
			}
		}
		b.WriteString("<s>[INST] " + input + " [/INST]")

	default:
		b.WriteString("System: " + system + "\n\n")
		for _, t := range history {
			b.WriteString(roleLabel(t.Role) + ": " + t.Content + "\n")
		}
		b.WriteString("User: " + input + "\nAssistant:")
	}
	return b.String()
}

func roleLabel(r model.Role) string {
	if r == model.RoleUser {
		return "User"
	}
	return "Assistant"
}
