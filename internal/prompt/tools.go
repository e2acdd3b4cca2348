package prompt

import (
	"strconv"
	"strings"
)

// Tool identifies a tutoring mode the student can pick.
type Tool string

const (
	ToolNone      Tool = ""
	ToolExplain   Tool = "explain"
	ToolNotes     Tool = "notes"
	ToolPractice  Tool = "practice"
	ToolHomework  Tool = "homework"
	ToolTranslate Tool = "translate"
)

// ToolDefinition describes a tool and the lowest grade allowed to use it.
type ToolDefinition struct {
	ID          Tool   `json:"id"`
	Name        string `json:"name"`
	MinGrade    int    `json:"min_grade"`
	Description string `json:"description"`
}

// Tools is the tool catalogue in display order.
var Tools = []ToolDefinition{
	{ID: ToolExplain, Name: "Explain Topic", MinGrade: 0, Description: "Get clear explanations for any topic."},
	{ID: ToolNotes, Name: "Short Notes", MinGrade: 3, Description: "Summarize topics into bullet points."},
	{ID: ToolPractice, Name: "Practice Questions", MinGrade: 3, Description: "Test your knowledge with questions."},
	{ID: ToolHomework, Name: "Homework Helper", MinGrade: 9, Description: "Get hints and steps (no direct answers)."},
	{ID: ToolTranslate, Name: "Simplify / Translate", MinGrade: 0, Description: "Translate text or make it simpler."},
}

// DefaultTask is the tool instruction used for plain chat.
const DefaultTask = "TASK: Answer the student's question helpfully via chat."

// GradeLevel maps a grade label to its numeric level. Pre-primary grades are 0.
// ok is false for unknown labels.
func GradeLevel(grade string) (level int, ok bool) {
	g := strings.TrimSpace(grade)
	switch strings.ToLower(g) {
	case "nursery", "lkg", "ukg":
		return 0, true
	}
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(g), "class "))
	if err != nil || n < 1 || n > 10 {
		return 0, false
	}
	return n, true
}

// ToolsFor returns the tools open to grade. Unknown grades get none.
func ToolsFor(grade string) []ToolDefinition {
	level, ok := GradeLevel(grade)
	if !ok {
		return []ToolDefinition{}
	}
	out := []ToolDefinition{}
	for _, t := range Tools {
		if level >= t.MinGrade {
			out = append(out, t)
		}
	}
	return out
}

// ToolAvailable reports whether tool may be used at grade.
func ToolAvailable(tool Tool, grade string) bool {
	for _, t := range ToolsFor(grade) {
		if t.ID == tool {
			return true
		}
	}
	return false
}

// ToolInstructions returns the instruction block for tool at grade. Tools the grade
// may not use, and plain chat, get DefaultTask.
func ToolInstructions(tool Tool, grade string) string {
	if tool == ToolNone || !ToolAvailable(tool, grade) {
		return DefaultTask
	}
	g := strings.TrimSpace(grade)
	switch tool {
	case ToolExplain:
		return "TOOL: EXPLAIN TOPIC\n" +
			"ROLE: You are explaining a school topic to a Class " + g + " student.\n" +
			"TASK: Explain the given topic clearly and simply.\n" +
			"RULES:\n" +
			"- Start with a simple definition.\n" +
			"- Explain step by step.\n" +
			"- Use bullet points.\n" +
			"- Maximum 6-8 points.\n" +
			"- No advanced terms unless appropriate for Class " + g + ".\n" +
			"If the topic is above Class " + g + ":\n" +
			"- Say so politely.\n" +
			"- Give only a basic idea."
	case ToolNotes:
		return "TOOL: MAKE SHORT NOTES\n" +
			"ROLE: You are helping a student revise for exams.\n" +
			"TASK: Create short revision notes for a Class " + g + " student.\n" +
			"FORMAT:\n" +
			"- Bullet points only\n" +
			"- Clear keywords\n" +
			"- No paragraphs\n" +
			"- Maximum 120 words\n" +
			"RULES:\n" +
			"- Focus only on exam-relevant points.\n" +
			"- Do not add extra information."
	case ToolPractice:
		return "TOOL: PRACTICE QUESTIONS\n" +
			"ROLE: You are a teacher preparing practice questions.\n" +
			"TASK: Create practice questions for a Class " + g + " student.\n" +
			"FORMAT:\n" +
			"- 2 easy questions\n" +
			"- 2 medium questions\n" +
			"- 1 slightly challenging question\n" +
			"RULES:\n" +
			"- Do NOT give answers.\n" +
			"- Keep questions strictly syllabus-based."
	case ToolHomework:
		return "TOOL: HOMEWORK HELPER\n" +
			"ROLE: You are guiding a student to solve homework.\n" +
			"TASK: Explain how to think about the problem step by step.\n" +
			"STRICT RULES:\n" +
			"- Do NOT give the final answer.\n" +
			"- Give hints and reasoning.\n" +
			"- Encourage the student to try.\n" +
			"ONLY IF explicitly asked AND Class >= 9:\n" +
			"- Provide the final answer with explanation."
	case ToolTranslate:
		return "TOOL: SIMPLIFY / TRANSLATE\n" +
			"ROLE: You help students understand text easily.\n" +
			"TASK: Simplify or translate the text for a Class " + g + " student.\n" +
			"RULES:\n" +
			"- Use simple words.\n" +
			"- Short sentences.\n" +
			"- Keep the meaning correct."
	}
	return DefaultTask
}
