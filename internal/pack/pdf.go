package pack

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	chapterLine  = regexp.MustCompile(`^(?i)(chapter|unit|lesson)\s+\d+`)
	numberedLine = regexp.MustCompile(`^\d+(\.\d+)+\s+\S`)
	spaceRun     = regexp.MustCompile(`[ \t]+`)
)

// ExtractPDFText reads the plain text of a PDF document.
func ExtractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	b, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract plain text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(b); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return buf.String(), nil
}

// TextToMarkdown turns extracted textbook text into pack markdown: chapter lines
// become level-2 headings and numbered topic lines ("3.1 Roots") level-3 headings,
// so the section extractor can find them.
func TextToMarkdown(title, text string) string {
	var b strings.Builder
	if title != "" {
		b.WriteString("# " + strings.TrimSpace(title) + "\n\n")
	}
	blank := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
		if line == "" {
			if !blank {
				b.WriteString("\n")
			}
			blank = true
			continue
		}
		blank = false
		switch {
		case chapterLine.MatchString(line):
			b.WriteString("\n## " + line + "\n")
		case numberedLine.MatchString(line) && len(line) < 80:
			b.WriteString("\n### " + line + "\n")
		default:
			b.WriteString(line + "\n")
		}
	}
	return strings.TrimSpace(b.String()) + "\n"
}
