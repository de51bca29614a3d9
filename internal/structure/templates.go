package structure

import (
	"regexp"
	"strings"

	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// suggestion shapes, most specific first. Each one reverse-engineers a
// regex from a literal header label so users can confirm a template
// instead of writing regex by hand.
var suggestionShapes = []struct {
	match    *regexp.Regexp
	name     string
	pattern  string
	kind     string
}{
	{regexp.MustCompile(`^FY[1-4]Q\d{2}E$`), "fiscal-quarter-estimate", `FY[1-4]Q\d{2}E`, "quarter"},
	{regexp.MustCompile(`^FY[1-4]Q\d{2}$`), "fiscal-quarter", `FY[1-4]Q\d{2}`, "quarter"},
	{regexp.MustCompile(`^FY\d{4}E$`), "fiscal-year-estimate", `FY\d{4}E`, "annual"},
	{regexp.MustCompile(`^FY\d{4}$`), "fiscal-year", `FY\d{4}`, "annual"},
	{regexp.MustCompile(`^[1-4]Q\d{2}E$`), "quarter-estimate", `[1-4]Q\d{2}E`, "quarter"},
	{regexp.MustCompile(`^[1-4]Q\d{2}$`), "quarter", `[1-4]Q\d{2}`, "quarter"},
	{regexp.MustCompile(`^Q[1-4]\s\d{4}$`), "quarter-spaced", `Q[1-4]\s\d{4}`, "quarter"},
	{regexp.MustCompile(`^\d{4}E$`), "year-estimate", `\d{4}E`, "annual"},
	{regexp.MustCompile(`^\d{4}$`), "year", `\d{4}`, "annual"},
}

// SuggestTemplates inspects header labels that the built-in token set did
// not recognize and proposes PeriodTemplates matching their shape. Each
// distinct shape is suggested once, with the first label seen as its
// example.
func SuggestTemplates(labels []string) []domain.PeriodTemplate {
	var out []domain.PeriodTemplate
	seen := make(map[string]bool)
	for _, label := range labels {
		trimmed := strings.TrimSpace(label)
		if trimmed == "" {
			continue
		}
		for _, shape := range suggestionShapes {
			if !shape.match.MatchString(trimmed) {
				continue
			}
			if !seen[shape.name] {
				seen[shape.name] = true
				out = append(out, domain.PeriodTemplate{
					Name:    shape.name,
					Pattern: shape.pattern,
					Example: trimmed,
					Type:    shape.kind,
				})
			}
			break
		}
	}
	return out
}
