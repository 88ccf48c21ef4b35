// Package insight derives categorical observations about a contract from its text
// by matching trigger terms.
package insight

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type Insight struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Rule fires when Trigger occurs anywhere in the normalized text.
type Rule struct {
	Trigger     string
	Category    string
	Description string
}

// DefaultRules is scanned in order; output order follows this table.
var DefaultRules = []Rule{
	{Trigger: "terminate", Category: "termination", Description: "Contract contains termination clauses - review notice periods"},
	{Trigger: "liability", Category: "liability", Description: "Liability limitations found - verify coverage adequacy"},
	{Trigger: "confidential", Category: "confidentiality", Description: "Confidentiality obligations present - ensure compliance"},
	{Trigger: "payment", Category: "payment", Description: "Payment terms specified - monitor due dates"},
}

type Extractor struct {
	rules []Rule
}

func NewExtractor(rules []Rule) *Extractor {
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		normalized[i] = r
		normalized[i].Trigger = normalize(r.Trigger)
	}
	return &Extractor{rules: normalized}
}

func Default() *Extractor {
	return NewExtractor(DefaultRules)
}

// Extract returns one insight per rule whose trigger occurs in text.
func (e *Extractor) Extract(text string) []Insight {
	haystack := normalize(text)
	insights := make([]Insight, 0, len(e.rules))
	for _, r := range e.rules {
		if r.Trigger == "" || !strings.Contains(haystack, r.Trigger) {
			continue
		}
		insights = append(insights, Insight{Type: r.Category, Text: r.Description})
	}
	return insights
}

func normalize(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}
