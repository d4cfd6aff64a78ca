// Package safety flags emergency language in patient questions and
// retrieved document context. The scan runs independently of answer
// generation so the alert never depends on the model recognising danger.
package safety

import "strings"

// dangerKeywords always trigger the alert regardless of context.
var dangerKeywords = []string{
	"emergency", "urgent", "severe", "immediately", "danger",
	"critical", "call 911", "999", "ambulance", "chest pain",
	"difficulty breathing", "can't breathe", "unconscious", "collapse",
	"heart attack", "stroke", "haemorrhage", "hemorrhage",
}

// ContainsDanger reports whether any danger keyword appears in any of
// the provided texts. Matching is case-insensitive substring matching,
// which keeps multi-word phrases like "chest pain" intact.
func ContainsDanger(texts ...string) bool {
	var b strings.Builder
	for _, t := range texts {
		b.WriteString(strings.ToLower(t))
		b.WriteByte(' ')
	}
	combined := b.String()

	for _, kw := range dangerKeywords {
		if strings.Contains(combined, kw) {
			return true
		}
	}
	return false
}

// Keywords returns a copy of the danger vocabulary.
func Keywords() []string {
	out := make([]string, len(dangerKeywords))
	copy(out, dangerKeywords)
	return out
}
