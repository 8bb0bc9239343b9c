package bot

import (
	"strings"
)

// KeywordClassifier flags messages that contain a listed term or mention too many
// members at once. Severity is one per matched term plus two for a mass mention.
type KeywordClassifier struct {
	terms        []string
	mentionLimit int
}

func NewKeywordClassifier(terms []string, mentionLimit int) *KeywordClassifier {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	return &KeywordClassifier{terms: lowered, mentionLimit: mentionLimit}
}

func (k *KeywordClassifier) Classify(content string) (bool, int) {
	if content == "" {
		return false, 0
	}
	lower := strings.ToLower(content)

	severity := 0
	for _, t := range k.terms {
		if strings.Contains(lower, t) {
			severity++
		}
	}
	if k.mentionLimit > 0 && countMentions(lower) >= k.mentionLimit {
		severity += 2
	}
	return severity > 0, severity
}

// countMentions counts user and role mentions plus @everyone and @here.
func countMentions(s string) int {
	n := strings.Count(s, "<@")
	n += strings.Count(s, "@everyone")
	n += strings.Count(s, "@here")
	return n
}
