// Package research implements the Question Classifier and Deep
// Research collaborator (spec.md §4.J).
package research

import (
	"regexp"
	"strings"
)

var questionLexemes = []string{
	"what", "why", "how", "when", "where", "who", "which", "tell me about", "explain", "describe",
}

var topicPhrasePattern = regexp.MustCompile(`(?i)\b(of|about|history of|origin of|meaning of)\b`)

// Classification is the classifier's verdict for one raw query string.
type Classification struct {
	Confidence float64
	IsQuestion bool
}

// Classify scores query against spec.md §4.J's rule-based classifier.
func Classify(query string) Classification {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)

	var confidence float64
	endsWithQuestionMark := strings.HasSuffix(trimmed, "?")
	if endsWithQuestionMark {
		confidence += 0.5
	}
	if beginsWithQuestionLexeme(lower) {
		confidence += 0.4
	}
	if topicPhrasePattern.MatchString(lower) {
		confidence += 0.3
	}

	tokenCount := len(strings.Fields(trimmed))
	isQuestion := confidence >= 0.3 || (endsWithQuestionMark && tokenCount > 2)

	return Classification{Confidence: confidence, IsQuestion: isQuestion}
}

func beginsWithQuestionLexeme(lower string) bool {
	for _, lexeme := range questionLexemes {
		if lower == lexeme {
			return true
		}
		if strings.HasPrefix(lower, lexeme+" ") {
			return true
		}
	}
	return false
}
