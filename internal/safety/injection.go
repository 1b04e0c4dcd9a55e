// Package safety implements input sanitization against prompt-injection
// patterns and PII redaction for logs, mirroring the teacher's
// placeholder-substitution approach to sensitive text.
package safety

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// injectionPatterns flag user input that attempts to override the system
// prompt or smuggle control tokens into the model conversation.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?prior\s+context`),
	regexp.MustCompile(`(?i)forget\s+everything`),
	regexp.MustCompile(`(?i)you\s+are\s+now`),
	regexp.MustCompile(`(?i)new\s+instructions`),
	regexp.MustCompile(`(?i)system\s*:\s*`),
	regexp.MustCompile(`(?i)assistant\s*:\s*`),
	regexp.MustCompile(`<\|.*?\|>`),
	regexp.MustCompile(`(?i)\[SYSTEM\]`),
	regexp.MustCompile(`(?i)\[INST\]`),
	regexp.MustCompile(`</s>`),
	regexp.MustCompile(`<s>`),
}

// InjectionError reports that SanitizeUserInput rejected input.
type InjectionError struct {
	Reason string
}

func (e *InjectionError) Error() string { return e.Reason }

// SanitizeUserInput rejects empty input, input exceeding maxLength, and
// input matching any known injection pattern; otherwise it normalizes
// internal whitespace and returns the cleaned string.
func SanitizeUserInput(input string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", &InjectionError{Reason: "empty input not allowed"}
	}
	if utf8.RuneCountInString(input) > maxLength {
		return "", &InjectionError{Reason: fmt.Sprintf("input exceeds maximum length of %d characters", maxLength)}
	}
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(input) {
			return "", &InjectionError{Reason: "potential prompt injection detected"}
		}
	}
	return strings.Join(strings.Fields(input), " "), nil
}
