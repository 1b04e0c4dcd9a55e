package safety

import "regexp"

// piiPatterns map a detector regexp to the placeholder it is replaced with,
// applied in a fixed order; placeholders take the form [<KIND>_REDACTED].
var piiPatterns = []struct {
	pattern     *regexp.Regexp
	placeholder string
}{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL_REDACTED]"},
	{regexp.MustCompile(`\b(?:\+?1[-.]?)?\d{3}[-.]?\d{3}[-.]?\d{4}\b`), "[PHONE_REDACTED]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN_REDACTED]"},
	{regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "[CARD_REDACTED]"},
	{regexp.MustCompile(`\b(?:sk-|pk-)[A-Za-z0-9_-]{32,}\b`), "[API_KEY_REDACTED]"},
	{regexp.MustCompile(`\bBearer\s+[A-Za-z0-9._-]+\b`), "[BEARER_TOKEN_REDACTED]"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP_REDACTED]"},
}

// RedactPII replaces known PII patterns in text with placeholders, then
// truncates the result to maxLength (0 means unbounded), appending "..."
// when truncated. Intended for log lines, not for the messages sent to
// upstream model providers.
func RedactPII(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	redacted := text
	for _, p := range piiPatterns {
		redacted = p.pattern.ReplaceAllString(redacted, p.placeholder)
	}
	if maxLength > 0 && len(redacted) > maxLength {
		redacted = redacted[:maxLength] + "..."
	}
	return redacted
}
