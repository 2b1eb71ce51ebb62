package worker

import (
	"regexp"
	"strings"
	"unicode"
)

// maxErrorLen caps stored error messages; module stack traces can be huge.
const maxErrorLen = 4000

var (
	// key=value / key: value pairs whose key looks like a credential.
	secretPattern = regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|token|api[_-]?key|authorization)\b\s*[:=]\s*\S+`)
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
	// user:pass@ credentials embedded in URLs, e.g. connection strings.
	urlCredsPattern = regexp.MustCompile(`://([^:/?#\s]+):([^@/\s]+)@`)
)

// Sanitize prepares raw error text for persistence: control characters are
// stripped (newlines and tabs survive), secret-shaped substrings are redacted
// and the result is length-capped.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	out := secretPattern.ReplaceAllString(b.String(), "$1=[REDACTED]")
	out = bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	out = urlCredsPattern.ReplaceAllString(out, "://$1:****@")

	if runes := []rune(out); len(runes) > maxErrorLen {
		out = string(runes[:maxErrorLen])
	}
	return out
}
