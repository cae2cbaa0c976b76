package rest

import "regexp"

// Field names matching these patterns mark a value as sensitive. Upstream
// bodies pass through Redact before any log line carries them.
var (
	jsonSecretField = regexp.MustCompile(`(?i)("[^"]*(?:secret|password|token|key)[^"]*"\s*:\s*)"[^"]*"`)
	authHeaderValue = regexp.MustCompile(`(?i)("?authorization"?\s*[:=]\s*"?)(?:bearer\s+)?[A-Za-z0-9\-._~+/]+=*`)
)

// Redact masks secret-bearing JSON field values and Authorization header
// values in free text.
func Redact(s string) string {
	s = jsonSecretField.ReplaceAllString(s, `${1}"[redacted]"`)
	s = authHeaderValue.ReplaceAllString(s, `${1}[redacted]`)
	return s
}
