package logging

import "regexp"

const (
	// MaxQueryLogLength caps SQL statements written to the log.
	MaxQueryLogLength = 200

	// RedactedText replaces any credential-shaped substring.
	RedactedText = "[REDACTED]"
)

// redaction pairs a credential pattern with its replacement template.
type redaction struct {
	pattern *regexp.Regexp
	replace string
}

var (
	// password=x, pwd=x, pass=x, client_secret=x up to the next delimiter
	passwordRedaction = redaction{
		pattern: regexp.MustCompile(`(?i)(password|pwd|pass|client_secret)=[^;&\s]+`),
		replace: "${1}=" + RedactedText,
	}

	// key=... values long enough to be API keys
	apiKeyRedaction = redaction{
		pattern: regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`),
		replace: "${1}=" + RedactedText,
	}

	// user:pass@host inside URL-style DSNs
	userInfoRedaction = redaction{
		pattern: regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`),
		replace: "://" + RedactedText + "@" + RedactedText,
	}

	// PEM key material that drivers sometimes echo back in errors
	pemRedaction = redaction{
		pattern: regexp.MustCompile(`-----BEGIN [A-Z ]+-----[\s\S]*?-----END [A-Z ]+-----`),
		replace: RedactedText,
	}
)

func redactAll(s string, redactions ...redaction) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replace)
	}
	return s
}

// SanitizeConnectionString strips credentials from a warehouse or store DSN
// before it reaches a log line.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return redactAll(connStr, passwordRedaction, userInfoRedaction)
}

// SanitizeError renders an error from a warehouse or store operation with
// any embedded credentials, DSNs, or key material removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redactAll(err.Error(), passwordRedaction, apiKeyRedaction, userInfoRedaction, pemRedaction)
}

// SanitizeQuery truncates a SQL statement for logging and strips
// credential-shaped substrings that may appear in literals.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	if len(query) > MaxQueryLogLength {
		query = query[:MaxQueryLogLength] + "..."
	}
	return redactAll(query, passwordRedaction, apiKeyRedaction)
}

// TruncateString shortens s to maxLen with a trailing ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
