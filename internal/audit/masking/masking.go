// Package masking redacts sensitive values before they reach the activity log.
package masking

import "strings"

const redacted = "****"

var sensitiveKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"access_token":  true,
	"session_id":    true,
	"session_url":   true,
	"checkout_url":  true,
	"signature":     true,
	"webhook_token": true,
}

// Metadata returns a copy of input with sensitive keys redacted and e-mail
// addresses reduced to their first letter and domain. Nested maps are walked.
func Metadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = maskValue(key, value)
	}
	return out
}

func maskValue(key string, value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Metadata(v)
	case string:
		switch {
		case sensitiveKeys[strings.ToLower(key)]:
			return Secret(v)
		case strings.Contains(strings.ToLower(key), "email"):
			return Email(v)
		}
		return v
	default:
		return value
	}
}

// Secret keeps the provider prefix (up to the last underscore) and the final
// four characters: cs_test_a1b2c3d4e5 becomes cs_test_****d4e5.
func Secret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	prefix, rest := "", value
	if i := strings.LastIndex(value, "_"); i >= 0 && i < len(value)-1 {
		prefix, rest = value[:i+1], value[i+1:]
	}
	if len(rest) <= 4 {
		return prefix + redacted
	}
	return prefix + redacted + rest[len(rest)-4:]
}

// Email turns alice@example.com into a****@example.com.
func Email(value string) string {
	value = strings.TrimSpace(value)
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return Secret(value)
	}
	return value[:1] + redacted + value[at:]
}
