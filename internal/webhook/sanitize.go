package webhook

import "strings"

// defaultSensitiveKeys mirrors sanitize_log_data's built-in key set.
var defaultSensitiveKeys = []string{
	"token",
	"password",
	"secret",
	"api_key",
	"webhook_secret",
	"authorization",
	"signature",
}

// Sanitize returns a copy of data with values under sensitive-looking
// keys masked, recursing into nested maps (values inside slices are not
// inspected), so inbound payloads can be logged without leaking
// credentials embedded in them.
func Sanitize(data map[string]any) map[string]any {
	return sanitize(data, defaultSensitiveKeys)
}

func sanitize(data map[string]any, sensitiveKeys []string) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		lower := strings.ToLower(key)
		if isSensitiveKey(lower, sensitiveKeys) {
			out[key] = maskValue(value)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = sanitize(nested, sensitiveKeys)
			continue
		}
		out[key] = value
	}
	return out
}

func isSensitiveKey(lowerKey string, sensitiveKeys []string) bool {
	for _, s := range sensitiveKeys {
		if strings.Contains(lowerKey, s) {
			return true
		}
	}
	return false
}

func maskValue(value any) any {
	s, ok := value.(string)
	if !ok || len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
