package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMasksSensitiveKeys(t *testing.T) {
	data := map[string]any{
		"webhook_secret": "abcdefghijklmnop",
		"title":          "fix the bug",
		"nested": map[string]any{
			"api_key": "shortkey",
		},
	}

	out := Sanitize(data)

	assert.Equal(t, "abcd****mnop", out["webhook_secret"])
	assert.Equal(t, "fix the bug", out["title"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "****", nested["api_key"])
}

func TestSanitizeShortSensitiveValue(t *testing.T) {
	out := Sanitize(map[string]any{"token": "abc"})
	assert.Equal(t, "****", out["token"])
}
