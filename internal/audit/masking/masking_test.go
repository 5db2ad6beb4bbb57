package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecret(t *testing.T) {
	assert.Equal(t, "cs_test_****d4e5", Secret("cs_test_a1b2c3d4e5"))
	assert.Equal(t, "****", Secret("abc"))
	assert.Equal(t, "", Secret("  "))
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "a****@example.com", Email("alice@example.com"))
	assert.Equal(t, "****", Email("x"))
}

func TestMetadataRedactsSensitiveKeys(t *testing.T) {
	out := Metadata(map[string]any{
		"session_id": "cs_test_a1b2c3d4e5",
		"title":      "Heat",
		"quantity":   2,
		"customer":   map[string]any{"email": "alice@example.com"},
	})

	assert.Equal(t, "cs_test_****d4e5", out["session_id"])
	assert.Equal(t, "Heat", out["title"])
	assert.Equal(t, 2, out["quantity"])
	assert.Equal(t, "a****@example.com", out["customer"].(map[string]any)["email"])
}
