package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "pi_****", MaskSecret("pi_abc"))
	assert.Equal(t, "pi_****7890", MaskSecret("pi_1234567890"))
	assert.Equal(t, "****", MaskSecret("abcd"))
}

func TestMaskPIIKeepsOperationalFields(t *testing.T) {
	masked := MaskPII(map[string]any{
		"email":        "ana@example.com",
		"status":       "reviewing",
		"owner_phone":  "+593991234567",
		"national_id":  1712345678,
		"shareholders": map[string]any{"tax_id": "1790012345001", "name": "Ana"},
	})

	assert.Equal(t, "****.com", masked["email"])
	assert.Equal(t, "reviewing", masked["status"])
	assert.Equal(t, "****4567", masked["owner_phone"])
	assert.Equal(t, "****", masked["national_id"])

	nested := masked["shareholders"].(map[string]any)
	assert.Equal(t, "****5001", nested["tax_id"])
	assert.Equal(t, "Ana", nested["name"])
}

func TestMaskPIIEmpty(t *testing.T) {
	assert.Nil(t, MaskPII(nil))
	assert.Nil(t, MaskPII(map[string]any{" ": "x"}))
}
