package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveBuiltinRole(t *testing.T) {
	r := NewRegistry()
	rec := r.Resolve("tester")
	assert.Equal(t, "Tester", rec.DisplayName)
	assert.Contains(t, rec.AllowedTools, "Write")
}

func TestResolveReadOnlyRolesExcludeWrite(t *testing.T) {
	r := NewRegistry()
	for _, role := range []string{"security-reviewer", "devsecops"} {
		rec := r.Resolve(role)
		assert.NotContains(t, rec.AllowedTools, "Write")
		assert.NotContains(t, rec.AllowedTools, "Edit")
	}
}

func TestResolveCustomRole(t *testing.T) {
	r := NewRegistry()
	r.Register("data-scientist", Record{DisplayName: "Data Scientist", Color: "#000000", Icon: "Flask"})
	rec := r.Resolve("data-scientist")
	assert.Equal(t, "Data Scientist", rec.DisplayName)
}

func TestResolveUnknownRoleFallsBack(t *testing.T) {
	r := NewRegistry()
	rec := r.Resolve("astrologer")
	assert.Equal(t, fallbackColor, rec.Color)
	assert.Equal(t, fallbackIcon, rec.Icon)
	assert.Contains(t, rec.SystemPrompt, "astrologer specialist")
}
