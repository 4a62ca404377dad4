package platform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseName(t *testing.T) {
	assert.Equal(t, "acme_example_com", DatabaseName("acme.example.com"))
	assert.Equal(t, "acme", DatabaseName("acme"))
}

func TestValidateSiteName_Valid(t *testing.T) {
	for _, name := range []string{
		"acme",
		"acme.example.com",
		"a1-b2.example.com",
		"x",
		strings.Repeat("a", 63) + ".com",
	} {
		assert.NoError(t, ValidateSiteName(name), name)
	}
}

func TestValidateSiteName_Invalid(t *testing.T) {
	tests := []struct {
		name string
		site string
	}{
		{"empty", ""},
		{"uppercase", "Acme.com"},
		{"spaces", "acme site"},
		{"leading dash", "-acme.com"},
		{"trailing dash", "acme-.com"},
		{"empty label", "acme..com"},
		{"trailing dot", "acme.com."},
		{"underscore", "acme_site"},
		{"shell chars", "acme;rm -rf"},
		{"path traversal", "../etc"},
		{"label too long", strings.Repeat("a", 64) + ".com"},
		{"name too long", strings.Repeat("abcdefghi.", 26)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, ValidateSiteName(tc.site))
		})
	}
}
