package sanitize_test

import (
	"strings"
	"testing"

	"github.com/chloebot/chloe/server/sanitize"
	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "punctuation collapsed to single space",
			raw:  "hello!! world123",
			want: "hello world123",
		},
		{
			name: "mixed formatting noise",
			raw:  "foo...bar,,,baz",
			want: "foo bar baz",
		},
		{
			name: "32 char token redacted",
			raw:  "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4",
			want: "API_KEY",
		},
		{
			name: "token embedded in sentence",
			raw:  "my key is sk_a1b2c3d4e5f6a1b2c3d4e5f6a1b2c please",
			want: "my key is API_KEY please",
		},
		{
			name: "31 chars left alone",
			raw:  strings.Repeat("a", 31),
			want: strings.Repeat("a", 31),
		},
		{
			name: "33 chars left alone",
			raw:  strings.Repeat("a", 33),
			want: strings.Repeat("a", 33),
		},
		{
			name: "collapse then redact",
			raw:  "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4-xxxxxxx",
			want: "API_KEY xxxxxxx",
		},
		{
			name: "accented letters survive",
			raw:  "héllo wörld",
			want: "héllo wörld",
		},
		{
			name: "cjk text survives",
			raw:  "こんにちは",
			want: "こんにちは",
		},
		{
			name: "punctuation collapsed around accented words",
			raw:  "résumé!! ok",
			want: "résumé ok",
		},
		{
			name: "empty input",
			raw:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitize.Clean(tt.raw))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	// For text without secret-shaped tokens, cleaning is idempotent.
	inputs := []string{
		"hello!! world123",
		"plain words only",
		"tabs\tand\nnewlines",
		"unicode ≈ gets collapsed",
	}

	for _, raw := range inputs {
		once := sanitize.Clean(raw)
		assert.Equal(t, once, sanitize.Clean(once), "Clean should be idempotent for %q", raw)
	}
}
