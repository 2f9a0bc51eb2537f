// Package sanitize normalizes raw message text before it is sent to the
// completion backend. This is defensive normalization, not semantic cleanup:
// punctuation noise is collapsed and anything that looks like a pasted
// credential is redacted before the text leaves the process.
package sanitize

import (
	"regexp"
)

var (
	// nonWord matches a maximal run of characters that are not letters,
	// digits or underscore, in the Unicode sense. Accented and CJK text is
	// ordinary prose and must survive the collapse.
	nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

	// secretToken matches a token of exactly 32 ASCII word characters, the
	// shape of many accidentally pasted API keys.
	secretToken = regexp.MustCompile(`\b[a-zA-Z0-9_]{32}\b`)
)

// Placeholder replaces anything that looks like a pasted secret.
const Placeholder = "API_KEY"

// Clean collapses every maximal run of non-word characters (Unicode letters
// and digits count as word characters) to a single space, then replaces
// every 32-character ASCII word token with the API_KEY placeholder. The
// order matters: collapsing first changes which substrings form 32-character
// tokens, so it is part of the contract.
func Clean(raw string) string {
	out := nonWord.ReplaceAllString(raw, " ")
	out = secretToken.ReplaceAllString(out, Placeholder)
	return out
}
