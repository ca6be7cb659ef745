package embedding

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// maxContentBytes caps cleaned text before it is sent to a provider.
	// Jina v3 rejects oversized inputs and local models silently degrade,
	// so both paths get the same bound.
	maxContentBytes = 8000

	truncationMarker = "... [truncated]"

	emptyContent         = "Empty content"
	emptyContentAfterOps = "Empty content after cleaning"
)

// CleanText prepares arbitrary text for embedding. The order of the
// steps matters: zero-width characters must go before whitespace
// collapsing or they would survive as word separators.
//
// Steps: NFKD normalize, drop control characters (keeping \n \t \r for
// the whitespace pass), drop zero-width and bidi characters, collapse
// whitespace runs to single spaces, truncate to maxContentBytes.
//
// Degenerate inputs produce the fixed markers "Empty content" and
// "Empty content after cleaning" rather than empty strings, so a
// defective caller still embeds something searchable instead of
// erroring the whole batch.
func CleanText(text string) string {
	if strings.TrimSpace(text) == "" {
		return emptyContent
	}

	text = strings.ToValidUTF8(text, "")
	text = norm.NFKD.String(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strippable(r) {
			continue
		}
		b.WriteRune(r)
	}

	// Fields both collapses runs of whitespace and trims the ends.
	text = strings.Join(strings.Fields(b.String()), " ")

	if len(text) > maxContentBytes {
		cut := maxContentBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + truncationMarker
	}

	if text == "" {
		return emptyContentAfterOps
	}
	return text
}

// strippable reports whether the rune carries no embeddable signal.
// Covers Unicode category C (except the whitespace controls handled by
// the collapse pass) plus zero-width, bidi and line separator runes.
func strippable(r rune) bool {
	switch r {
	case '\n', '\t', '\r':
		return false
	}
	if (r >= 0x200B && r <= 0x200F) || (r >= 0x2028 && r <= 0x202F) || r == 0xFEFF {
		return true
	}
	return unicode.In(r, unicode.C)
}
