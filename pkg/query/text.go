package query

import (
	"strings"
	"unicode/utf8"
)

// Placeholders for protected spans are delimited by two private-use runes.
// They are removed from user input up front so that a placeholder found
// later in the pipeline is always one the parser generated.
const (
	markOpen  = '\uE000'
	markClose = '\uE001'
)

var (
	markerStripper   = strings.NewReplacer(string(markOpen), "", string(markClose), "")
	quoteNormalizer  = strings.NewReplacer("”", `"`)
	symbolNormalizer = strings.NewReplacer(
		"（", "(",
		"）", ")",
		"　", " ",
	)
)

// sanitize replaces each run of invalid UTF-8 in raw input with U+FFFD, so
// conditions encode to JSON unchanged, and removes the reserved placeholder
// runes.
func sanitize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	if !strings.ContainsAny(s, string(markOpen)+string(markClose)) {
		return s
	}
	return markerStripper.Replace(s)
}

// normalizeQuotes maps the full-width closing quote to an ASCII quote. It
// runs before phrase extraction, which is why it is separate from
// normalizeSymbols: phrase content keeps the brackets and spaces the user
// typed.
func normalizeQuotes(s string) string {
	return quoteNormalizer.Replace(s)
}

// normalizeSymbols maps full-width parentheses and the ideographic space to
// their ASCII forms.
func normalizeSymbols(s string) string {
	return symbolNormalizer.Replace(s)
}

// isBlank reports whether s holds nothing but ASCII and ideographic spaces.
func isBlank(s string) bool {
	return strings.Trim(s, " 　") == ""
}

// fields splits s on runs of ASCII spaces.
func fields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' })
}
