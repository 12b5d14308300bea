package wire

import "strings"

// spaceSubstitute is U+007F (DEL), used on the wire in place of a literal
// space inside a value so that space-delimited tokenization still works.
const spaceSubstitute rune = '\x7f'

// EscapeValue replaces literal spaces with the wire's space substitute,
// for use when building an outbound value that must survive
// space-delimited tokenization.
func EscapeValue(s string) string {
	if !strings.ContainsRune(s, ' ') {
		return s
	}
	return strings.ReplaceAll(s, " ", string(spaceSubstitute))
}

// UnescapeValue reverses EscapeValue on a value received from the radio.
func UnescapeValue(s string) string {
	if !strings.ContainsRune(s, spaceSubstitute) {
		return s
	}
	return strings.ReplaceAll(s, string(spaceSubstitute), " ")
}
