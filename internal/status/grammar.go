// Package status implements the status-line router and grammar parser
// from spec §4.4: lines of the form
//
//	<object_type> <selector> key1=value1 key2=value2 ...
//
// with an optional "removed" token, accepted anywhere after the
// selector, denoting deletion.
package status

import (
	"strconv"
	"strings"

	"github.com/flexradio/flex-sdr/internal/wire"
)

// KV is one parsed key/value token. Values use the wire's U+007F space
// substitution and are unescaped here.
type KV struct {
	Key   string
	Value string
}

// Line is a parsed status body: object type, selector token, the
// "removed" flag, and the ordered key/value tokens.
type Line struct {
	ObjectType string
	Selector   string
	Removed    bool
	Fields     []KV
}

// ParseBody tokenizes a status body on whitespace. Parse errors on a
// single token never abort the line (spec §4.4 design rule): a token
// that is neither "removed" nor a key=value pair is simply skipped.
func ParseBody(body string) Line {
	tokens := strings.Fields(body)
	if len(tokens) == 0 {
		return Line{}
	}

	line := Line{ObjectType: tokens[0]}
	rest := tokens[1:]
	if len(rest) > 0 {
		line.Selector = rest[0]
		rest = rest[1:]
	}

	for _, tok := range rest {
		if tok == "removed" {
			line.Removed = true
			continue
		}
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			continue // malformed token, skip and keep processing (§4.4)
		}
		key := tok[:eq]
		value := wire.UnescapeValue(tok[eq+1:])
		line.Fields = append(line.Fields, KV{Key: key, Value: value})
	}
	return line
}

// Get returns the first value for key, if present.
func (l Line) Get(key string) (string, bool) {
	for _, f := range l.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// SelectorIndex parses the selector as a decimal integer (e.g. "slice 3").
func (l Line) SelectorIndex() (int, bool) {
	v, err := strconv.Atoi(l.Selector)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SelectorStreamID parses the selector as a hex stream id (e.g.
// "pan 0x40000001").
func (l Line) SelectorStreamID() (uint32, bool) {
	return ParseStreamID(l.Selector)
}

// ParseStreamID parses a "0x"-prefixed (or bare) hex stream id field.
func ParseStreamID(s string) (uint32, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// ParseFloat parses a decimal value (frequencies are decimal MHz with up
// to 6 fractional digits, spec §4.4), returning ok=false on malformed
// input rather than aborting the line.
func ParseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseBool parses the wire's 0/1 boolean convention (spec §4.4, §8).
func ParseBool(s string) (bool, bool) {
	switch s {
	case "0":
		return false, true
	case "1":
		return true, true
	default:
		return false, false
	}
}

// ParseInt parses a decimal integer field.
func ParseInt(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ClampPercent clamps a level-like value to [0,100] per spec §4.4/§8
// rather than rejecting it.
func ClampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// setIfChanged assigns v into *cur and appends key to *changed only when
// the value actually differs from what is already there. Re-applying an
// identical status line must yield an Updated notification with an
// empty KeysChanged, not a second append of every field it carries
// (spec §8 idempotence).
func setIfChanged[T comparable](changed *[]string, key string, cur *T, v T) {
	if *cur == v {
		return
	}
	*cur = v
	*changed = append(*changed, key)
}
