// Package wire implements the FlexRadio text line framing and VITA-49
// packet codec described by the command/reply and stream protocols.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmbeddedNewline is returned when a command body contains a literal
// line feed, which can never be sent as a single framed line.
var ErrEmbeddedNewline = errors.New("wire: command contains embedded newline")

// LineKind classifies the first character of an inbound or outbound line.
type LineKind byte

const (
	KindCommand LineKind = 'C'
	KindReply   LineKind = 'R'
	KindStatus  LineKind = 'S'
	KindMessage LineKind = 'M'
	KindVersion LineKind = 'V'
	KindHandle  LineKind = 'H'
)

// Command is a client→radio request line: "C<seq>|<command>".
type Command struct {
	Seq  uint32
	Text string
}

// Encode renders the command as a framed line, without the trailing LF.
func (c Command) Encode() (string, error) {
	if strings.ContainsAny(c.Text, "\r\n") {
		return "", ErrEmbeddedNewline
	}
	return fmt.Sprintf("C%d|%s", c.Seq, c.Text), nil
}

// Reply is a radio→client response line: "R<seq>|<hex_status>|<message>".
type Reply struct {
	Seq     uint32
	Status  uint32 // 0 == success
	Message string
}

// Success reports whether the reply carries a zero status code.
func (r Reply) Success() bool { return r.Status == 0 }

// Status is an asynchronous status line: "S<handle>|<status_body>".
type Status struct {
	Handle uint32
	Body   string
}

// Message is a log line from the radio: "M<hex_level>|<text>".
type Message struct {
	Level uint32
	Text  string
}

// Line is the result of parsing one inbound record.
type Line struct {
	Kind    LineKind
	Command Command
	Reply   Reply
	Status  Status
	Message Message
	Version string // valid when Kind == KindVersion
	Handle  uint32 // valid when Kind == KindHandle
}

// ParseLine classifies and decodes one framed line (without its trailing
// LF, if any). Only the first two '|' separators are honored; the
// remaining body is taken verbatim, so message/status payloads may
// themselves contain pipe characters.
func ParseLine(raw string) (Line, error) {
	raw = strings.TrimRight(raw, "\r\n")
	if raw == "" {
		return Line{}, fmt.Errorf("wire: empty line")
	}
	kind := LineKind(raw[0])
	rest := raw[1:]

	switch kind {
	case KindCommand:
		seqStr, body, _ := cutPipe(rest)
		seq, err := parseUint32(seqStr, 10)
		if err != nil {
			return Line{}, fmt.Errorf("wire: bad command seq %q: %w", seqStr, err)
		}
		return Line{Kind: kind, Command: Command{Seq: seq, Text: body}}, nil

	case KindReply:
		seqStr, tail, ok := cutPipe(rest)
		if !ok {
			return Line{}, fmt.Errorf("wire: malformed reply line %q", raw)
		}
		statusStr, msg, _ := cutPipe(tail)
		seq, err := parseUint32(seqStr, 10)
		if err != nil {
			return Line{}, fmt.Errorf("wire: bad reply seq %q: %w", seqStr, err)
		}
		status, err := parseUint32(statusStr, 16)
		if err != nil {
			return Line{}, fmt.Errorf("wire: bad reply status %q: %w", statusStr, err)
		}
		return Line{Kind: kind, Reply: Reply{Seq: seq, Status: status, Message: msg}}, nil

	case KindStatus:
		handleStr, body, ok := cutPipe(rest)
		if !ok {
			return Line{}, fmt.Errorf("wire: malformed status line %q", raw)
		}
		handle, err := parseUint32(trimHexPrefix(handleStr), 16)
		if err != nil {
			return Line{}, fmt.Errorf("wire: bad status handle %q: %w", handleStr, err)
		}
		return Line{Kind: kind, Status: Status{Handle: handle, Body: body}}, nil

	case KindMessage:
		levelStr, text, _ := cutPipe(rest)
		level, err := parseUint32(trimHexPrefix(levelStr), 16)
		if err != nil {
			return Line{}, fmt.Errorf("wire: bad message level %q: %w", levelStr, err)
		}
		return Line{Kind: kind, Message: Message{Level: level, Text: text}}, nil

	case KindVersion:
		return Line{Kind: kind, Version: rest}, nil

	case KindHandle:
		handle, err := parseUint32(trimHexPrefix(rest), 16)
		if err != nil {
			return Line{}, fmt.Errorf("wire: bad handle %q: %w", rest, err)
		}
		return Line{Kind: kind, Handle: handle}, nil

	default:
		return Line{}, fmt.Errorf("wire: unknown line kind %q", string(kind))
	}
}

// cutPipe splits on the first '|', reporting whether one was found.
func cutPipe(s string) (before, after string, found bool) {
	i := strings.IndexByte(s, '|')
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

func trimHexPrefix(s string) string {
	return strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
}

func parseUint32(s string, base int) (uint32, error) {
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
