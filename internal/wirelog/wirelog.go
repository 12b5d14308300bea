// Package wirelog implements the optional raw command/reply line logger
// (spec §6 api_log_path): one append-only text file per process, one
// labeled section per session connection, every line timestamped and
// tagged IN or OUT.
package wirelog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Logger owns the log file shared by every session in a process.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	connSeq uint64
}

// Conn is the per-session handle returned by Logger.NewConnection; it
// prefixes every line with a stable label so interleaved sessions in one
// log file stay distinguishable.
type Conn struct {
	parent *Logger
	label  string
}

// Open creates the log file at path, or appends to it if it already
// exists. An empty path
// disables logging entirely: Open returns a nil *Logger, and every
// method on a nil Logger or its Conns is a safe no-op.
func Open(path string) (*Logger, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{file: f}, nil
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

// NewConnection starts a new labeled section for one radio connection,
// identified by its command-channel handle (0 before the H banner
// arrives) and peer address.
func (l *Logger) NewConnection(handle uint32, host string, port int) *Conn {
	if l == nil {
		return nil
	}
	seq := atomic.AddUint64(&l.connSeq, 1)
	label := fmt.Sprintf("#%03d H%08X %s:%d", seq, handle, host, port)
	return &Conn{parent: l, label: label}
}

// Rebind updates the connection label once the real handle is known,
// since NewConnection is typically called before the H banner arrives.
func (c *Conn) Rebind(handle uint32) {
	if c == nil {
		return
	}
	if i := strings.IndexByte(c.label, ' '); i >= 0 {
		if j := strings.IndexByte(c.label[i+1:], ' '); j >= 0 {
			c.label = c.label[:i+1] + fmt.Sprintf("H%08X", handle) + c.label[i+1+j:]
		}
	}
}

// OnRawLine adapts transport.Transport's OnRawLine hook: direction is
// "IN" or "OUT".
func (c *Conn) OnRawLine(direction, line string) {
	if c == nil {
		return
	}
	c.log(direction, line)
}

func (c *Conn) log(direction, msg string) {
	if c == nil || c.parent == nil || c.parent.file == nil {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	d := fixedWidth(strings.ToUpper(direction), 4)
	label := fixedWidth(c.label, 32)
	line := fmt.Sprintf("%s %s %s %s\n", ts, d, label, sanitizeMessage(msg))
	c.parent.mu.Lock()
	_, _ = c.parent.file.WriteString(line)
	c.parent.mu.Unlock()
}

func fixedWidth(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return fmt.Sprintf("%-*s", width, s)
}

func sanitizeMessage(msg string) string {
	msg = strings.TrimRight(msg, "\r\n")
	if msg == "" {
		return "<empty>"
	}
	return msg
}
