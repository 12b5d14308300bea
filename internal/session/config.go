package session

import (
	"net"
	"time"

	"github.com/flexradio/flex-sdr/internal/metrics"
)

// OverflowPolicy is the bounded-queue behavior for a stream consumer
// queue (spec §5, §6 stream_overflow_policy): drop the oldest pending
// record to keep up (spectrum/waterfall, "latest wins") or block the
// producer to preserve strict ordering (meter/audio).
type OverflowPolicy int

const (
	DropOldest OverflowPolicy = iota
	Block
)

// ParseOverflowPolicy maps the spec §6 stream_overflow_policy wire value
// ("drop_oldest" or "block") to an OverflowPolicy, defaulting to
// DropOldest for anything else — config.Load already rejects any other
// string before a Config ever reaches here, so this only needs to
// distinguish the two recognized values.
func ParseOverflowPolicy(s string) OverflowPolicy {
	if s == "block" {
		return Block
	}
	return DropOldest
}

// Config carries the subset of spec §6's recognized options a Session
// needs to open and run a connection.
type Config struct {
	Host string
	Port int // default 4992

	UseTLS     bool
	TrustRoots []byte

	ReplyTimeout time.Duration // default 5s

	LocalBindIP net.IP // forces UDP socket source IP, WAN cross-subnet

	StreamOverflowPolicy OverflowPolicy

	// WAN, when true, attempts a best-effort port mapping via
	// internal/nat and runs a keep-alive ticker that sends a "ping"
	// command over the command channel; nothing is sent on the UDP
	// stream socket.
	WAN bool

	DialTimeout time.Duration // default 9s, matches the teacher's bridge dial

	// APILogPath, if non-empty, records every raw command/reply line to
	// this file via internal/wirelog (spec §6 api_log_path).
	APILogPath string

	// Metrics, if non-nil, receives orphan/lost packet and reply-timeout
	// counts as the session runs. A nil Metrics is a safe no-op.
	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 4992
	}
	if c.ReplyTimeout == 0 {
		c.ReplyTimeout = 5 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 9 * time.Second
	}
	return c
}
