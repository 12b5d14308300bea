package objgraph

import "sync/atomic"

// Counter is a monotonically increasing diagnostic counter, used for the
// informational metrics spec §7/§8 call for (orphan_packets,
// lost_packets) without tying them to any particular error type.
type Counter struct {
	n atomic.Uint64
}

// Inc increments the counter by one.
func (c *Counter) Inc() { c.n.Add(1) }

// Load returns the current value.
func (c *Counter) Load() uint64 { return c.n.Load() }
