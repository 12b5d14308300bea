// Package consoleapi is the browser-facing observation surface the
// teacher's internal/radio (raw TCP/UDP-over-WebSocket bridge) and
// internal/rtc (WebRTC Opus bridge) packages played for a single
// hand-wired radio. It re-points both onto a live *session.Session:
// object-graph change notifications and stream-plane samples go out as
// typed JSON/RTP instead of the teacher's blind byte passthrough, and
// inbound WebSocket text is forwarded as ordinary session commands.
package consoleapi

import "github.com/flexradio/flex-sdr/internal/objgraph"

// event is the envelope every object-graph notification is marshaled
// into for delivery over a WebSocket text frame.
type event struct {
	Type        string `json:"type"`            // "slice", "panadapter", "waterfall", ...
	Kind        string `json:"kind"`             // "added", "updated", "removed"
	Key         any    `json:"key"`
	KeysChanged []string `json:"keysChanged,omitempty"`
	Entity      any    `json:"entity,omitempty"` // absent on "removed"
}

func changeEvent[K comparable, V any](entityType string, ch objgraph.Change[K], entity V, found bool) event {
	e := event{
		Type:        entityType,
		Kind:        ch.Kind.String(),
		Key:         ch.Key,
		KeysChanged: ch.KeysChanged,
	}
	if found {
		e.Entity = entity
	}
	return e
}
