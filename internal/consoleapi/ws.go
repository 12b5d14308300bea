package consoleapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flexradio/flex-sdr/internal/objgraph"
	"github.com/flexradio/flex-sdr/internal/session"
)

// NewWSHandler adapts the teacher's WSHandler (a blind TCP/UDP byte
// pipe keyed by a host/port query string) into an observer over an
// already-connected *session.Session: every object-graph change and
// every stream-plane sample the session's Broadcaster sink publishes
// goes out as one JSON text frame, and inbound text frames are
// forwarded as session commands rather than raw bytes on the wire.
func NewWSHandler(sess *session.Session, bc *Broadcaster) http.HandlerFunc {
	up := websocket.Upgrader{
		CheckOrigin:       func(*http.Request) bool { return true },
		EnableCompression: false,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = ws.Close() }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 256)
		go pumpGraph(ctx, sess.Graph, out)
		go pumpSamples(ctx, bc, out)

		go func() {
			for {
				_, data, err := ws.ReadMessage()
				if err != nil {
					cancel()
					return
				}
				if _, err := sess.Send(string(data)); err != nil {
					log.Printf("[consoleapi] command send failed: %v", err)
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sess.Events:
				if !ok {
					return
				}
				b, _ := json.Marshal(lifecycleEvent{Type: "session", State: ev.State.String(), Err: errString(ev.Err)})
				if writeText(ws, b) != nil {
					return
				}
			case b, ok := <-out:
				if !ok {
					return
				}
				if writeText(ws, b) != nil {
					return
				}
			}
		}
	}
}

type lifecycleEvent struct {
	Type  string `json:"type"`
	State string `json:"state"`
	Err   string `json:"err,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func writeText(ws *websocket.Conn, b []byte) error {
	_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, b)
}

// pumpGraph fans every collection in g out onto out as change events,
// one goroutine per entity type via pumpCollection.
func pumpGraph(ctx context.Context, g *objgraph.Graph, out chan<- []byte) {
	done := make(chan struct{})
	n := 7
	finish := func() {
		n--
		if n == 0 {
			close(done)
		}
	}
	go func() { pumpCollection(ctx, "slice", g.Slices, out); finish() }()
	go func() { pumpCollection(ctx, "panadapter", g.Panadapters, out); finish() }()
	go func() { pumpCollection(ctx, "waterfall", g.Waterfalls, out); finish() }()
	go func() { pumpCollection(ctx, "meter", g.Meters, out); finish() }()
	go func() { pumpCollection(ctx, "audio_stream", g.AudioStreams, out); finish() }()
	go func() { pumpCollection(ctx, "usb_cable", g.USBCables, out); finish() }()
	go func() { pumpCollection(ctx, "memory", g.Memories, out); finish() }()
	<-done
}

func pumpCollection[K comparable, V any](ctx context.Context, entityType string, col *objgraph.Collection[K, V], out chan<- []byte) {
	ch, _ := col.SubscribeID()
	defer col.Unsubscribe(ch)
	for {
		select {
		case chg, ok := <-ch:
			if !ok {
				return
			}
			entity, found := col.Find(chg.Key)
			b, err := json.Marshal(changeEvent(entityType, chg, entity, found && chg.Kind != objgraph.Removed))
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func pumpSamples(ctx context.Context, bc *Broadcaster, out chan<- []byte) {
	if bc == nil {
		<-ctx.Done()
		return
	}
	ch := bc.Subscribe()
	defer bc.Unsubscribe(ch)
	for {
		select {
		case b, ok := <-ch:
			if !ok {
				return
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
