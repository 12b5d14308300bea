package status

import (
	"log"

	"github.com/flexradio/flex-sdr/internal/replyreg"
	"github.com/flexradio/flex-sdr/internal/wire"
)

// SessionSink receives the session-metadata line kinds that aren't
// addressed to a specific object type: the handle banner, the version
// banner, and radio log messages (spec §4.4).
type SessionSink interface {
	HandleVersion(version string)
	HandleHandle(handle uint32)
	HandleMessage(msg wire.Message)
}

// ObjectHandler owns one entity collection's status-line grammar (spec
// §4.4 design rule: "each object type has a dedicated handler that owns
// its entity collection").
type ObjectHandler interface {
	Apply(line Line)
}

// Router is the single consumer of inbound lines, and the status
// router's exclusive writer to the object graph (spec §4.4, §5). It
// dispatches R-lines to the reply registry, H/V/M-lines to the session
// sink, and S-lines to the per-object-type handler table.
type Router struct {
	Replies  *replyreg.Registry
	Session  SessionSink
	Handlers map[string]ObjectHandler

	UnknownReplies int // diagnostic: R-lines with no matching registration
}

// NewRouter builds a router with an empty handler table; callers
// register object-type handlers with RegisterHandler before routing any
// lines.
func NewRouter(replies *replyreg.Registry, session SessionSink) *Router {
	return &Router{
		Replies:  replies,
		Session:  session,
		Handlers: make(map[string]ObjectHandler),
	}
}

// RegisterHandler installs the handler responsible for the given
// status-line object type (e.g. "slice", "pan", "waterfall", "meter",
// "audio_stream", "usb_cable", "memory").
func (r *Router) RegisterHandler(objectType string, h ObjectHandler) {
	r.Handlers[objectType] = h
}

// Route dispatches one parsed inbound line. It never panics on
// malformed content — every sub-parser is defensive per spec §4.4/§7 —
// and a single bad line or token never tears down the session.
func (r *Router) Route(line wire.Line) {
	switch line.Kind {
	case wire.KindReply:
		if !r.Replies.Complete(line.Reply) {
			r.UnknownReplies++
			log.Printf("[status] reply seq %d has no registered sink, dropped", line.Reply.Seq)
		}
	case wire.KindStatus:
		r.routeStatus(line.Status)
	case wire.KindHandle:
		if r.Session != nil {
			r.Session.HandleHandle(line.Handle)
		}
	case wire.KindVersion:
		if r.Session != nil {
			r.Session.HandleVersion(line.Version)
		}
	case wire.KindMessage:
		if r.Session != nil {
			r.Session.HandleMessage(line.Message)
		}
	default:
		log.Printf("[status] dropping line of unhandled kind %q", string(line.Kind))
	}
}

func (r *Router) routeStatus(s wire.Status) {
	body := ParseBody(s.Body)
	if body.ObjectType == "" {
		return
	}
	h, ok := r.Handlers[body.ObjectType]
	if !ok {
		log.Printf("[status] unknown object type %q, dropped", body.ObjectType)
		return
	}
	h.Apply(body)
}
