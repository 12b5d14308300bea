package status

import (
	"log"

	"github.com/flexradio/flex-sdr/internal/objgraph"
)

// PanadapterHandler applies "pan <stream_id> key=value..." status lines.
type PanadapterHandler struct {
	Panadapters *objgraph.Collection[uint32, objgraph.Panadapter]
}

func (h PanadapterHandler) Apply(line Line) {
	sid, ok := line.SelectorStreamID()
	if !ok {
		log.Printf("[status] pan: bad selector %q", line.Selector)
		return
	}
	if line.Removed {
		h.Panadapters.Remove(sid)
		return
	}

	h.Panadapters.Mutate(sid, func(cur objgraph.Panadapter, existed bool) (objgraph.Panadapter, []string) {
		if !existed {
			cur = objgraph.Panadapter{StreamID: sid}
		}
		var changed []string
		for _, f := range line.Fields {
			switch f.Key {
			case "center":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.CenterFrequencyMHz, v)
				}
			case "bandwidth":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.BandwidthMHz, v)
				}
			case "min_dbm":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.MinDBM, v)
				}
			case "max_dbm":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.MaxDBM, v)
				}
			case "x_pixels", "bins":
				if v, ok := ParseInt(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.Bins, v)
				}
			case "ant":
				setIfChanged(&changed, f.Key, &cur.Antenna, f.Value)
			default:
				log.Printf("[status] pan 0x%08X: unknown key %q, ignored", sid, f.Key)
			}
		}
		return cur, changed
	})
}

// WaterfallHandler applies "waterfall <stream_id> key=value..." lines.
type WaterfallHandler struct {
	Waterfalls *objgraph.Collection[uint32, objgraph.Waterfall]
}

func (h WaterfallHandler) Apply(line Line) {
	sid, ok := line.SelectorStreamID()
	if !ok {
		log.Printf("[status] waterfall: bad selector %q", line.Selector)
		return
	}
	if line.Removed {
		h.Waterfalls.Remove(sid)
		return
	}

	h.Waterfalls.Mutate(sid, func(cur objgraph.Waterfall, existed bool) (objgraph.Waterfall, []string) {
		if !existed {
			cur = objgraph.Waterfall{StreamID: sid}
		}
		var changed []string
		for _, f := range line.Fields {
			switch f.Key {
			case "line_duration":
				if v, ok := ParseInt(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.LineDurationMS, v)
				}
			case "auto_black":
				if on, ok := ParseBool(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.AutoBlackEnabled, on)
				}
			case "black_level":
				if v, ok := ParseInt(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.AutoBlackLevel, ClampPercent(v))
				}
			case "panadapter":
				if v, ok := ParseStreamID(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.PanadapterStreamID, v)
				}
			default:
				log.Printf("[status] waterfall 0x%08X: unknown key %q, ignored", sid, f.Key)
			}
		}
		return cur, changed
	})
}
