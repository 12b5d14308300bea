package status

import (
	"log"
	"time"

	"github.com/flexradio/flex-sdr/internal/objgraph"
)

// MeterHandler applies "meter <index> key=value..." status lines. Live
// sample values arrive over the VITA meter stream (spec §4.6), not over
// this channel; this handler owns the meter's static definition (name,
// units, low/high range). Any other key, including a value, is logged
// and ignored.
type MeterHandler struct {
	Meters *objgraph.Collection[int, objgraph.Meter]
}

func (h MeterHandler) Apply(line Line) {
	idx, ok := line.SelectorIndex()
	if !ok {
		log.Printf("[status] meter: bad selector %q", line.Selector)
		return
	}
	if line.Removed {
		h.Meters.Remove(idx)
		return
	}

	h.Meters.Mutate(idx, func(cur objgraph.Meter, existed bool) (objgraph.Meter, []string) {
		if !existed {
			cur = objgraph.Meter{Index: idx}
		}
		var changed []string
		for _, f := range line.Fields {
			switch f.Key {
			case "nam":
				setIfChanged(&changed, f.Key, &cur.Name, f.Value)
			case "unit":
				setIfChanged(&changed, f.Key, &cur.Units, f.Value)
			case "low":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.Min, v)
				}
			case "hi":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.Max, v)
				}
			default:
				log.Printf("[status] meter %d: unknown key %q, ignored", idx, f.Key)
			}
		}
		return cur, changed
	})
}

// ApplySample applies a decoded meter sample from the VITA stream (spec
// §4.6 meter decoder): engineering-unit value plus capture timestamp,
// emitted as one notification per sample (Added for a meter index not
// yet in the collection, Updated otherwise).
func (h MeterHandler) ApplySample(index int, value float64, at time.Time) {
	h.Meters.Mutate(index, func(cur objgraph.Meter, existed bool) (objgraph.Meter, []string) {
		if !existed {
			cur = objgraph.Meter{Index: index}
		}
		cur.LatestValue = value
		cur.LatestTimestamp = at.UnixNano()
		return cur, []string{"value"}
	})
}
