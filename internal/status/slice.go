package status

import (
	"log"

	"github.com/flexradio/flex-sdr/internal/objgraph"
)

// SliceHandler applies "slice <index> key=value..." status lines to the
// object graph's Slices collection.
type SliceHandler struct {
	Slices *objgraph.Collection[int, objgraph.Slice]
}

func (h SliceHandler) Apply(line Line) {
	idx, ok := line.SelectorIndex()
	if !ok {
		log.Printf("[status] slice: bad selector %q", line.Selector)
		return
	}

	if line.Removed {
		h.Slices.Remove(idx)
		return
	}

	h.Slices.Mutate(idx, func(cur objgraph.Slice, existed bool) (objgraph.Slice, []string) {
		if !existed {
			cur = objgraph.Slice{Index: idx, DSPFlags: make(map[string]bool)}
		}
		if cur.DSPFlags == nil {
			cur.DSPFlags = make(map[string]bool)
		}
		var changed []string
		for _, f := range line.Fields {
			switch f.Key {
			case "rf_frequency", "freq":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.FrequencyMHz, v)
				}
			case "mode":
				setIfChanged(&changed, f.Key, &cur.Mode, f.Value)
			case "filter_lo":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.Filter.Low, v)
				}
			case "filter_hi":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.Filter.High, v)
				}
			case "ant":
				setIfChanged(&changed, f.Key, &cur.Antenna, f.Value)
			case "agc_mode":
				setIfChanged(&changed, f.Key, &cur.AGC, f.Value)
			case "panadapter":
				if sid, ok := ParseStreamID(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.PanadapterStreamID, sid)
				}
			case "client_handle":
				if owner, ok := ParseStreamID(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.OwnerHandle, owner)
				}
			default:
				if on, ok := ParseBool(f.Value); ok {
					if cur.DSPFlags[f.Key] != on {
						cur.DSPFlags[f.Key] = on
						changed = append(changed, f.Key)
					}
				} else {
					log.Printf("[status] slice %d: unknown key %q, ignored", idx, f.Key)
				}
			}
		}
		return cur, changed
	})
}
