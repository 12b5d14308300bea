package status

import (
	"log"

	"github.com/flexradio/flex-sdr/internal/objgraph"
)

// MemoryHandler applies "memory <index> key=value..." status lines.
type MemoryHandler struct {
	Memories *objgraph.Collection[int, objgraph.Memory]
}

func (h MemoryHandler) Apply(line Line) {
	idx, ok := line.SelectorIndex()
	if !ok {
		log.Printf("[status] memory: bad selector %q", line.Selector)
		return
	}
	if line.Removed {
		h.Memories.Remove(idx)
		return
	}

	h.Memories.Mutate(idx, func(cur objgraph.Memory, existed bool) (objgraph.Memory, []string) {
		if !existed {
			cur = objgraph.Memory{Index: idx}
		}
		var changed []string
		for _, f := range line.Fields {
			switch f.Key {
			case "freq":
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
			case "repeater_offset":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.RepeaterOffsetMHz, v)
				}
			case "tone_value":
				if v, ok := ParseFloat(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.ToneHz, v)
				}
			default:
				log.Printf("[status] memory %d: unknown key %q, ignored", idx, f.Key)
			}
		}
		return cur, changed
	})
}
