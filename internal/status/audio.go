package status

import (
	"log"

	"github.com/flexradio/flex-sdr/internal/objgraph"
)

// AudioStreamHandler applies "audio_stream <stream_id> key=value..."
// status lines. Grounded on the teacher's parseAudioStream token
// scanner, generalized from a one-shot parse into an incremental
// Mutate over the object graph's AudioStreams collection.
type AudioStreamHandler struct {
	AudioStreams *objgraph.Collection[uint32, objgraph.AudioStream]
}

func (h AudioStreamHandler) Apply(line Line) {
	sid, ok := line.SelectorStreamID()
	if !ok {
		log.Printf("[status] audio_stream: bad selector %q", line.Selector)
		return
	}
	if line.Removed {
		h.AudioStreams.Remove(sid)
		return
	}

	h.AudioStreams.Mutate(sid, func(cur objgraph.AudioStream, existed bool) (objgraph.AudioStream, []string) {
		if !existed {
			cur = objgraph.AudioStream{StreamID: sid}
		}
		var changed []string
		for _, f := range line.Fields {
			switch f.Key {
			case "type":
				dir := objgraph.AudioDirectionRX
				if f.Value == "remote_audio_tx" || f.Value == "dax_tx" {
					dir = objgraph.AudioDirectionTX
				}
				setIfChanged(&changed, f.Key, &cur.Direction, dir)
			case "compression":
				codec := objgraph.AudioCodecPCM
				if f.Value == "OPUS" {
					codec = objgraph.AudioCodecOpus
				}
				setIfChanged(&changed, f.Key, &cur.Codec, codec)
			case "gain":
				if v, ok := ParseInt(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.GainPct, ClampPercent(v))
				}
			case "mute":
				if on, ok := ParseBool(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.Muted, on)
				}
			case "client_handle":
				if owner, ok := ParseStreamID(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.ClientHandle, owner)
				}
			case "dax_channel":
				if v, ok := ParseInt(f.Value); ok && v >= 0 && v <= 255 {
					setIfChanged(&changed, f.Key, &cur.DAXChannel, uint8(v))
				}
			case "slice":
				if v, ok := ParseInt(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.SliceIndex, v)
				}
			default:
				log.Printf("[status] audio_stream 0x%08X: unknown key %q, ignored", sid, f.Key)
			}
		}
		return cur, changed
	})
}
