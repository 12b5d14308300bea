package objgraph

// Graph is the full per-radio object graph: one typed Collection per
// entity kind from spec §3's data-model table. A session owns exactly
// one Graph; the status router is its only writer.
type Graph struct {
	Slices      *Collection[int, Slice]
	Panadapters *Collection[uint32, Panadapter]
	Waterfalls  *Collection[uint32, Waterfall]
	Meters      *Collection[int, Meter]
	AudioStreams *Collection[uint32, AudioStream]
	USBCables   *Collection[string, USBCable]
	Memories    *Collection[int, Memory]

	// OrphanPackets counts VITA packets whose stream id has no entry in
	// AudioStreams/Panadapters/Waterfalls (spec §4.6 step 3, §8).
	OrphanPackets Counter
}

// New constructs an empty object graph.
func New() *Graph {
	return &Graph{
		Slices:       NewCollection[int, Slice](),
		Panadapters:  NewCollection[uint32, Panadapter](),
		Waterfalls:   NewCollection[uint32, Waterfall](),
		Meters:       NewCollection[int, Meter](),
		AudioStreams: NewCollection[uint32, AudioStream](),
		USBCables:    NewCollection[string, USBCable](),
		Memories:     NewCollection[int, Memory](),
	}
}

// HasStream reports whether id is a known panadapter, waterfall, or
// audio stream id — the lookup the VITA receive path uses to decide
// between dispatching a packet and counting it orphaned (spec §4.6).
func (g *Graph) HasStream(id uint32) bool {
	if _, ok := g.Panadapters.Find(id); ok {
		return true
	}
	if _, ok := g.Waterfalls.Find(id); ok {
		return true
	}
	if _, ok := g.AudioStreams.Find(id); ok {
		return true
	}
	return false
}
