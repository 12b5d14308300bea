// Package objgraph is the process-local mapping of radio entities (spec
// §3, §4.5): slices, panadapters, waterfalls, meters, audio streams, USB
// cables, and memories, keyed by their wire identifier. It is mutated
// only by the status router and read by clients through snapshots and
// per-type change-notification channels.
package objgraph

// Filter [Low, High] Hz, per the Slice entity's demod filter attribute.
type Filter struct {
	Low  float64
	High float64
}

// Slice is a logical receiver/transmitter channel (spec §3 table).
type Slice struct {
	Index int

	FrequencyMHz float64
	Mode         string
	Filter       Filter
	Antenna      string
	AGC          string
	DSPFlags     map[string]bool

	// PanadapterStreamID resolves eventually: the panadapter may arrive
	// before or after its owning slice (spec §3 invariants).
	PanadapterStreamID uint32

	OwnerHandle uint32
}

// Panadapter is a spectrum-display data source (spec §3 table).
type Panadapter struct {
	StreamID uint32

	CenterFrequencyMHz float64
	BandwidthMHz       float64
	MinDBM             float64
	MaxDBM             float64
	Bins               int
	Antenna            string
}

// Waterfall is a time-indexed spectrogram tile stream paired with a
// panadapter (spec §3 table).
type Waterfall struct {
	StreamID uint32

	LineDurationMS    int
	AutoBlackEnabled  bool
	AutoBlackLevel    int
	PanadapterStreamID uint32
}

// Meter is a single named instrument reading (spec §3 table).
type Meter struct {
	Index int

	Name string
	Units string
	Min   float64
	Max   float64

	LatestValue     float64
	LatestTimestamp int64 // unix nanos of the most recent sample
}

// AudioDirection distinguishes receive from transmit audio streams.
type AudioDirection int

const (
	AudioDirectionRX AudioDirection = iota
	AudioDirectionTX
)

// AudioCodec names the payload encoding carried by an audio stream.
type AudioCodec int

const (
	AudioCodecPCM AudioCodec = iota
	AudioCodecOpus
)

// AudioStream is a DAX-family audio channel (spec §3 table).
type AudioStream struct {
	StreamID uint32

	Direction AudioDirection
	Codec     AudioCodec
	GainPct   int // clamped to [0,100], per spec §4.4 design rules
	Muted     bool

	ClientHandle uint32
	DAXChannel   uint8
	SliceIndex   int
}

// USBCableVariant is the tagged-union discriminator for a USB cable
// (spec §9: "tagged sum types, not an inheritance hierarchy").
type USBCableVariant int

const (
	USBCableCAT USBCableVariant = iota
	USBCableBIT
	USBCableBCD
	USBCableLDPA
	USBCablePassthrough
)

// USBCableHeader holds the attributes common to every cable variant.
type USBCableHeader struct {
	Serial string
	Name   string
	Enabled bool
}

// USBCableCATConfig configures a CAT-variant cable.
type USBCableCATConfig struct {
	BaudRate int
	RTSState bool
	DTRState bool
	Band     string
}

// USBCableBITConfig configures a BIT-variant (band output) cable.
type USBCableBITConfig struct {
	OutputBitNumber int
	ActiveLow       bool
}

// USBCableBCDConfig configures a BCD-variant (band code) cable.
type USBCableBCDConfig struct {
	LowestBCDBit int
}

// USBCableLDPAConfig configures an LDPA-variant (low drive PA) cable.
type USBCableLDPAConfig struct {
	LowDriveThresholdDBM float64
}

// USBCable is a radio-side accessory cable, modeled as a header plus
// exactly one populated variant config (spec §3 table, §9).
type USBCable struct {
	Header  USBCableHeader
	Variant USBCableVariant

	CAT         *USBCableCATConfig
	BIT         *USBCableBITConfig
	BCD         *USBCableBCDConfig
	LDPA        *USBCableLDPAConfig
	Passthrough *struct{}
}

// Memory is a stored channel preset (spec §3 table).
type Memory struct {
	Index int

	FrequencyMHz    float64
	Mode            string
	Filter          Filter
	RepeaterOffsetMHz float64
	ToneHz          float64
}
