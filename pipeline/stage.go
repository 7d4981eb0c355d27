// Package pipeline implements the streaming DSP pipeline executor: an
// ordered list of Stage implementations that process interleaved
// multi-channel float32 sample blocks, with optional parallel timestamp
// blocks carried and reinterpolated across resizing stages.
package pipeline

// Params is the parameter bag passed to a stage Factory. Values come from
// whatever configuration format the caller uses (JSON, TOON, a map
// literal); factories validate required keys and types themselves and
// return ErrInvalidParams on mismatch, mirroring the original's
// constructor-time invalid_argument throws.
type Params map[string]any

// Context carries pipeline-wide configuration available to every stage at
// construction time.
type Context struct {
	SampleRate float64
}

// Stage is the contract every pipeline component implements (spec §4.1).
// A Stage is never called concurrently with itself; the pipeline runs
// stages strictly in order on a single goroutine (spec §5).
type Stage interface {
	// TypeName identifies the stage (e.g. "movingAverage", "rlsFilter").
	TypeName() string

	// IsResizing reports whether this stage changes the number of frames
	// per block. Resizing stages are invoked via ProcessResizing instead
	// of ProcessInPlace.
	IsResizing() bool

	// OutputChannelCount returns the number of output channels this stage
	// produces given inputChannels input channels. Most stages return
	// inputChannels unchanged; filter banks and matrix transforms may not.
	OutputChannelCount(inputChannels int) int

	// TimeScaleFactor returns the multiplier used to reinterpolate
	// timestamps across a resizing stage: > 1 when time is stretched
	// (fewer output frames per input frame), < 1 when compressed, 1 when
	// unused (non-resizing stages always report 1).
	TimeScaleFactor() float64

	// CalcOutputSize returns the buffer capacity (in interleaved samples,
	// not frames) the executor should allocate before calling
	// ProcessResizing. For resizing stages whose true output length
	// depends on input content (e.g. time alignment), this is an upper
	// bound; ProcessResizing reports the actual length.
	CalcOutputSize(inputSamples int) int

	// ProcessInPlace processes an interleaved block of totalSamples
	// samples (frames * numChannels) in place. timestamps is nil in
	// sample-based (legacy) mode, otherwise has one entry per frame.
	ProcessInPlace(buffer []float32, numChannels int, timestamps []float32) error

	// ProcessResizing processes input (length inputSamples) into output
	// (capacity from CalcOutputSize), returning the number of interleaved
	// samples actually written.
	ProcessResizing(input []float32, numChannels int, timestamps []float32, output []float32) (int, error)

	// SerializeState encodes the stage's internal state as a TOON byte
	// stream for snapshot/restore.
	SerializeState() []byte

	// DeserializeState restores internal state from a TOON byte stream
	// previously produced by SerializeState. Returns ErrStateCorrupt on a
	// malformed stream and ErrStateShapeMismatch when the stream's
	// topology doesn't match this stage's configuration.
	DeserializeState(data []byte) error

	// Reset restores the stage to its initial (just-constructed) state.
	Reset()
}

// Factory constructs a Stage from a Context and parameter bag.
type Factory func(ctx Context, params Params) (Stage, error)
