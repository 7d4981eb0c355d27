package pipeline

import "fmt"

// stageEntry pairs a constructed Stage with the registry type name it was
// added under, which snapshots and error messages use.
type stageEntry struct {
	stage    Stage
	typeName string
}

// Pipeline is a strictly ordered list of stages (no arbitrary-topology
// dataflow — see spec.md's Non-goals). Process runs every sample block
// through each stage in registration order, reinterpolating timestamps
// across resizing stages and tracking channel-count transitions.
type Pipeline struct {
	registry   *Registry
	ctx        Context
	stages     []stageEntry
	numChannels int // channel count entering the first stage
}

// New returns an empty Pipeline bound to registry and ctx. numChannels is
// the channel count of blocks passed to Process.
func New(registry *Registry, ctx Context, numChannels int) *Pipeline {
	return &Pipeline{registry: registry, ctx: ctx, numChannels: numChannels}
}

// NumChannels returns the channel count of blocks accepted by Process,
// i.e. the input channel count of the first stage.
func (p *Pipeline) NumChannels() int { return p.numChannels }

// OutputChannels returns the channel count blocks leave the pipeline with,
// after accounting for every stage's OutputChannelCount transition.
func (p *Pipeline) OutputChannels() int {
	ch := p.numChannels
	for _, e := range p.stages {
		ch = e.stage.OutputChannelCount(ch)
	}
	return ch
}

// Len returns the number of stages currently in the pipeline.
func (p *Pipeline) Len() int { return len(p.stages) }

// AddStage looks up name in the registry, constructs a stage with params,
// and appends it to the pipeline.
func (p *Pipeline) AddStage(name string, params Params) error {
	factory := p.registry.Lookup(name)
	if factory == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	stage, err := factory(p.ctx, params)
	if err != nil {
		return fmt.Errorf("pipeline: constructing stage %q: %w", name, err)
	}
	p.stages = append(p.stages, stageEntry{stage: stage, typeName: name})
	return nil
}

// Stages returns the ordered list of constructed stages, for inspection
// (snapshotting, introspection) without exposing the internal entry type.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	for i, e := range p.stages {
		out[i] = e.stage
	}
	return out
}

// Reset restores every stage to its initial state.
func (p *Pipeline) Reset() {
	for _, e := range p.stages {
		e.stage.Reset()
	}
}

// Result is the output of a Process call: the final interleaved sample
// block, its channel count, and the (possibly reinterpolated) timestamp
// block, which is nil iff the input timestamps were nil.
type Result struct {
	Samples    []float32
	Timestamps []float32
	NumChannels int
}

// Process runs buffer (interleaved, numChannels channels) through every
// stage in order. timestamps is nil for sample-based (legacy) processing,
// otherwise must have one entry per input frame (len(buffer)/numChannels).
func (p *Pipeline) Process(buffer []float32, timestamps []float32) (Result, error) {
	if p.numChannels <= 0 {
		return Result{}, fmt.Errorf("%w: numChannels must be positive", ErrShapeMismatch)
	}
	if len(buffer)%p.numChannels != 0 {
		return Result{}, fmt.Errorf("%w: buffer length %d not divisible by %d channels",
			ErrShapeMismatch, len(buffer), p.numChannels)
	}
	if timestamps != nil && len(timestamps) != len(buffer)/p.numChannels {
		return Result{}, fmt.Errorf("%w: timestamps length %d, want %d frames",
			ErrShapeMismatch, len(timestamps), len(buffer)/p.numChannels)
	}

	current := append([]float32(nil), buffer...)
	currentTimestamps := timestamps
	channels := p.numChannels

	for _, e := range p.stages {
		if e.stage.IsResizing() {
			outCap := e.stage.CalcOutputSize(len(current))
			output := make([]float32, outCap)

			written, err := e.stage.ProcessResizing(current, channels, currentTimestamps, output)
			if err != nil {
				return Result{}, fmt.Errorf("pipeline: stage %q: %w", e.typeName, err)
			}

			if currentTimestamps != nil {
				currentTimestamps = reinterpolateTimestamps(
					currentTimestamps, channels, written, e.stage.TimeScaleFactor())
			}

			current = output[:written]
			channels = e.stage.OutputChannelCount(channels)
		} else {
			if err := e.stage.ProcessInPlace(current, channels, currentTimestamps); err != nil {
				return Result{}, fmt.Errorf("pipeline: stage %q: %w", e.typeName, err)
			}
			channels = e.stage.OutputChannelCount(channels)
		}
	}

	return Result{Samples: current, Timestamps: currentTimestamps, NumChannels: channels}, nil
}

// reinterpolateTimestamps maps the old per-frame timestamp grid onto
// newTotalSamples output samples (outChannels implied by
// newTotalSamples/numOutputFrames), per spec §4.2a's exact linear
// interpolation/extrapolation rule, grounded on DspPipeline.cc's
// ProcessWorker::Execute timestamp-adjustment block.
func reinterpolateTimestamps(oldTimestamps []float32, channels, newTotalSamples int, timeScale float64) []float32 {
	inputFrames := len(oldTimestamps)
	if channels <= 0 || inputFrames == 0 {
		return oldTimestamps
	}
	outputFrames := newTotalSamples / channels
	newTimestamps := make([]float32, newTotalSamples)

	lastInputTimestamp := oldTimestamps[inputFrames-1]

	for i := 0; i < outputFrames; i++ {
		inputTime := float64(i) * timeScale
		inputIdx := int(inputTime)
		frac := inputTime - float64(inputIdx)

		var ts float32
		switch {
		case inputIdx >= inputFrames:
			ts = lastInputTimestamp + float32((inputTime-float64(inputFrames-1))*timeScale)
		case inputIdx+1 >= inputFrames:
			ts = oldTimestamps[inputIdx]
		default:
			t0 := oldTimestamps[inputIdx]
			t1 := oldTimestamps[inputIdx+1]
			ts = t0 + float32(frac)*(t1-t0)
		}

		for ch := 0; ch < channels; ch++ {
			newTimestamps[i*channels+ch] = ts
		}
	}

	return newTimestamps
}
