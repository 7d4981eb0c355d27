package stages

import (
	"fmt"

	"github.com/A-KGeorge/dspx/pipeline"
	"github.com/A-KGeorge/dspx/toon"
)

// rectifyStage takes the absolute value of every sample, grounded on
// original_source/adapters/RectifyStage.h.
type rectifyStage struct{}

func (rectifyStage) TypeName() string             { return "rectify" }
func (rectifyStage) IsResizing() bool              { return false }
func (rectifyStage) OutputChannelCount(in int) int { return in }
func (rectifyStage) TimeScaleFactor() float64      { return 1 }
func (rectifyStage) CalcOutputSize(in int) int     { return in }
func (rectifyStage) Reset()                        {}
func (rectifyStage) SerializeState() []byte        { return nil }
func (rectifyStage) DeserializeState([]byte) error { return nil }
func (rectifyStage) ProcessInPlace(buf []float32, _ int, _ []float32) error {
	for i, v := range buf {
		if v < 0 {
			buf[i] = -v
		}
	}
	return nil
}
func (rectifyStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: rectify is not a resizing stage", pipeline.ErrShapeMismatch)
}

// squareStage squares every sample, grounded on
// original_source/adapters/SquareStage.h.
type squareStage struct{}

func (squareStage) TypeName() string             { return "square" }
func (squareStage) IsResizing() bool              { return false }
func (squareStage) OutputChannelCount(in int) int { return in }
func (squareStage) TimeScaleFactor() float64      { return 1 }
func (squareStage) CalcOutputSize(in int) int     { return in }
func (squareStage) Reset()                        {}
func (squareStage) SerializeState() []byte        { return nil }
func (squareStage) DeserializeState([]byte) error { return nil }
func (squareStage) ProcessInPlace(buf []float32, _ int, _ []float32) error {
	for i, v := range buf {
		buf[i] = v * v
	}
	return nil
}
func (squareStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: square is not a resizing stage", pipeline.ErrShapeMismatch)
}

// differentiatorStage outputs the first difference per channel, grounded
// on original_source/adapters/DifferentiatorStage.h: y[n] = x[n] - x[n-1],
// with per-channel previous-sample state carried across blocks.
type differentiatorStage struct {
	prev []float32 // previous sample, per channel
}

func (s *differentiatorStage) TypeName() string             { return "differentiator" }
func (s *differentiatorStage) IsResizing() bool              { return false }
func (s *differentiatorStage) OutputChannelCount(in int) int { return in }
func (s *differentiatorStage) TimeScaleFactor() float64      { return 1 }
func (s *differentiatorStage) CalcOutputSize(in int) int     { return in }
func (s *differentiatorStage) Reset()                        { s.prev = nil }

func (s *differentiatorStage) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if numChannels <= 0 || len(buf)%numChannels != 0 {
		return fmt.Errorf("%w: differentiator", pipeline.ErrShapeMismatch)
	}
	for len(s.prev) < numChannels {
		s.prev = append(s.prev, 0)
	}
	frames := len(buf) / numChannels
	for f := 0; f < frames; f++ {
		for ch := 0; ch < numChannels; ch++ {
			idx := f*numChannels + ch
			cur := buf[idx]
			buf[idx] = cur - s.prev[ch]
			s.prev[ch] = cur
		}
	}
	return nil
}
func (s *differentiatorStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: differentiator is not a resizing stage", pipeline.ErrShapeMismatch)
}
func (s *differentiatorStage) SerializeState() []byte {
	ser := toon.NewSerializer(32)
	ser.WriteFloatArray(s.prev)
	return ser.Bytes()
}
func (s *differentiatorStage) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	prev := d.ReadFloatArray()
	if d.HasError() {
		return pipeline.ErrStateCorrupt
	}
	s.prev = prev
	return nil
}

// peakDetectStage replaces each sample with 1 when it's a local maximum
// above threshold (comparing against the previous two samples, so it
// lags by one sample), 0 otherwise, grounded on
// original_source/adapters/PeakDetectionStage.h.
type peakDetectStage struct {
	threshold float64
	prev1     []float32
	prev2     []float32
}

func (s *peakDetectStage) TypeName() string             { return "peakDetect" }
func (s *peakDetectStage) IsResizing() bool              { return false }
func (s *peakDetectStage) OutputChannelCount(in int) int { return in }
func (s *peakDetectStage) TimeScaleFactor() float64      { return 1 }
func (s *peakDetectStage) CalcOutputSize(in int) int     { return in }
func (s *peakDetectStage) Reset()                        { s.prev1, s.prev2 = nil, nil }

func (s *peakDetectStage) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if numChannels <= 0 || len(buf)%numChannels != 0 {
		return fmt.Errorf("%w: peakDetect", pipeline.ErrShapeMismatch)
	}
	for len(s.prev1) < numChannels {
		s.prev1 = append(s.prev1, 0)
		s.prev2 = append(s.prev2, 0)
	}
	frames := len(buf) / numChannels
	for f := 0; f < frames; f++ {
		for ch := 0; ch < numChannels; ch++ {
			idx := f*numChannels + ch
			cur := buf[idx]
			isPeak := s.prev1[ch] > s.prev2[ch] && s.prev1[ch] > float32(s.threshold) && s.prev1[ch] >= cur
			s.prev2[ch] = s.prev1[ch]
			s.prev1[ch] = cur
			if isPeak {
				buf[idx] = 1
			} else {
				buf[idx] = 0
			}
		}
	}
	return nil
}
func (s *peakDetectStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: peakDetect is not a resizing stage", pipeline.ErrShapeMismatch)
}
func (s *peakDetectStage) SerializeState() []byte {
	ser := toon.NewSerializer(32)
	ser.WriteDouble(s.threshold)
	ser.WriteFloatArray(s.prev1)
	ser.WriteFloatArray(s.prev2)
	return ser.Bytes()
}
func (s *peakDetectStage) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	d.ReadDouble()
	s.prev1 = d.ReadFloatArray()
	s.prev2 = d.ReadFloatArray()
	if d.HasError() {
		return pipeline.ErrStateCorrupt
	}
	return nil
}

// channelSelectStage is a resizing (channel-count-changing) stage that
// keeps only the configured channel indices, grounded on
// original_source/adapters/ChannelSelectStage.h /
// ChannelSelectorStage.h.
type channelSelectStage struct {
	indices []int
}

func (s *channelSelectStage) TypeName() string           { return "channelSelect" }
func (s *channelSelectStage) IsResizing() bool            { return true }
func (s *channelSelectStage) TimeScaleFactor() float64    { return 1 }
func (s *channelSelectStage) Reset()                      {}
func (s *channelSelectStage) SerializeState() []byte      { return nil }
func (s *channelSelectStage) DeserializeState([]byte) error { return nil }

func (s *channelSelectStage) OutputChannelCount(int) int { return len(s.indices) }

func (s *channelSelectStage) CalcOutputSize(inSamples int) int {
	// Conservative: caller doesn't know inputChannels here, so this is
	// refined by the executor using the actual write count from
	// ProcessResizing; pass inSamples through as an upper bound.
	return inSamples
}

func (s *channelSelectStage) ProcessInPlace([]float32, int, []float32) error {
	return fmt.Errorf("%w: channelSelect is a resizing stage", pipeline.ErrShapeMismatch)
}

func (s *channelSelectStage) ProcessResizing(input []float32, numChannels int, _ []float32, output []float32) (int, error) {
	if numChannels <= 0 || len(input)%numChannels != 0 {
		return 0, fmt.Errorf("%w: channelSelect", pipeline.ErrShapeMismatch)
	}
	for _, idx := range s.indices {
		if idx < 0 || idx >= numChannels {
			return 0, fmt.Errorf("%w: channelSelect index %d out of range [0,%d)",
				pipeline.ErrInvalidParams, idx, numChannels)
		}
	}
	frames := len(input) / numChannels
	written := 0
	for f := 0; f < frames; f++ {
		for _, idx := range s.indices {
			output[written] = input[f*numChannels+idx]
			written++
		}
	}
	return written, nil
}

func init() {
	pipeline.RegisterDefault("rectify", func(pipeline.Context, pipeline.Params) (pipeline.Stage, error) {
		return rectifyStage{}, nil
	})
	pipeline.RegisterDefault("square", func(pipeline.Context, pipeline.Params) (pipeline.Stage, error) {
		return squareStage{}, nil
	})
	pipeline.RegisterDefault("differentiator", func(pipeline.Context, pipeline.Params) (pipeline.Stage, error) {
		return &differentiatorStage{}, nil
	})
	pipeline.RegisterDefault("peakDetect", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		threshold, err := floatParam(p, "threshold", 0)
		if err != nil {
			return nil, err
		}
		return &peakDetectStage{threshold: threshold}, nil
	})
	pipeline.RegisterDefault("channelSelect", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		v, ok := p["channels"]
		if !ok {
			return nil, fmt.Errorf("%w: channelSelect requires \"channels\"", pipeline.ErrInvalidParams)
		}
		var indices []int
		switch s := v.(type) {
		case []int:
			indices = s
		case []any:
			for _, e := range s {
				f, ok := e.(float64)
				if !ok {
					return nil, fmt.Errorf("%w: channelSelect channel indices must be numeric", pipeline.ErrInvalidParams)
				}
				indices = append(indices, int(f))
			}
		default:
			return nil, fmt.Errorf("%w: channelSelect \"channels\" must be an index list", pipeline.ErrInvalidParams)
		}
		return &channelSelectStage{indices: indices}, nil
	})
}
