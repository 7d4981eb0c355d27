package stages

import (
	"fmt"

	"github.com/A-KGeorge/dspx/circular"
	"github.com/A-KGeorge/dspx/pipeline"
	"github.com/A-KGeorge/dspx/toon"
)

// regressionStage tracks each channel's sliding window for linear
// regression (§4.10): x is always 0..windowSize-1 (sample position within
// the window), so meanX and sumXX are precomputed once; only meanY and
// the cross term need recomputing per sample, grounded on
// original_source/adapters/LinearRegressionStage.h's policy-templated
// design (collapsed here into a `policy` string that ProcessInPlace
// switches on, one of four output modes: slope, intercept, residual,
// prediction).
type regressionStage struct {
	windowSize int
	policy     string // "slope", "intercept", "residual", "prediction"
	meanX      float64
	sumXX      float64
	channels   []*circular.Buffer
}

func newRegressionStage(windowSize int, policy string) (*regressionStage, error) {
	if windowSize < 2 {
		return nil, fmt.Errorf("%w: linear regression window size must be at least 2", pipeline.ErrInvalidParams)
	}
	switch policy {
	case "slope", "intercept", "residual", "prediction":
	default:
		return nil, fmt.Errorf("%w: unknown linear regression policy %q", pipeline.ErrInvalidParams, policy)
	}
	meanX := float64(windowSize-1) / 2.0
	sumXX := 0.0
	for i := 0; i < windowSize; i++ {
		xc := float64(i) - meanX
		sumXX += xc * xc
	}
	return &regressionStage{windowSize: windowSize, policy: policy, meanX: meanX, sumXX: sumXX}, nil
}

func (s *regressionStage) TypeName() string             { return s.policy }
func (s *regressionStage) IsResizing() bool              { return false }
func (s *regressionStage) OutputChannelCount(in int) int { return in }
func (s *regressionStage) TimeScaleFactor() float64      { return 1 }
func (s *regressionStage) CalcOutputSize(in int) int     { return in }

func (s *regressionStage) ensureChannels(n int) {
	for len(s.channels) < n {
		s.channels = append(s.channels, circular.New(s.windowSize, 0))
	}
}

func (s *regressionStage) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if numChannels <= 0 || len(buf)%numChannels != 0 {
		return fmt.Errorf("%w: %s regression", pipeline.ErrShapeMismatch, s.policy)
	}
	s.ensureChannels(numChannels)
	frames := len(buf) / numChannels

	for f := 0; f < frames; f++ {
		for ch := 0; ch < numChannels; ch++ {
			idx := f*numChannels + ch
			b := s.channels[ch]
			y := float64(buf[idx])
			if b.Count() >= s.windowSize {
				b.Pop()
			}
			b.Push(y)
			if b.Count() < s.windowSize {
				buf[idx] = 0
				continue
			}

			meanY := 0.0
			for i := 0; i < s.windowSize; i++ {
				meanY += b.At(i)
			}
			meanY /= float64(s.windowSize)

			sumXY := 0.0
			for i := 0; i < s.windowSize; i++ {
				sumXY += (float64(i) - s.meanX) * (b.At(i) - meanY)
			}

			slope := 0.0
			if s.sumXX > 1e-10 {
				slope = sumXY / s.sumXX
			}
			intercept := meanY - slope*s.meanX
			xLast := float64(s.windowSize - 1)

			switch s.policy {
			case "slope":
				buf[idx] = float32(slope)
			case "intercept":
				buf[idx] = float32(intercept)
			case "residual":
				buf[idx] = float32(y - (slope*xLast + intercept))
			case "prediction":
				buf[idx] = float32(slope*xLast + intercept)
			}
		}
	}
	return nil
}

func (s *regressionStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: %s is not a resizing stage", pipeline.ErrShapeMismatch, s.policy)
}

func (s *regressionStage) Reset() {
	for _, b := range s.channels {
		b.Clear()
	}
}

func (s *regressionStage) SerializeState() []byte {
	ser := toon.NewSerializer(128)
	ser.WriteInt32(int32(s.windowSize))
	ser.WriteInt32(int32(len(s.channels)))
	for _, b := range s.channels {
		vals := b.ToSlice()
		arr := make([]float32, len(vals))
		for i, v := range vals {
			arr[i] = float32(v)
		}
		ser.WriteFloatArray(arr)
	}
	return ser.Bytes()
}

func (s *regressionStage) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	windowSize := int(d.ReadInt32())
	n := int(d.ReadInt32())
	if windowSize != s.windowSize {
		return fmt.Errorf("%w: %s window size %d, state has %d",
			pipeline.ErrStateShapeMismatch, s.policy, s.windowSize, windowSize)
	}
	channels := make([]*circular.Buffer, n)
	for i := 0; i < n; i++ {
		vals := d.ReadFloatArray()
		b := circular.New(s.windowSize, 0)
		for _, v := range vals {
			b.Push(float64(v))
		}
		channels[i] = b
	}
	if d.HasError() {
		return pipeline.ErrStateCorrupt
	}
	s.channels = channels
	return nil
}

func init() {
	register := func(name, policy string) {
		pipeline.RegisterDefault(name, func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
			windowSize, err := requireIntParam(p, "windowSize")
			if err != nil {
				return nil, err
			}
			return newRegressionStage(windowSize, policy)
		})
	}
	register("linearRegressionSlope", "slope")
	register("linearRegressionIntercept", "intercept")
	register("linearRegressionResidual", "residual")
	register("linearRegressionPrediction", "prediction")
}
