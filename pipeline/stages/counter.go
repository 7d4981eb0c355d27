package stages

import (
	"fmt"
	"math"

	"github.com/A-KGeorge/dspx/circular"
	"github.com/A-KGeorge/dspx/pipeline"
	"github.com/A-KGeorge/dspx/toon"
)

// counterWindowStage implements the "counting" family of running-window
// filters (waveformLength, slopeSignChange, willisonAmplitude) over a
// trailing window: slopeSignChange and willisonAmplitude count
// threshold-crossing events, while waveformLength sums the absolute
// differences between successive samples and ignores threshold, grounded on original_source/adapters/
// WaveformLengthStage.h, SscStage.h, WampStage.h.
type counterWindowStage struct {
	name       string
	windowSize int
	threshold  float64
	channels   []*circular.Buffer
	compute    func(samples []float64, threshold float64) float64
}

func (s *counterWindowStage) TypeName() string             { return s.name }
func (s *counterWindowStage) IsResizing() bool              { return false }
func (s *counterWindowStage) OutputChannelCount(in int) int { return in }
func (s *counterWindowStage) TimeScaleFactor() float64      { return 1 }
func (s *counterWindowStage) CalcOutputSize(in int) int     { return in }

func (s *counterWindowStage) ensureChannels(n int) {
	for len(s.channels) < n {
		s.channels = append(s.channels, circular.New(s.windowSize, 0))
	}
}

func (s *counterWindowStage) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if numChannels <= 0 || len(buf)%numChannels != 0 {
		return fmt.Errorf("%w: %s", pipeline.ErrShapeMismatch, s.name)
	}
	s.ensureChannels(numChannels)
	frames := len(buf) / numChannels
	scratch := make([]float64, 0, s.windowSize)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < numChannels; ch++ {
			idx := f*numChannels + ch
			b := s.channels[ch]
			if b.Count() >= s.windowSize {
				b.Pop()
			}
			b.Push(float64(buf[idx]))
			scratch = scratch[:0]
			for i := 0; i < b.Count(); i++ {
				scratch = append(scratch, b.At(i))
			}
			buf[idx] = float32(s.compute(scratch, s.threshold))
		}
	}
	return nil
}

func (s *counterWindowStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: %s is not a resizing stage", pipeline.ErrShapeMismatch, s.name)
}

func (s *counterWindowStage) Reset() {
	for _, b := range s.channels {
		b.Clear()
	}
}

func (s *counterWindowStage) SerializeState() []byte {
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

func (s *counterWindowStage) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	windowSize := int(d.ReadInt32())
	n := int(d.ReadInt32())
	if windowSize != s.windowSize {
		return fmt.Errorf("%w: %s window size %d, state has %d",
			pipeline.ErrStateShapeMismatch, s.name, s.windowSize, windowSize)
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

func waveformLength(samples []float64, _ float64) float64 {
	sum := 0.0
	for i := 1; i < len(samples); i++ {
		sum += math.Abs(samples[i] - samples[i-1])
	}
	return sum
}

func slopeSignChange(samples []float64, threshold float64) float64 {
	count := 0.0
	for i := 1; i < len(samples)-1; i++ {
		d1 := samples[i] - samples[i-1]
		d2 := samples[i] - samples[i+1]
		if (d1*d2 > 0) && (math.Abs(d1) >= threshold || math.Abs(d2) >= threshold) {
			count++
		}
	}
	return count
}

func willisonAmplitude(samples []float64, threshold float64) float64 {
	count := 0.0
	for i := 1; i < len(samples); i++ {
		if math.Abs(samples[i]-samples[i-1]) > threshold {
			count++
		}
	}
	return count
}

func registerCounterWindowStage(name string, compute func([]float64, float64) float64) {
	pipeline.RegisterDefault(name, func(ctx pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		windowSize, err := frameWindowSamples(p, ctx.SampleRate)
		if err != nil {
			return nil, err
		}
		threshold, err := floatParam(p, "threshold", 0)
		if err != nil {
			return nil, err
		}
		return &counterWindowStage{name: name, windowSize: windowSize, threshold: threshold, compute: compute}, nil
	})
}

func init() {
	registerCounterWindowStage("waveformLength", waveformLength)
	registerCounterWindowStage("slopeSignChange", slopeSignChange)
	registerCounterWindowStage("willisonAmplitude", willisonAmplitude)
}
