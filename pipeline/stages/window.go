package stages

import (
	"fmt"
	"math"

	"github.com/A-KGeorge/dspx/circular"
	"github.com/A-KGeorge/dspx/pipeline"
	"github.com/A-KGeorge/dspx/toon"
)

// channelWindow tracks a per-channel running window with O(1)-maintained
// sum and sum-of-squares, the same incremental accumulator technique the
// original adapters use (push new sample, evict oldest, adjust running
// totals) rather than re-summing the window every sample.
type channelWindow struct {
	buf   *circular.Buffer
	size  int
	sum   float64
	sumSq float64
}

func newChannelWindow(size int) *channelWindow {
	return &channelWindow{buf: circular.New(size, 0), size: size}
}

func (w *channelWindow) push(x float64) {
	if w.buf.Count() >= w.size {
		old, _ := w.buf.Pop()
		w.sum -= old
		w.sumSq -= old * old
	}
	w.buf.Push(x)
	w.sum += x
	w.sumSq += x * x
}

func (w *channelWindow) mean() float64 {
	if w.buf.Count() == 0 {
		return 0
	}
	return w.sum / float64(w.buf.Count())
}

func (w *channelWindow) variance() float64 {
	n := float64(w.buf.Count())
	if n == 0 {
		return 0
	}
	mean := w.sum / n
	v := w.sumSq/n - mean*mean
	if v < 0 {
		v = 0
	}
	return v
}

func (w *channelWindow) rms() float64 {
	n := float64(w.buf.Count())
	if n == 0 {
		return 0
	}
	return math.Sqrt(w.sumSq / n)
}

func (w *channelWindow) reset() {
	w.buf.Clear()
	w.sum, w.sumSq = 0, 0
}

func (w *channelWindow) serialize(s *toon.Serializer) {
	vals := w.buf.ToSlice()
	arr := make([]float32, len(vals))
	for i, v := range vals {
		arr[i] = float32(v)
	}
	s.WriteFloatArray(arr)
}

func (w *channelWindow) deserialize(d *toon.Deserializer) {
	vals := d.ReadFloatArray()
	w.reset()
	for _, v := range vals {
		w.push(float64(v))
	}
}

// runningWindowStage is the shared implementation behind movingAverage,
// rms, variance, zScoreNormalize, and meanAbsoluteValue: an in-place,
// per-channel running window whose per-sample output is the selected
// statistic over the trailing windowSize samples (spec §4.4).
type runningWindowStage struct {
	name       string
	windowSize int
	channels   []*channelWindow
	compute    func(w *channelWindow, x float64) float64
}

func newRunningWindowStage(name string, windowSize int, compute func(*channelWindow, float64) float64) *runningWindowStage {
	return &runningWindowStage{name: name, windowSize: windowSize, compute: compute}
}

func (s *runningWindowStage) TypeName() string                { return s.name }
func (s *runningWindowStage) IsResizing() bool                 { return false }
func (s *runningWindowStage) OutputChannelCount(in int) int    { return in }
func (s *runningWindowStage) TimeScaleFactor() float64         { return 1 }
func (s *runningWindowStage) CalcOutputSize(in int) int        { return in }

func (s *runningWindowStage) ensureChannels(n int) {
	for len(s.channels) < n {
		s.channels = append(s.channels, newChannelWindow(s.windowSize))
	}
}

func (s *runningWindowStage) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if numChannels <= 0 || len(buf)%numChannels != 0 {
		return fmt.Errorf("%w: %s", pipeline.ErrShapeMismatch, s.name)
	}
	s.ensureChannels(numChannels)
	frames := len(buf) / numChannels
	for f := 0; f < frames; f++ {
		for ch := 0; ch < numChannels; ch++ {
			idx := f*numChannels + ch
			w := s.channels[ch]
			w.push(float64(buf[idx]))
			buf[idx] = float32(s.compute(w, float64(buf[idx])))
		}
	}
	return nil
}

func (s *runningWindowStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: %s is not a resizing stage", pipeline.ErrShapeMismatch, s.name)
}

func (s *runningWindowStage) Reset() {
	for _, w := range s.channels {
		w.reset()
	}
}

func (s *runningWindowStage) SerializeState() []byte {
	ser := toon.NewSerializer(256)
	ser.WriteInt32(int32(s.windowSize))
	ser.WriteInt32(int32(len(s.channels)))
	for _, w := range s.channels {
		w.serialize(ser)
	}
	return ser.Bytes()
}

func (s *runningWindowStage) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	windowSize := int(d.ReadInt32())
	n := int(d.ReadInt32())
	if d.HasError() {
		return pipeline.ErrStateCorrupt
	}
	if windowSize != s.windowSize {
		return fmt.Errorf("%w: %s window size %d, state has %d",
			pipeline.ErrStateShapeMismatch, s.name, s.windowSize, windowSize)
	}
	channels := make([]*channelWindow, n)
	for i := 0; i < n; i++ {
		channels[i] = newChannelWindow(s.windowSize)
		channels[i].deserialize(d)
	}
	if d.HasError() {
		return pipeline.ErrStateCorrupt
	}
	s.channels = channels
	return nil
}

func registerRunningWindowStage(name string, compute func(*channelWindow, float64) float64) {
	pipeline.RegisterDefault(name, func(ctx pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		windowSize, err := frameWindowSamples(p, ctx.SampleRate)
		if err != nil {
			return nil, err
		}
		return newRunningWindowStage(name, windowSize, compute), nil
	})
}

func init() {
	registerRunningWindowStage("movingAverage", func(w *channelWindow, _ float64) float64 {
		return w.mean()
	})
	registerRunningWindowStage("rms", func(w *channelWindow, _ float64) float64 {
		return w.rms()
	})
	registerRunningWindowStage("variance", func(w *channelWindow, _ float64) float64 {
		return w.variance()
	})
	registerRunningWindowStage("meanAbsoluteValue", func(w *channelWindow, _ float64) float64 {
		n := float64(w.buf.Count())
		if n == 0 {
			return 0
		}
		sum := 0.0
		for i := 0; i < w.buf.Count(); i++ {
			sum += math.Abs(w.buf.At(i))
		}
		return sum / n
	})
	registerRunningWindowStage("zScoreNormalize", func(w *channelWindow, x float64) float64 {
		std := math.Sqrt(w.variance())
		if std < 1e-12 {
			return 0
		}
		return (x - w.mean()) / std
	})
}
