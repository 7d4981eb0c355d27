package stages

import (
	"fmt"
	"math"

	"github.com/A-KGeorge/dspx/pipeline"
	"github.com/A-KGeorge/dspx/toon"
)

// windowedSincLowpass designs a windowed-sinc FIR lowpass filter with the
// given normalized cutoff (fraction of the sample rate, 0 < fc < 0.5) and
// odd order, grounded on the Hamming-windowed sinc design shared by
// original_source/adapters/InterpolatorStage.h and DecimatorStage.h.
func windowedSincLowpass(fc float64, order int) []float64 {
	coeffs := make([]float64, order)
	center := float64(order-1) / 2
	omega := 2 * math.Pi * fc
	for n := 0; n < order; n++ {
		t := float64(n) - center
		var sinc float64
		if math.Abs(t) < 1e-10 {
			sinc = omega / math.Pi
		} else {
			sinc = math.Sin(omega*t) / (math.Pi * t)
		}
		window := 0.54 - 0.46*math.Cos(2*math.Pi*float64(n)/float64(order-1))
		coeffs[n] = sinc * window
	}
	return coeffs
}

func normalizeGainSum(coeffs []float64) {
	sum := 0.0
	for _, c := range coeffs {
		sum += c
	}
	if sum == 0 {
		return
	}
	for i := range coeffs {
		coeffs[i] /= sum
	}
}

// multirateStage covers interpolate/decimate/resample (§4.7): all three
// share the polyphase ring-buffer structure (per-channel circular state
// of length `order`, per-channel write index), differing only in how
// many output phases are produced per input sample (upFactor) and how
// many input samples are consumed per retained output (downFactor).
// factor==1 on either side degenerates to plain interpolate/decimate.
type multirateStage struct {
	name       string
	upFactor   int
	downFactor int
	order      int
	coeffs     []float64

	state      [][]float64 // per channel, length order
	stateIdx   []int       // per channel write position
	phaseAcc   []int       // per channel decimation phase counter
	numChannels int
}

func newMultirateStage(name string, up, down, order int, sampleRate float64) (*multirateStage, error) {
	if up < 1 || down < 1 {
		return nil, fmt.Errorf("%w: %s factors must be >= 1", pipeline.ErrInvalidParams, name)
	}
	if order < 3 || order%2 == 0 {
		return nil, fmt.Errorf("%w: %s filter order must be odd and >= 3", pipeline.ErrInvalidParams, name)
	}
	g := gcd(up, down)
	up, down = up/g, down/g

	fc := 0.5 / float64(maxInt(up, down))
	coeffs := windowedSincLowpass(fc, order)
	if down > 1 {
		normalizeGainSum(coeffs)
	}
	if up > 1 {
		for i := range coeffs {
			coeffs[i] *= float64(up)
		}
	}
	return &multirateStage{name: name, upFactor: up, downFactor: down, order: order, coeffs: coeffs}, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (s *multirateStage) TypeName() string          { return s.name }
func (s *multirateStage) IsResizing() bool           { return true }
func (s *multirateStage) TimeScaleFactor() float64   { return float64(s.downFactor) / float64(s.upFactor) }
func (s *multirateStage) OutputChannelCount(in int) int { return in }

func (s *multirateStage) CalcOutputSize(inputSamples int) int {
	return (inputSamples*s.upFactor)/s.downFactor + 1
}

func (s *multirateStage) ensureChannels(n int) {
	if s.numChannels == n {
		return
	}
	s.numChannels = n
	s.state = make([][]float64, n)
	s.stateIdx = make([]int, n)
	s.phaseAcc = make([]int, n)
	for ch := range s.state {
		s.state[ch] = make([]float64, s.order)
	}
}

func (s *multirateStage) ProcessInPlace([]float32, int, []float32) error {
	return fmt.Errorf("%w: %s is a resizing stage", pipeline.ErrShapeMismatch, s.name)
}

func (s *multirateStage) ProcessResizing(input []float32, numChannels int, _ []float32, output []float32) (int, error) {
	if numChannels <= 0 || len(input)%numChannels != 0 {
		return 0, fmt.Errorf("%w: %s", pipeline.ErrShapeMismatch, s.name)
	}
	s.ensureChannels(numChannels)
	frames := len(input) / numChannels

	outFrames := 0
	for ch := 0; ch < numChannels; ch++ {
		written := s.processChannel(input, output, ch, numChannels, frames)
		outFrames = written // all channels produce the same count
	}
	return outFrames * numChannels, nil
}

// processChannel runs the shared polyphase state machine for one channel:
// for every input sample, advance the ring buffer and the phase counter by
// upFactor virtual phases; emit one filtered output for every phase that
// lands on a multiple of downFactor. This degenerates to pure interpolation
// (downFactor==1) or pure decimation (upFactor==1) at the extremes.
func (s *multirateStage) processChannel(input []float32, output []float32, ch, numChannels, frames int) int {
	order := s.order
	state := s.state[ch]
	idx := s.stateIdx[ch]
	phase := s.phaseAcc[ch]
	outIdx := 0

	for f := 0; f < frames; f++ {
		x := float64(input[f*numChannels+ch])
		state[idx] = x
		idx = (idx + 1) % order

		for p := 0; p < s.upFactor; p++ {
			phase++
			if phase < s.downFactor {
				continue
			}
			phase -= s.downFactor

			sum := 0.0
			for tap := 0; tap < order; tap++ {
				if tap%s.upFactor != p {
					continue
				}
				pos := (idx + order - 1 - tap/s.upFactor) % order
				sum += s.coeffs[tap] * state[pos]
			}
			output[outIdx*numChannels+ch] = float32(sum)
			outIdx++
		}
	}

	s.stateIdx[ch] = idx
	s.phaseAcc[ch] = phase
	return outIdx
}

func (s *multirateStage) Reset() {
	for ch := range s.state {
		for i := range s.state[ch] {
			s.state[ch][i] = 0
		}
		s.stateIdx[ch] = 0
		s.phaseAcc[ch] = 0
	}
}

func (s *multirateStage) SerializeState() []byte {
	ser := toon.NewSerializer(256)
	ser.WriteInt32(int32(s.numChannels))
	for ch := 0; ch < s.numChannels; ch++ {
		ser.WriteFloatArray(float64SliceTo32(s.state[ch]))
		ser.WriteInt32(int32(s.stateIdx[ch]))
		ser.WriteInt32(int32(s.phaseAcc[ch]))
	}
	return ser.Bytes()
}

func (s *multirateStage) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	n := int(d.ReadInt32())
	s.ensureChannels(n)
	for ch := 0; ch < n; ch++ {
		state := d.ReadFloatArray()
		idx := int(d.ReadInt32())
		phase := int(d.ReadInt32())
		if d.HasError() {
			return pipeline.ErrStateCorrupt
		}
		if len(state) != s.order {
			return fmt.Errorf("%w: %s filter order mismatch", pipeline.ErrStateShapeMismatch, s.name)
		}
		s.state[ch] = float32SliceTo64(state)
		s.stateIdx[ch] = idx
		s.phaseAcc[ch] = phase
	}
	return nil
}

func init() {
	pipeline.RegisterDefault("interpolate", func(ctx pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		factor, err := requireIntParam(p, "factor")
		if err != nil {
			return nil, err
		}
		order, err := intParam(p, "order", 31)
		if err != nil {
			return nil, err
		}
		return newMultirateStage("interpolate", factor, 1, order, ctx.SampleRate)
	})

	pipeline.RegisterDefault("decimate", func(ctx pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		factor, err := requireIntParam(p, "factor")
		if err != nil {
			return nil, err
		}
		order, err := intParam(p, "order", 31)
		if err != nil {
			return nil, err
		}
		return newMultirateStage("decimate", 1, factor, order, ctx.SampleRate)
	})

	pipeline.RegisterDefault("resample", func(ctx pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		up, err := requireIntParam(p, "upFactor")
		if err != nil {
			return nil, err
		}
		down, err := requireIntParam(p, "downFactor")
		if err != nil {
			return nil, err
		}
		order, err := intParam(p, "order", 31)
		if err != nil {
			return nil, err
		}
		return newMultirateStage("resample", up, down, order, ctx.SampleRate)
	})
}
