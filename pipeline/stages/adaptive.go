package stages

import (
	"fmt"

	"github.com/A-KGeorge/dspx/internal/vecmath"
	"github.com/A-KGeorge/dspx/pipeline"
	"github.com/A-KGeorge/dspx/toon"
)

// lmsFilter implements the least-mean-squares adaptive filter (§4.11),
// grounded on the adaptive-filter family in original_source (RlsFilter.h's
// sibling LMS algorithm referenced by spec.md §4.11): weights adapt by a
// step proportional to the instantaneous error, optionally normalised by
// the input history's energy and optionally leaked toward zero.
type lmsFilter struct {
	numTaps      int
	mu           float64
	normalized   bool
	leak         float64
	weights      []float64
	history      []float64 // x_hist[0] is most recent
}

func newLMSFilter(numTaps int, mu float64, normalized bool, leak float64) *lmsFilter {
	return &lmsFilter{
		numTaps: numTaps,
		mu:      mu,
		normalized: normalized,
		leak:    leak,
		weights: make([]float64, numTaps),
		history: make([]float64, numTaps),
	}
}

func (f *lmsFilter) processSample(x, d float64) float64 {
	copy(f.history[1:], f.history[:f.numTaps-1])
	f.history[0] = x

	yHat := vecmath.DotProduct(f.weights, f.history)
	e := d - yHat

	muEff := f.mu
	if f.normalized {
		energy := vecmath.DotProduct(f.history, f.history)
		muEff = f.mu / (energy + 1e-12)
	}

	for k := 0; k < f.numTaps; k++ {
		f.weights[k] = (1-f.leak)*f.weights[k] + muEff*e*f.history[k]
	}
	return e
}

func (f *lmsFilter) reset() {
	for i := range f.weights {
		f.weights[i] = 0
	}
	for i := range f.history {
		f.history[i] = 0
	}
}

// rlsFilter implements the recursive-least-squares adaptive filter
// (§4.11), grounded on original_source/core/RlsFilter.h: maintains a
// dense N×N inverse-covariance matrix P (row-major) for faster
// convergence than LMS at O(N²) per-sample cost. The update order
// (gain vector, error, weight update, covariance update) matches
// RlsFilter.h::processSample exactly.
type rlsFilter struct {
	numTaps int
	lambda  float64
	delta   float64
	weights []float64
	p       []float64 // N*N, row-major
	history []float64

	px      []float64 // scratch: P * x
	gain    []float64 // scratch: Kalman gain
}

func newRLSFilter(numTaps int, lambda, delta float64) *rlsFilter {
	f := &rlsFilter{
		numTaps: numTaps,
		lambda:  lambda,
		delta:   delta,
		weights: make([]float64, numTaps),
		p:       make([]float64, numTaps*numTaps),
		history: make([]float64, numTaps),
		px:      make([]float64, numTaps),
		gain:    make([]float64, numTaps),
	}
	f.initP()
	return f
}

func (f *rlsFilter) initP() {
	for i := range f.p {
		f.p[i] = 0
	}
	for i := 0; i < f.numTaps; i++ {
		f.p[i*f.numTaps+i] = f.delta
	}
}

func (f *rlsFilter) processSample(x, d float64) float64 {
	n := f.numTaps
	copy(f.history[1:], f.history[:n-1])
	f.history[0] = x

	// 1. Px = P * x
	for i := 0; i < n; i++ {
		f.px[i] = vecmath.DotProduct(f.p[i*n:i*n+n], f.history)
	}
	// 2. scalar g_d = lambda + x^T P x
	gainDenom := f.lambda + vecmath.DotProduct(f.history, f.px)
	// 3. Kalman gain k = Px / g_d
	for i := 0; i < n; i++ {
		f.gain[i] = f.px[i] / gainDenom
	}
	// 4. error e = d - w^T x
	yHat := vecmath.DotProduct(f.weights, f.history)
	e := d - yHat
	// 5. weight update w = w + k*e
	for i := 0; i < n; i++ {
		f.weights[i] += f.gain[i] * e
	}
	// 6. covariance update P = (1/lambda) * (P - k * (Px)^T)
	invLambda := 1.0 / f.lambda
	for i := 0; i < n; i++ {
		row := f.p[i*n : i*n+n]
		ki := f.gain[i]
		for j := 0; j < n; j++ {
			row[j] = invLambda * (row[j] - ki*f.px[j])
		}
	}
	return e
}

func (f *rlsFilter) reset() {
	for i := range f.weights {
		f.weights[i] = 0
	}
	for i := range f.history {
		f.history[i] = 0
	}
	f.initP()
}

// adaptiveStageCore is the shared in-place implementation for the
// two-channel adaptive filter stages: channel 0 is the primary signal,
// channel 1 the desired signal, and the error e[n] is written to both
// output channels (spec §4.11).
type adaptiveStageCore struct {
	name string
	lms  *lmsFilter
	rls  *rlsFilter
}

func (s *adaptiveStageCore) TypeName() string             { return s.name }
func (s *adaptiveStageCore) IsResizing() bool              { return false }
func (s *adaptiveStageCore) OutputChannelCount(in int) int { return in }
func (s *adaptiveStageCore) TimeScaleFactor() float64      { return 1 }
func (s *adaptiveStageCore) CalcOutputSize(in int) int     { return in }

func (s *adaptiveStageCore) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if numChannels != 2 {
		return fmt.Errorf("%w: %s requires exactly 2 channels (primary, desired)",
			pipeline.ErrShapeMismatch, s.name)
	}
	frames := len(buf) / 2
	for f := 0; f < frames; f++ {
		x := float64(buf[f*2])
		d := float64(buf[f*2+1])
		var e float64
		if s.lms != nil {
			e = s.lms.processSample(x, d)
		} else {
			e = s.rls.processSample(x, d)
		}
		buf[f*2] = float32(e)
		buf[f*2+1] = float32(e)
	}
	return nil
}

func (s *adaptiveStageCore) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: %s is not a resizing stage", pipeline.ErrShapeMismatch, s.name)
}

func (s *adaptiveStageCore) Reset() {
	if s.lms != nil {
		s.lms.reset()
	}
	if s.rls != nil {
		s.rls.reset()
	}
}

func (s *adaptiveStageCore) SerializeState() []byte {
	ser := toon.NewSerializer(256)
	if s.lms != nil {
		ser.WriteBool(true) // isLMS
		ser.WriteInt32(int32(s.lms.numTaps))
		ser.WriteFloatArray(float64SliceTo32(s.lms.weights))
		ser.WriteFloatArray(float64SliceTo32(s.lms.history))
		return ser.Bytes()
	}
	ser.WriteBool(false)
	ser.WriteInt32(int32(s.rls.numTaps))
	ser.WriteFloatArray(float64SliceTo32(s.rls.weights))
	ser.WriteFloatArray(float64SliceTo32(s.rls.p))
	ser.WriteFloatArray(float64SliceTo32(s.rls.history))
	return ser.Bytes()
}

func (s *adaptiveStageCore) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	isLMS := d.ReadBool()
	n := int(d.ReadInt32())
	if isLMS {
		if s.lms == nil || s.lms.numTaps != n {
			return fmt.Errorf("%w: %s tap count mismatch", pipeline.ErrStateShapeMismatch, s.name)
		}
		s.lms.weights = float32SliceTo64(d.ReadFloatArray())
		s.lms.history = float32SliceTo64(d.ReadFloatArray())
	} else {
		if s.rls == nil || s.rls.numTaps != n {
			return fmt.Errorf("%w: %s tap count mismatch", pipeline.ErrStateShapeMismatch, s.name)
		}
		s.rls.weights = float32SliceTo64(d.ReadFloatArray())
		s.rls.p = float32SliceTo64(d.ReadFloatArray())
		s.rls.history = float32SliceTo64(d.ReadFloatArray())
	}
	if d.HasError() {
		return pipeline.ErrStateCorrupt
	}
	return nil
}

func float64SliceTo32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func float32SliceTo64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func init() {
	pipeline.RegisterDefault("lmsFilter", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		numTaps, err := requireIntParam(p, "numTaps")
		if err != nil {
			return nil, err
		}
		if numTaps <= 0 {
			return nil, fmt.Errorf("%w: lmsFilter numTaps must be positive", pipeline.ErrInvalidParams)
		}
		mu, err := requireFloatParam(p, "learningRate")
		if err != nil {
			return nil, err
		}
		normalized := boolParam(p, "normalized", false)
		leak, err := floatParam(p, "lambda", 0)
		if err != nil {
			return nil, err
		}
		if leak < 0 || leak >= 1 {
			return nil, fmt.Errorf("%w: lmsFilter lambda (leak) must be in [0,1)", pipeline.ErrInvalidParams)
		}
		return &adaptiveStageCore{name: "lmsFilter", lms: newLMSFilter(numTaps, mu, normalized, leak)}, nil
	})

	pipeline.RegisterDefault("rlsFilter", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		numTaps, err := requireIntParam(p, "numTaps")
		if err != nil {
			return nil, err
		}
		if numTaps <= 0 {
			return nil, fmt.Errorf("%w: rlsFilter numTaps must be positive", pipeline.ErrInvalidParams)
		}
		lambda, err := requireFloatParam(p, "lambda")
		if err != nil {
			return nil, err
		}
		if lambda <= 0 || lambda > 1 {
			return nil, fmt.Errorf("%w: rlsFilter lambda must be in (0,1]", pipeline.ErrInvalidParams)
		}
		delta, err := floatParam(p, "delta", 0.01)
		if err != nil {
			return nil, err
		}
		if delta <= 0 {
			return nil, fmt.Errorf("%w: rlsFilter delta must be > 0", pipeline.ErrInvalidParams)
		}
		return &adaptiveStageCore{name: "rlsFilter", rls: newRLSFilter(numTaps, lambda, delta)}, nil
	})
}
