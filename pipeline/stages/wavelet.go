package stages

import (
	"fmt"
	"math"

	"github.com/A-KGeorge/dspx/pipeline"
	"github.com/A-KGeorge/dspx/toon"
)

// waveletStage performs a single-level discrete wavelet transform: per
// channel, a quadrature-mirror lowpass/highpass analysis filter pair runs
// over the incoming samples and the result is decimated by 2, producing
// interleaved approximation/detail coefficient pairs. Only
// "waveletTransform" appears in the original's stage factory
// (DspPipeline.cc); no dedicated adapter header survives in
// original_source, so the per-sample convolution+decimate core is
// generalized from the teacher's dsp/filter/fir direct-convolution
// pattern (see filter.go's directFormI for the same shift-register
// idiom) rather than ported from a missing C++ file.
type waveletStage struct {
	kind        string
	lp, hp      []float64 // analysis filter taps (same length)
	histLP      [][]float64
	histHP      [][]float64
	count       []int
	numChannels int
}

func haarCoeffs() (lp, hp []float64) {
	s := 1 / math.Sqrt2
	return []float64{s, s}, []float64{s, -s}
}

func db2Coeffs() (lp, hp []float64) {
	sqrt3 := math.Sqrt(3)
	denom := 4 * math.Sqrt2
	h := []float64{
		(1 + sqrt3) / denom,
		(3 + sqrt3) / denom,
		(3 - sqrt3) / denom,
		(1 - sqrt3) / denom,
	}
	return h, qmfHighpass(h)
}

func db4Coeffs() (lp, hp []float64) {
	h := []float64{
		0.230377813308896, 0.714846570552915, 0.630880767929859, -0.027983769416859,
		-0.187034811719093, 0.030841381835560, 0.032883011666885, -0.010597401785069,
	}
	return h, qmfHighpass(h)
}

// qmfHighpass derives the detail (highpass) filter from the
// approximation (lowpass) filter via the standard quadrature-mirror
// relation g[n] = (-1)^n * h[N-1-n].
func qmfHighpass(h []float64) []float64 {
	n := len(h)
	g := make([]float64, n)
	for i := 0; i < n; i++ {
		g[i] = h[n-1-i]
		if i%2 != 0 {
			g[i] = -g[i]
		}
	}
	return g
}

func newWaveletStage(kind string) (*waveletStage, error) {
	var lp, hp []float64
	switch kind {
	case "haar":
		lp, hp = haarCoeffs()
	case "db2":
		lp, hp = db2Coeffs()
	case "db4":
		lp, hp = db4Coeffs()
	default:
		return nil, fmt.Errorf("%w: unknown wavelet %q (must be haar, db2, or db4)", pipeline.ErrInvalidParams, kind)
	}
	return &waveletStage{kind: kind, lp: lp, hp: hp}, nil
}

func (s *waveletStage) TypeName() string              { return "waveletTransform" }
func (s *waveletStage) IsResizing() bool              { return true }
func (s *waveletStage) OutputChannelCount(in int) int { return in * 2 }
func (s *waveletStage) TimeScaleFactor() float64      { return 2 }

func (s *waveletStage) CalcOutputSize(in int) int {
	return in + 2*len(s.lp)
}

func (s *waveletStage) ensureChannels(n int) {
	if s.numChannels == n {
		return
	}
	s.numChannels = n
	s.histLP = make([][]float64, n)
	s.histHP = make([][]float64, n)
	s.count = make([]int, n)
	for ch := range s.histLP {
		s.histLP[ch] = make([]float64, len(s.lp))
		s.histHP[ch] = make([]float64, len(s.hp))
	}
}

// convolveStep applies one sample of direct-form FIR convolution using a
// shift-register history, matching filter.go's directFormI idiom.
func convolveStep(taps, hist []float64, x float64) float64 {
	acc := taps[0] * x
	for k := 1; k < len(taps); k++ {
		acc += taps[k] * hist[k-1]
	}
	for k := len(hist) - 1; k > 0; k-- {
		hist[k] = hist[k-1]
	}
	if len(hist) > 0 {
		hist[0] = x
	}
	return acc
}

func (s *waveletStage) ProcessInPlace([]float32, int, []float32) error {
	return fmt.Errorf("%w: waveletTransform is a resizing stage", pipeline.ErrShapeMismatch)
}

func (s *waveletStage) ProcessResizing(input []float32, numChannels int, _ []float32, output []float32) (int, error) {
	if numChannels <= 0 || len(input)%numChannels != 0 {
		return 0, fmt.Errorf("%w: waveletTransform", pipeline.ErrShapeMismatch)
	}
	s.ensureChannels(numChannels)
	frames := len(input) / numChannels
	outChannels := numChannels * 2

	outFrames := 0
	for ch := 0; ch < numChannels; ch++ {
		local := 0
		for f := 0; f < frames; f++ {
			x := float64(input[f*numChannels+ch])
			yLP := convolveStep(s.lp, s.histLP[ch], x)
			yHP := convolveStep(s.hp, s.histHP[ch], x)
			s.count[ch]++
			if s.count[ch]%2 == 0 {
				base := local*outChannels + ch*2
				if base+1 >= len(output) {
					return local * outChannels, fmt.Errorf("%w: waveletTransform output buffer too small", pipeline.ErrResource)
				}
				output[base] = float32(yLP)
				output[base+1] = float32(yHP)
				local++
			}
		}
		outFrames = local
	}
	return outFrames * outChannels, nil
}

func (s *waveletStage) Reset() {
	for ch := range s.histLP {
		for k := range s.histLP[ch] {
			s.histLP[ch][k] = 0
		}
		for k := range s.histHP[ch] {
			s.histHP[ch][k] = 0
		}
		s.count[ch] = 0
	}
}

func (s *waveletStage) SerializeState() []byte {
	ser := toon.NewSerializer(128)
	ser.WriteInt32(int32(s.numChannels))
	for ch := 0; ch < s.numChannels; ch++ {
		lp := make([]float32, len(s.histLP[ch]))
		for i, v := range s.histLP[ch] {
			lp[i] = float32(v)
		}
		hp := make([]float32, len(s.histHP[ch]))
		for i, v := range s.histHP[ch] {
			hp[i] = float32(v)
		}
		ser.WriteFloatArray(lp)
		ser.WriteFloatArray(hp)
		ser.WriteInt32(int32(s.count[ch]))
	}
	return ser.Bytes()
}

func (s *waveletStage) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	n := int(d.ReadInt32())
	histLP := make([][]float64, n)
	histHP := make([][]float64, n)
	count := make([]int, n)
	for ch := 0; ch < n; ch++ {
		lp := d.ReadFloatArray()
		hp := d.ReadFloatArray()
		if len(lp) != len(s.lp) || len(hp) != len(s.hp) {
			return fmt.Errorf("%w: waveletTransform filter length mismatch", pipeline.ErrStateShapeMismatch)
		}
		histLP[ch] = make([]float64, len(lp))
		for i, v := range lp {
			histLP[ch][i] = float64(v)
		}
		histHP[ch] = make([]float64, len(hp))
		for i, v := range hp {
			histHP[ch][i] = float64(v)
		}
		count[ch] = int(d.ReadInt32())
	}
	if d.HasError() {
		return pipeline.ErrStateCorrupt
	}
	s.numChannels = n
	s.histLP, s.histHP, s.count = histLP, histHP, count
	return nil
}

func init() {
	pipeline.RegisterDefault("waveletTransform", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		kind, err := requireStringParam(p, "wavelet")
		if err != nil {
			return nil, err
		}
		return newWaveletStage(kind)
	})
}
