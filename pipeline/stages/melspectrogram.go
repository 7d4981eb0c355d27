package stages

import (
	"fmt"

	"github.com/A-KGeorge/dspx/internal/vecmath"
	"github.com/A-KGeorge/dspx/pipeline"
)

// melSpectrogramStage applies a fixed Mel filterbank matrix (numMelBands ×
// numBins) to each channel's stacked power/magnitude-spectrum frames,
// treating the input as back-to-back frames of numBins samples per
// channel and emitting numMelBands samples per frame. Grounded on
// original_source/adapters/MelSpectrogramStage.h — stateless aside from
// the fixed filterbank, so (unlike fft/stft) there is nothing to
// serialize beyond the construction params.
type melSpectrogramStage struct {
	numBins     int
	numMelBands int
	rows        [][]float64 // rows[melBand][bin]
}

func newMelSpectrogramStage(filterbank []float64, numBins, numMelBands int) (*melSpectrogramStage, error) {
	if numBins <= 0 {
		return nil, fmt.Errorf("%w: melSpectrogram numBins must be positive", pipeline.ErrInvalidParams)
	}
	if numMelBands <= 0 {
		return nil, fmt.Errorf("%w: melSpectrogram numMelBands must be positive", pipeline.ErrInvalidParams)
	}
	if len(filterbank) != numBins*numMelBands {
		return nil, fmt.Errorf("%w: melSpectrogram filterbank size (%d) must equal numMelBands*numBins (%d)", pipeline.ErrInvalidParams, len(filterbank), numMelBands*numBins)
	}
	// filterbank is row-major (numMelBands rows of numBins), matching the
	// original's row-major TypeScript-supplied layout.
	rows := make([][]float64, numMelBands)
	for m := 0; m < numMelBands; m++ {
		row := make([]float64, numBins)
		copy(row, filterbank[m*numBins:(m+1)*numBins])
		rows[m] = row
	}
	return &melSpectrogramStage{numBins: numBins, numMelBands: numMelBands, rows: rows}, nil
}

func (s *melSpectrogramStage) TypeName() string              { return "melSpectrogram" }
func (s *melSpectrogramStage) IsResizing() bool               { return true }
func (s *melSpectrogramStage) OutputChannelCount(in int) int { return in }
func (s *melSpectrogramStage) TimeScaleFactor() float64 {
	return float64(s.numBins) / float64(s.numMelBands)
}
func (s *melSpectrogramStage) CalcOutputSize(in int) int {
	return (in / s.numBins) * s.numMelBands
}

func (s *melSpectrogramStage) ProcessInPlace([]float32, int, []float32) error {
	return fmt.Errorf("%w: melSpectrogram requires processResizing", pipeline.ErrShapeMismatch)
}

func (s *melSpectrogramStage) ProcessResizing(input []float32, numChannels int, _ []float32, output []float32) (int, error) {
	if numChannels <= 0 || len(input)%numChannels != 0 {
		return 0, fmt.Errorf("%w: melSpectrogram", pipeline.ErrShapeMismatch)
	}
	samplesPerChannel := len(input) / numChannels
	numFrames := samplesPerChannel / s.numBins
	if numFrames == 0 {
		return 0, nil
	}
	needed := numFrames * s.numMelBands * numChannels
	if len(output) < needed {
		return 0, fmt.Errorf("%w: melSpectrogram output buffer too small", pipeline.ErrResource)
	}

	bin := make([]float64, s.numBins)
	for ch := 0; ch < numChannels; ch++ {
		for frame := 0; frame < numFrames; frame++ {
			for i := 0; i < s.numBins; i++ {
				bin[i] = float64(input[(frame*s.numBins+i)*numChannels+ch])
			}
			for m := 0; m < s.numMelBands; m++ {
				out := vecmath.DotProduct(s.rows[m], bin)
				output[(frame*s.numMelBands+m)*numChannels+ch] = float32(out)
			}
		}
	}
	return needed, nil
}

func (s *melSpectrogramStage) Reset() {}

func (s *melSpectrogramStage) SerializeState() []byte    { return nil }
func (s *melSpectrogramStage) DeserializeState([]byte) error { return nil }

func init() {
	pipeline.RegisterDefault("melSpectrogram", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		filterbank, err := floatSliceParam(p, "filterbank")
		if err != nil {
			return nil, err
		}
		numBins, err := requireIntParam(p, "numBins")
		if err != nil {
			return nil, err
		}
		numMelBands, err := requireIntParam(p, "numMelBands")
		if err != nil {
			return nil, err
		}
		return newMelSpectrogramStage(filterbank, numBins, numMelBands)
	})
}
