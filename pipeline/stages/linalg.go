package stages

import (
	"fmt"

	"github.com/A-KGeorge/dspx/internal/vecmath"
	"github.com/A-KGeorge/dspx/pipeline"
)

// matrixTransformStage applies a pre-trained linear transform
// (PCA/ICA/whitening) to an interleaved multi-channel stream: each frame is
// centered against a fixed mean vector and projected through a fixed
// numChannels×numComponents matrix. Grounded on
// original_source/adapters/MatrixTransformStage.h; unlike the original's
// Eigen column-major storage this stores the matrix as one []float64 row
// per output component (row[c][ch]), which is the natural layout for a
// per-component dot product against the channel vector.
type matrixTransformStage struct {
	numChannels   int
	numComponents int
	transformType string
	mean          []float64
	rows          [][]float64 // rows[component][channel]
}

func newMatrixTransformStage(numChannels, numComponents int, mean []float64, matrix [][]float64, transformType string) (*matrixTransformStage, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("%w: matrixTransform numChannels must be positive", pipeline.ErrInvalidParams)
	}
	if numComponents <= 0 || numComponents > numChannels {
		return nil, fmt.Errorf("%w: matrixTransform numComponents must be in [1, numChannels]", pipeline.ErrInvalidParams)
	}
	if len(mean) != numChannels {
		return nil, fmt.Errorf("%w: matrixTransform mean length (%d) != numChannels (%d)", pipeline.ErrInvalidParams, len(mean), numChannels)
	}
	if len(matrix) != numComponents {
		return nil, fmt.Errorf("%w: matrixTransform matrix rows (%d) != numComponents (%d)", pipeline.ErrInvalidParams, len(matrix), numComponents)
	}
	for _, row := range matrix {
		if len(row) != numChannels {
			return nil, fmt.Errorf("%w: matrixTransform matrix row length (%d) != numChannels (%d)", pipeline.ErrInvalidParams, len(row), numChannels)
		}
	}
	if transformType == "" {
		transformType = "matrix"
	}
	return &matrixTransformStage{
		numChannels:   numChannels,
		numComponents: numComponents,
		transformType: transformType,
		mean:          mean,
		rows:          matrix,
	}, nil
}

func (s *matrixTransformStage) TypeName() string              { return s.transformType }
func (s *matrixTransformStage) IsResizing() bool              { return false }
func (s *matrixTransformStage) OutputChannelCount(in int) int { return in }
func (s *matrixTransformStage) TimeScaleFactor() float64      { return 1 }
func (s *matrixTransformStage) CalcOutputSize(in int) int     { return in }

func (s *matrixTransformStage) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if numChannels != s.numChannels {
		return fmt.Errorf("%w: matrixTransform configured for %d channels, got %d", pipeline.ErrShapeMismatch, s.numChannels, numChannels)
	}
	frames := len(buf) / numChannels
	x := make([]float64, numChannels)
	for f := 0; f < frames; f++ {
		base := f * numChannels
		for c := 0; c < numChannels; c++ {
			x[c] = float64(buf[base+c]) - s.mean[c]
		}
		for comp := 0; comp < s.numComponents; comp++ {
			buf[base+comp] = float32(vecmath.DotProduct(s.rows[comp], x))
		}
		for c := s.numComponents; c < numChannels; c++ {
			buf[base+c] = 0
		}
	}
	return nil
}

func (s *matrixTransformStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: %s is not a resizing stage", pipeline.ErrShapeMismatch, s.transformType)
}

func (s *matrixTransformStage) Reset() {}

func (s *matrixTransformStage) SerializeState() []byte    { return nil }
func (s *matrixTransformStage) DeserializeState([]byte) error { return nil }

func parseMatrixRows(p pipeline.Params, key string, numComponents, numChannels int) ([][]float64, error) {
	flat, err := floatSliceParam(p, key)
	if err != nil {
		return nil, err
	}
	if len(flat) != numComponents*numChannels {
		return nil, fmt.Errorf("%w: %q must have numComponents*numChannels elements", pipeline.ErrInvalidParams, key)
	}
	// Column-major (component-major) layout, matching the original's Eigen
	// Map<ColMajor> interpretation of the flattened matrix.
	rows := make([][]float64, numComponents)
	for comp := 0; comp < numComponents; comp++ {
		row := make([]float64, numChannels)
		for ch := 0; ch < numChannels; ch++ {
			row[ch] = flat[comp*numChannels+ch]
		}
		rows[comp] = row
	}
	return rows, nil
}

func init() {
	pipeline.RegisterDefault("matrixTransform", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		numChannels, err := requireIntParam(p, "numChannels")
		if err != nil {
			return nil, err
		}
		numComponents, err := intParam(p, "numComponents", numChannels)
		if err != nil {
			return nil, err
		}
		mean, err := floatSliceParam(p, "mean")
		if err != nil {
			return nil, err
		}
		rows, err := parseMatrixRows(p, "matrix", numComponents, numChannels)
		if err != nil {
			return nil, err
		}
		transformType := stringParam(p, "transformType", "matrix")
		return newMatrixTransformStage(numChannels, numComponents, mean, rows, transformType)
	})
}

// gscPreprocessorStage implements a Generalized Sidelobe Canceler
// preprocessor: an N-channel microphone array is reduced to the 2-channel
// {noise reference, desired signal} pair an adaptive filter (lmsFilter /
// rlsFilter) expects. Grounded on
// original_source/adapters/GscPreprocessorStage.h.
type gscPreprocessorStage struct {
	numChannels int
	steering    []float64            // numChannels
	blocking    [][]float64          // blocking[col][channel], numChannels-1 columns
}

func newGSCPreprocessorStage(numChannels int, steering []float64, blockingFlat []float64) (*gscPreprocessorStage, error) {
	if numChannels < 2 {
		return nil, fmt.Errorf("%w: gscPreprocessor numChannels must be >= 2", pipeline.ErrInvalidParams)
	}
	if len(steering) != numChannels {
		return nil, fmt.Errorf("%w: gscPreprocessor steeringWeights length (%d) != numChannels (%d)", pipeline.ErrInvalidParams, len(steering), numChannels)
	}
	if len(blockingFlat) != numChannels*(numChannels-1) {
		return nil, fmt.Errorf("%w: gscPreprocessor blockingMatrix length (%d) != numChannels*(numChannels-1) (%d)", pipeline.ErrInvalidParams, len(blockingFlat), numChannels*(numChannels-1))
	}
	cols := numChannels - 1
	blocking := make([][]float64, cols)
	for col := 0; col < cols; col++ {
		row := make([]float64, numChannels)
		for ch := 0; ch < numChannels; ch++ {
			row[ch] = blockingFlat[col*numChannels+ch]
		}
		blocking[col] = row
	}
	return &gscPreprocessorStage{numChannels: numChannels, steering: steering, blocking: blocking}, nil
}

func (s *gscPreprocessorStage) TypeName() string              { return "gscPreprocessor" }
func (s *gscPreprocessorStage) IsResizing() bool              { return false }
func (s *gscPreprocessorStage) OutputChannelCount(in int) int { return in }
func (s *gscPreprocessorStage) TimeScaleFactor() float64      { return 1 }
func (s *gscPreprocessorStage) CalcOutputSize(in int) int     { return in }

func (s *gscPreprocessorStage) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if numChannels != s.numChannels {
		return fmt.Errorf("%w: gscPreprocessor configured for %d channels, got %d", pipeline.ErrShapeMismatch, s.numChannels, numChannels)
	}
	frames := len(buf) / numChannels
	x := make([]float64, numChannels)
	for f := 0; f < frames; f++ {
		base := f * numChannels
		for c := 0; c < numChannels; c++ {
			x[c] = float64(buf[base+c])
		}
		desired := vecmath.DotProduct(s.steering, x)
		noise := 0.0
		for _, col := range s.blocking {
			noise += vecmath.DotProduct(col, x)
		}
		buf[base+0] = float32(noise)
		buf[base+1] = float32(desired)
		for c := 2; c < numChannels; c++ {
			buf[base+c] = 0
		}
	}
	return nil
}

func (s *gscPreprocessorStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: gscPreprocessor is not a resizing stage", pipeline.ErrShapeMismatch)
}

func (s *gscPreprocessorStage) Reset() {}

func (s *gscPreprocessorStage) SerializeState() []byte    { return nil }
func (s *gscPreprocessorStage) DeserializeState([]byte) error { return nil }

func init() {
	pipeline.RegisterDefault("gscPreprocessor", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		numChannels, err := requireIntParam(p, "numChannels")
		if err != nil {
			return nil, err
		}
		steering, err := floatSliceParam(p, "steeringWeights")
		if err != nil {
			return nil, err
		}
		blocking, err := floatSliceParam(p, "blockingMatrix")
		if err != nil {
			return nil, err
		}
		return newGSCPreprocessorStage(numChannels, steering, blocking)
	})
}
