package stages

import (
	"fmt"

	"github.com/A-KGeorge/dspx/dsp/conv"
	"github.com/A-KGeorge/dspx/pipeline"
	"github.com/A-KGeorge/dspx/toon"
)

// convolutionStage implements the "convolution" stage (spec §4.9): a fixed
// kernel convolved against each channel, either as a continuous causal
// filter ("moving" mode, channel count and frame count both preserved) or
// as a one-shot full linear convolution per call ("batch" mode, each call's
// block grows by len(kernel)-1 frames with no state carried to the next
// call). No ConvolutionStage adapter header survives in original_source
// (only its factory registration in DspPipeline.cc does, naming the
// kernel/mode/method/autoThreshold params and their defaults), so the
// compute core is grounded directly on the teacher's dsp/conv package:
// "direct" method reuses the shift-register convolution idiom from
// wavelet.go's convolveStep (itself grounded on filter.go's directFormI),
// "fft" method wraps dsp/conv's overlap-save implementations.
type convolutionStage struct {
	kernel        []float64
	mode          string // "moving" or "batch"
	method        string // "auto", "direct", or "fft"
	autoThreshold int

	numChannels int
	history     [][]float64                    // moving+direct: per-channel shift register, len(kernel)-1
	sos         []*conv.StreamingOverlapSave    // moving+fft: per-channel, lazily (re)built for the observed block size
	sosBlockLen int
}

func newConvolutionStage(kernel []float64, mode, method string, autoThreshold int) (*convolutionStage, error) {
	if len(kernel) == 0 {
		return nil, fmt.Errorf("%w: convolution kernel must be non-empty", pipeline.ErrInvalidParams)
	}
	switch mode {
	case "moving", "batch":
	default:
		return nil, fmt.Errorf("%w: convolution mode must be \"moving\" or \"batch\", got %q", pipeline.ErrInvalidParams, mode)
	}
	switch method {
	case "auto", "direct", "fft":
	default:
		return nil, fmt.Errorf("%w: convolution method must be \"auto\", \"direct\", or \"fft\", got %q", pipeline.ErrInvalidParams, method)
	}
	if autoThreshold <= 0 {
		autoThreshold = 64
	}
	k := make([]float64, len(kernel))
	copy(k, kernel)
	return &convolutionStage{kernel: k, mode: mode, method: method, autoThreshold: autoThreshold}, nil
}

// resolveMethod implements spec §4.9's auto-mode dispatch: FFT is chosen
// when min(kernel_len, block_len) >= autoThreshold, otherwise direct.
func (s *convolutionStage) resolveMethod(blockLen int) string {
	if s.method != "auto" {
		return s.method
	}
	shorter := len(s.kernel)
	if blockLen < shorter {
		shorter = blockLen
	}
	if shorter >= s.autoThreshold {
		return "fft"
	}
	return "direct"
}

func (s *convolutionStage) TypeName() string { return "convolution" }
func (s *convolutionStage) IsResizing() bool { return s.mode == "batch" }
func (s *convolutionStage) OutputChannelCount(in int) int { return in }
func (s *convolutionStage) TimeScaleFactor() float64 { return 1 }

// CalcOutputSize must return a safe upper bound without knowing the
// channel count (the Stage interface only passes the total sample count),
// matching the same constraint melspectrogram.go's CalcOutputSize
// resolves. "moving" mode never grows the buffer. "batch" mode's true
// per-call need is numChannels*(frames+len(kernel)-1); since
// numChannels*frames == in and frames >= 1 implies numChannels <= in, the
// true need is bounded by in + in*(len(kernel)-1) = in*len(kernel).
func (s *convolutionStage) CalcOutputSize(in int) int {
	if s.mode == "moving" {
		return in
	}
	return in * len(s.kernel)
}

func (s *convolutionStage) ensureChannels(n int) {
	if s.numChannels == n {
		return
	}
	s.numChannels = n
	s.history = make([][]float64, n)
	for ch := range s.history {
		s.history[ch] = make([]float64, len(s.kernel)-1)
	}
	s.sos = make([]*conv.StreamingOverlapSave, n)
	s.sosBlockLen = 0
}

func (s *convolutionStage) streamingOverlapSave(ch, blockLen int) (*conv.StreamingOverlapSave, error) {
	if s.sosBlockLen != blockLen {
		s.sos = make([]*conv.StreamingOverlapSave, s.numChannels)
		s.sosBlockLen = blockLen
	}
	if s.sos[ch] == nil {
		sos, err := conv.NewStreamingOverlapSave(s.kernel, blockLen)
		if err != nil {
			return nil, fmt.Errorf("%w: convolution fft init: %v", pipeline.ErrResource, err)
		}
		s.sos[ch] = sos
	}
	return s.sos[ch], nil
}

// ProcessInPlace handles "moving" mode: causal convolution, output length
// equals input length, state carried across calls.
func (s *convolutionStage) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if s.mode != "moving" {
		return fmt.Errorf("%w: convolution batch mode requires processResizing", pipeline.ErrShapeMismatch)
	}
	if numChannels <= 0 || len(buf)%numChannels != 0 {
		return fmt.Errorf("%w: convolution", pipeline.ErrShapeMismatch)
	}
	s.ensureChannels(numChannels)
	frames := len(buf) / numChannels

	for ch := 0; ch < numChannels; ch++ {
		switch s.resolveMethod(frames) {
		case "fft":
			sos, err := s.streamingOverlapSave(ch, frames)
			if err != nil {
				return err
			}
			in := make([]float64, frames)
			for f := 0; f < frames; f++ {
				in[f] = float64(buf[f*numChannels+ch])
			}
			out, err := sos.ProcessBlock(in)
			if err != nil {
				return fmt.Errorf("%w: convolution fft: %v", pipeline.ErrResource, err)
			}
			for f := 0; f < frames; f++ {
				buf[f*numChannels+ch] = float32(out[f])
			}
		default:
			for f := 0; f < frames; f++ {
				idx := f*numChannels + ch
				buf[idx] = float32(convolveStep(s.kernel, s.history[ch], float64(buf[idx])))
			}
		}
	}
	return nil
}

// ProcessResizing handles "batch" mode: a one-shot full linear convolution
// per call, stateless across calls (matching the original's "batch" name:
// each block is an independent convolution problem).
func (s *convolutionStage) ProcessResizing(input []float32, numChannels int, _ []float32, output []float32) (int, error) {
	if s.mode != "batch" {
		return 0, fmt.Errorf("%w: convolution moving mode requires processInPlace", pipeline.ErrShapeMismatch)
	}
	if numChannels <= 0 || len(input)%numChannels != 0 {
		return 0, fmt.Errorf("%w: convolution", pipeline.ErrShapeMismatch)
	}
	frames := len(input) / numChannels
	outFrames := frames + len(s.kernel) - 1
	needed := outFrames * numChannels
	if len(output) < needed {
		return 0, fmt.Errorf("%w: convolution output buffer too small", pipeline.ErrResource)
	}

	signal := make([]float64, frames)
	full := make([]float64, outFrames)
	for ch := 0; ch < numChannels; ch++ {
		for f := 0; f < frames; f++ {
			signal[f] = float64(input[f*numChannels+ch])
		}
		var err error
		switch s.resolveMethod(frames) {
		case "fft":
			full, err = conv.OverlapSaveConvolve(signal, s.kernel)
			if err != nil {
				return 0, fmt.Errorf("%w: convolution fft: %v", pipeline.ErrResource, err)
			}
		default:
			conv.DirectTo(full, signal, s.kernel)
		}
		for f := 0; f < outFrames; f++ {
			output[f*numChannels+ch] = float32(full[f])
		}
	}
	return needed, nil
}

func (s *convolutionStage) Reset() {
	for ch := range s.history {
		for k := range s.history[ch] {
			s.history[ch][k] = 0
		}
	}
	s.sos = make([]*conv.StreamingOverlapSave, s.numChannels)
	s.sosBlockLen = 0
}

// SerializeState persists only the "moving"+"direct" shift-register
// history. "batch" mode is stateless by construction (no history to
// persist). "moving"+"fft" in-flight history lives inside
// conv.StreamingOverlapSave, which keeps its overlap buffer and FFT plan
// unexported — the same class of gap documented for filter.go's FIR fast
// path: resuming a restored snapshot re-primes the overlap-save history
// from silence rather than the exact pre-snapshot state.
func (s *convolutionStage) SerializeState() []byte {
	ser := toon.NewSerializer(64)
	ser.WriteInt32(int32(s.numChannels))
	for ch := 0; ch < s.numChannels; ch++ {
		h := make([]float32, len(s.history[ch]))
		for i, v := range s.history[ch] {
			h[i] = float32(v)
		}
		ser.WriteFloatArray(h)
	}
	return ser.Bytes()
}

func (s *convolutionStage) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	n := int(d.ReadInt32())
	history := make([][]float64, n)
	for ch := 0; ch < n; ch++ {
		h := d.ReadFloatArray()
		if len(h) != len(s.kernel)-1 {
			return fmt.Errorf("%w: convolution history length mismatch", pipeline.ErrStateShapeMismatch)
		}
		history[ch] = make([]float64, len(h))
		for i, v := range h {
			history[ch][i] = float64(v)
		}
	}
	if d.HasError() {
		return pipeline.ErrStateCorrupt
	}
	s.numChannels = n
	s.history = history
	s.sos = make([]*conv.StreamingOverlapSave, n)
	s.sosBlockLen = 0
	return nil
}

func init() {
	pipeline.RegisterDefault("convolution", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		kernel, err := floatSliceParam(p, "kernel")
		if err != nil {
			return nil, err
		}
		mode := stringParam(p, "mode", "moving")
		method := stringParam(p, "method", "auto")
		autoThreshold, err := intParam(p, "autoThreshold", 64)
		if err != nil {
			return nil, err
		}
		return newConvolutionStage(kernel, mode, method, autoThreshold)
	})
}
