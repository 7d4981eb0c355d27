package stages

import (
	"fmt"
	"math"

	"github.com/A-KGeorge/dspx/circular"
	"github.com/A-KGeorge/dspx/dsp/window"
	"github.com/A-KGeorge/dspx/fft"
	"github.com/A-KGeorge/dspx/pipeline"
	"github.com/A-KGeorge/dspx/toon"
)

// generateWindow builds a window function of length n via the teacher's
// dsp/window generator, mapping the five names
// original_source/adapters/StftStage.h's generateWindowFunction supports
// onto window.Type (Bartlett is window.TypeTriangle with the
// half-sample-shift variant enabled).
func generateWindow(kind string, n int) []float64 {
	switch kind {
	case "none":
		return window.Generate(window.TypeRectangular, n)
	case "hann":
		return window.Generate(window.TypeHann, n)
	case "hamming":
		return window.Generate(window.TypeHamming, n)
	case "blackman":
		return window.Generate(window.TypeBlackman, n)
	case "bartlett":
		return window.Generate(window.TypeTriangle, n, window.WithBartlett())
	}
	return window.Generate(window.TypeRectangular, n)
}

func validWindowKind(kind string) bool {
	switch kind {
	case "none", "hann", "hamming", "blackman", "bartlett":
		return true
	}
	return false
}

// appendSpectrum converts a transform's complex output into the
// requested representation and appends it to accum, grounded on
// StftStage.h's convertOutput.
func appendSpectrum(output string, spectrum []complex128, accum []float32) []float32 {
	n := len(spectrum)
	switch output {
	case "complex":
		for _, c := range spectrum {
			accum = append(accum, float32(real(c)), float32(imag(c)))
		}
	case "magnitude":
		mags := make([]float64, n)
		fft.Magnitude(spectrum, mags, n)
		for _, m := range mags {
			accum = append(accum, float32(m))
		}
	case "power":
		pows := make([]float64, n)
		fft.Power(spectrum, pows, n)
		for _, p := range pows {
			accum = append(accum, float32(p))
		}
	case "phase":
		phases := make([]float64, n)
		fft.Phase(spectrum, phases, n)
		for _, ph := range phases {
			accum = append(accum, float32(ph))
		}
	}
	return accum
}

func validOutputKind(kind string) bool {
	switch kind {
	case "complex", "magnitude", "power", "phase":
		return true
	}
	return false
}

// stftStage computes a sliding-window FFT/DFT, grounded on
// original_source/adapters/StftStage.h (spec §4.9). Unlike the multirate
// and time-alignment stages, STFT keeps the original's quirky in-place
// contract: the output block has the same interleaved length as the
// input, with the accumulated frequency-bin stream truncated or
// zero-padded to fit rather than resizing the block.
type stftStage struct {
	windowSize, hopSize      int
	method, signalType       string
	output, windowType       string
	forward                  bool
	engine                   *fft.Engine
	windowFn                 []float64
	channelBufs              []*circular.Buffer
	samplesSinceOutput       []int
}

func newSTFTStage(windowSize, hopSize int, method, signalType string, forward bool, output, windowType string) (*stftStage, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: stft window size must be greater than 0", pipeline.ErrInvalidParams)
	}
	if hopSize <= 0 || hopSize > windowSize {
		return nil, fmt.Errorf("%w: stft hop size must be between 1 and window size", pipeline.ErrInvalidParams)
	}
	if method != "fft" && method != "dft" {
		return nil, fmt.Errorf("%w: stft method must be \"fft\" or \"dft\"", pipeline.ErrInvalidParams)
	}
	if signalType != "real" && signalType != "complex" {
		return nil, fmt.Errorf("%w: stft type must be \"real\" or \"complex\"", pipeline.ErrInvalidParams)
	}
	if !validOutputKind(output) {
		return nil, fmt.Errorf("%w: stft output must be complex, magnitude, power, or phase", pipeline.ErrInvalidParams)
	}
	if !validWindowKind(windowType) {
		return nil, fmt.Errorf("%w: stft window must be none, hann, hamming, blackman, or bartlett", pipeline.ErrInvalidParams)
	}
	engine, err := fft.New(windowSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidParams, err)
	}
	if method == "fft" && !engine.IsPowerOfTwo() {
		return nil, fmt.Errorf("%w: stft fft method requires a power-of-2 window size", pipeline.ErrInvalidParams)
	}
	return &stftStage{
		windowSize: windowSize, hopSize: hopSize,
		method: method, signalType: signalType,
		output: output, windowType: windowType, forward: forward,
		engine: engine, windowFn: generateWindow(windowType, windowSize),
	}, nil
}

func (s *stftStage) TypeName() string             { return "stft" }
func (s *stftStage) IsResizing() bool             { return false }
func (s *stftStage) OutputChannelCount(in int) int { return in }
func (s *stftStage) TimeScaleFactor() float64      { return 1 }
func (s *stftStage) CalcOutputSize(in int) int     { return in }

func (s *stftStage) ensureChannels(n int) {
	if len(s.channelBufs) == n {
		return
	}
	s.channelBufs = make([]*circular.Buffer, n)
	s.samplesSinceOutput = make([]int, n)
	for i := range s.channelBufs {
		s.channelBufs[i] = circular.New(s.windowSize, 0)
	}
}

func (s *stftStage) computeFrame(ch int, accum []float32) []float32 {
	window := s.channelBufs[ch].ToSlice()
	if len(window) > s.windowSize {
		window = window[len(window)-s.windowSize:]
	}
	windowed := make([]float64, s.windowSize)
	for i := range windowed {
		v := 0.0
		if i < len(window) {
			v = window[i]
		}
		windowed[i] = v * s.windowFn[i]
	}

	var spectrum []complex128
	if s.signalType == "real" {
		realIn := make([]float32, s.windowSize)
		for i, v := range windowed {
			realIn[i] = float32(v)
		}
		spectrum = make([]complex128, s.engine.HalfSize())
		s.engine.RFFT(realIn, spectrum)
	} else {
		complexIn := make([]complex128, s.windowSize)
		for i, v := range windowed {
			complexIn[i] = complex(v, 0)
		}
		spectrum = make([]complex128, s.windowSize)
		switch {
		case s.method == "fft" && s.forward:
			s.engine.Forward(complexIn, spectrum)
		case s.method == "fft" && !s.forward:
			s.engine.Inverse(complexIn, spectrum)
		case s.method == "dft" && s.forward:
			s.engine.DFT(complexIn, spectrum)
		default:
			s.engine.IDFT(complexIn, spectrum)
		}
	}
	return appendSpectrum(s.output, spectrum, accum)
}

func (s *stftStage) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if numChannels <= 0 || len(buf)%numChannels != 0 {
		return fmt.Errorf("%w: stft", pipeline.ErrShapeMismatch)
	}
	s.ensureChannels(numChannels)

	var accum []float32
	for i, sample := range buf {
		ch := i % numChannels
		s.channelBufs[ch].PushOverwrite(float64(sample))
		s.samplesSinceOutput[ch]++
		if s.channelBufs[ch].Count() >= s.windowSize && s.samplesSinceOutput[ch] >= s.hopSize {
			accum = s.computeFrame(ch, accum)
			s.samplesSinceOutput[ch] = 0
		}
	}

	outLen := len(accum)
	if outLen > len(buf) {
		outLen = len(buf)
	}
	copy(buf[:outLen], accum[:outLen])
	for i := outLen; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

func (s *stftStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: stft is not a resizing stage", pipeline.ErrShapeMismatch)
}

func (s *stftStage) Reset() {
	for _, b := range s.channelBufs {
		b.Clear()
	}
	for i := range s.samplesSinceOutput {
		s.samplesSinceOutput[i] = 0
	}
}

func (s *stftStage) SerializeState() []byte {
	ser := toon.NewSerializer(128)
	ser.WriteInt32(int32(s.windowSize))
	ser.WriteInt32(int32(s.hopSize))
	ser.WriteInt32(int32(len(s.channelBufs)))
	for ch, b := range s.channelBufs {
		vals := b.ToSlice()
		arr := make([]float32, len(vals))
		for i, v := range vals {
			arr[i] = float32(v)
		}
		ser.WriteFloatArray(arr)
		ser.WriteInt32(int32(s.samplesSinceOutput[ch]))
	}
	return ser.Bytes()
}

func (s *stftStage) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	windowSize := int(d.ReadInt32())
	hopSize := int(d.ReadInt32())
	if windowSize != s.windowSize || hopSize != s.hopSize {
		return fmt.Errorf("%w: stft window/hop size mismatch", pipeline.ErrStateShapeMismatch)
	}
	n := int(d.ReadInt32())
	bufs := make([]*circular.Buffer, n)
	since := make([]int, n)
	for i := 0; i < n; i++ {
		vals := d.ReadFloatArray()
		b := circular.New(s.windowSize, 0)
		for _, v := range vals {
			b.PushOverwrite(float64(v))
		}
		bufs[i] = b
		since[i] = int(d.ReadInt32())
	}
	if d.HasError() {
		return pipeline.ErrStateCorrupt
	}
	s.channelBufs = bufs
	s.samplesSinceOutput = since
	return nil
}

func init() {
	pipeline.RegisterDefault("stft", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		windowSize, err := requireIntParam(p, "windowSize")
		if err != nil {
			return nil, err
		}
		hopSize, err := intParam(p, "hopSize", windowSize/2)
		if err != nil {
			return nil, err
		}
		method := stringParam(p, "method", "fft")
		signalType := stringParam(p, "type", "real")
		forward := boolParam(p, "forward", true)
		output := stringParam(p, "output", "magnitude")
		window := stringParam(p, "window", "hann")
		return newSTFTStage(windowSize, hopSize, method, signalType, forward, output, window)
	})
}

// hilbertEnvelopeStage computes the instantaneous amplitude envelope via
// a sliding-window analytic signal, grounded on
// original_source/adapters/HilbertEnvelopeStage.h (spec §4.9). Per the
// teacher's own streaming contract, only the window's most recent sample
// is emitted at each hop; in between, the raw input sample passes
// through unchanged (not matched to a full per-frame output).
type hilbertEnvelopeStage struct {
	windowSize, hopSize int
	engine              *fft.Engine
	channelBufs         []*circular.Buffer
	samplesSinceOutput  []int
}

func newHilbertEnvelopeStage(windowSize, hopSize int) (*hilbertEnvelopeStage, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: hilbertEnvelope window size must be greater than 0", pipeline.ErrInvalidParams)
	}
	if hopSize <= 0 || hopSize > windowSize {
		return nil, fmt.Errorf("%w: hilbertEnvelope hop size must be between 1 and window size", pipeline.ErrInvalidParams)
	}
	engine, err := fft.New(windowSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidParams, err)
	}
	return &hilbertEnvelopeStage{windowSize: windowSize, hopSize: hopSize, engine: engine}, nil
}

func (s *hilbertEnvelopeStage) TypeName() string             { return "hilbertEnvelope" }
func (s *hilbertEnvelopeStage) IsResizing() bool             { return false }
func (s *hilbertEnvelopeStage) OutputChannelCount(in int) int { return in }
func (s *hilbertEnvelopeStage) TimeScaleFactor() float64      { return 1 }
func (s *hilbertEnvelopeStage) CalcOutputSize(in int) int     { return in }

func (s *hilbertEnvelopeStage) ensureChannels(n int) {
	if len(s.channelBufs) == n {
		return
	}
	s.channelBufs = make([]*circular.Buffer, n)
	s.samplesSinceOutput = make([]int, n)
	for i := range s.channelBufs {
		s.channelBufs[i] = circular.New(s.windowSize, 0)
	}
}

// computeEnvelope builds the analytic signal (double positive
// frequencies, zero negative frequencies, keep DC/Nyquist), inverse
// transforms, and returns the envelope at the most recent window sample.
func (s *hilbertEnvelopeStage) computeEnvelope(ch int) float32 {
	window := s.channelBufs[ch].ToSlice()
	if len(window) > s.windowSize {
		window = window[len(window)-s.windowSize:]
	}
	complexIn := make([]complex128, s.windowSize)
	for i := 0; i < s.windowSize; i++ {
		v := 0.0
		if i < len(window) {
			v = window[i]
		}
		complexIn[i] = complex(v, 0)
	}

	spectrum := make([]complex128, s.windowSize)
	s.engine.Forward(complexIn, spectrum)

	for i := 1; i < s.windowSize/2; i++ {
		spectrum[i] *= 2
	}
	for i := s.windowSize/2 + 1; i < s.windowSize; i++ {
		spectrum[i] = 0
	}

	analytic := make([]complex128, s.windowSize)
	s.engine.Inverse(spectrum, analytic)

	last := analytic[s.windowSize-1]
	return float32(math.Hypot(real(last), imag(last)))
}

func (s *hilbertEnvelopeStage) ProcessInPlace(buf []float32, numChannels int, _ []float32) error {
	if numChannels <= 0 || len(buf)%numChannels != 0 {
		return fmt.Errorf("%w: hilbertEnvelope", pipeline.ErrShapeMismatch)
	}
	s.ensureChannels(numChannels)

	for i, sample := range buf {
		ch := i % numChannels
		s.channelBufs[ch].PushOverwrite(float64(sample))
		s.samplesSinceOutput[ch]++
		if s.channelBufs[ch].Count() >= s.windowSize && s.samplesSinceOutput[ch] >= s.hopSize {
			buf[i] = s.computeEnvelope(ch)
			s.samplesSinceOutput[ch] = 0
		}
		// else: pass the raw sample through unchanged.
	}
	return nil
}

func (s *hilbertEnvelopeStage) ProcessResizing([]float32, int, []float32, []float32) (int, error) {
	return 0, fmt.Errorf("%w: hilbertEnvelope is not a resizing stage", pipeline.ErrShapeMismatch)
}

func (s *hilbertEnvelopeStage) Reset() {
	for _, b := range s.channelBufs {
		b.Clear()
	}
	for i := range s.samplesSinceOutput {
		s.samplesSinceOutput[i] = 0
	}
}

func (s *hilbertEnvelopeStage) SerializeState() []byte {
	ser := toon.NewSerializer(128)
	ser.WriteInt32(int32(s.windowSize))
	ser.WriteInt32(int32(s.hopSize))
	ser.WriteInt32(int32(len(s.channelBufs)))
	for ch, b := range s.channelBufs {
		vals := b.ToSlice()
		arr := make([]float32, len(vals))
		for i, v := range vals {
			arr[i] = float32(v)
		}
		ser.WriteFloatArray(arr)
		ser.WriteInt32(int32(s.samplesSinceOutput[ch]))
	}
	return ser.Bytes()
}

func (s *hilbertEnvelopeStage) DeserializeState(data []byte) error {
	d := toon.NewDeserializer(data)
	windowSize := int(d.ReadInt32())
	hopSize := int(d.ReadInt32())
	if windowSize != s.windowSize || hopSize != s.hopSize {
		return fmt.Errorf("%w: hilbertEnvelope window/hop size mismatch", pipeline.ErrStateShapeMismatch)
	}
	n := int(d.ReadInt32())
	bufs := make([]*circular.Buffer, n)
	since := make([]int, n)
	for i := 0; i < n; i++ {
		vals := d.ReadFloatArray()
		b := circular.New(s.windowSize, 0)
		for _, v := range vals {
			b.PushOverwrite(float64(v))
		}
		bufs[i] = b
		since[i] = int(d.ReadInt32())
	}
	if d.HasError() {
		return pipeline.ErrStateCorrupt
	}
	s.channelBufs = bufs
	s.samplesSinceOutput = since
	return nil
}

func init() {
	pipeline.RegisterDefault("hilbertEnvelope", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		windowSize, err := requireIntParam(p, "windowSize")
		if err != nil {
			return nil, err
		}
		hopSize, err := intParam(p, "hopSize", windowSize/2)
		if err != nil {
			return nil, err
		}
		return newHilbertEnvelopeStage(windowSize, hopSize)
	})
}

// fftStage is the stateless, block-based counterpart to stft: it splits
// each channel's samples into non-overlapping frames of `size` and
// transforms each independently, expanding the channel count to carry
// the per-frame bins rather than truncating/padding in place (spec
// §4.9's `fft` entry; grounded on the same StftStage.h transform core
// with hopSize == windowSize and no carried buffer state).
type fftStage struct {
	size               int
	method, signalType string
	output             string
	forward            bool
	engine             *fft.Engine
	binWidth           int // values per bin: 2 for complex output, 1 otherwise
	bins               int
}

func newFFTStage(size int, method, signalType string, forward bool, output string) (*fftStage, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: fft size must be greater than 0", pipeline.ErrInvalidParams)
	}
	if method != "fft" && method != "dft" {
		return nil, fmt.Errorf("%w: fft method must be \"fft\" or \"dft\"", pipeline.ErrInvalidParams)
	}
	if signalType != "real" && signalType != "complex" {
		return nil, fmt.Errorf("%w: fft type must be \"real\" or \"complex\"", pipeline.ErrInvalidParams)
	}
	if !validOutputKind(output) {
		return nil, fmt.Errorf("%w: fft output must be complex, magnitude, power, or phase", pipeline.ErrInvalidParams)
	}
	engine, err := fft.New(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidParams, err)
	}
	if method == "fft" && !engine.IsPowerOfTwo() {
		return nil, fmt.Errorf("%w: fft method requires a power-of-2 size", pipeline.ErrInvalidParams)
	}
	bins := size
	if signalType == "real" {
		bins = engine.HalfSize()
	}
	binWidth := 1
	if output == "complex" {
		binWidth = 2
	}
	return &fftStage{
		size: size, method: method, signalType: signalType,
		forward: forward, output: output, engine: engine,
		binWidth: binWidth, bins: bins,
	}, nil
}

func (s *fftStage) TypeName() string { return "fft" }
func (s *fftStage) IsResizing() bool { return true }
func (s *fftStage) OutputChannelCount(in int) int {
	return in * s.bins * s.binWidth
}
func (s *fftStage) TimeScaleFactor() float64 { return float64(s.size) }

func (s *fftStage) CalcOutputSize(inputSamples int) int {
	return inputSamples*2 + s.size
}

func (s *fftStage) ProcessInPlace([]float32, int, []float32) error {
	return fmt.Errorf("%w: fft is a resizing stage", pipeline.ErrShapeMismatch)
}

func (s *fftStage) transform(frame []float64) []complex128 {
	if s.signalType == "real" {
		realIn := make([]float32, s.size)
		for i, v := range frame {
			realIn[i] = float32(v)
		}
		spectrum := make([]complex128, s.engine.HalfSize())
		s.engine.RFFT(realIn, spectrum)
		return spectrum
	}
	complexIn := make([]complex128, s.size)
	for i, v := range frame {
		complexIn[i] = complex(v, 0)
	}
	spectrum := make([]complex128, s.size)
	switch {
	case s.method == "fft" && s.forward:
		s.engine.Forward(complexIn, spectrum)
	case s.method == "fft" && !s.forward:
		s.engine.Inverse(complexIn, spectrum)
	case s.method == "dft" && s.forward:
		s.engine.DFT(complexIn, spectrum)
	default:
		s.engine.IDFT(complexIn, spectrum)
	}
	return spectrum
}

func (s *fftStage) ProcessResizing(input []float32, numChannels int, _ []float32, output []float32) (int, error) {
	if numChannels <= 0 || len(input)%numChannels != 0 {
		return 0, fmt.Errorf("%w: fft", pipeline.ErrShapeMismatch)
	}
	frames := len(input) / numChannels
	numFrames := frames / s.size
	outChannels := numChannels * s.bins * s.binWidth

	written := 0
	frame := make([]float64, s.size)
	for fr := 0; fr < numFrames; fr++ {
		for ch := 0; ch < numChannels; ch++ {
			for i := 0; i < s.size; i++ {
				frame[i] = float64(input[(fr*s.size+i)*numChannels+ch])
			}
			spectrum := s.transform(frame)
			values := appendSpectrum(s.output, spectrum, nil)
			base := fr*outChannels + ch*s.bins*s.binWidth
			if base+len(values) > len(output) {
				return written, fmt.Errorf("%w: fft output buffer too small", pipeline.ErrResource)
			}
			copy(output[base:base+len(values)], values)
			written = base + len(values)
		}
	}
	return written, nil
}

func (*fftStage) SerializeState() []byte        { return nil }
func (*fftStage) DeserializeState([]byte) error { return nil }
func (*fftStage) Reset()                        {}

func init() {
	pipeline.RegisterDefault("fft", func(_ pipeline.Context, p pipeline.Params) (pipeline.Stage, error) {
		size, err := requireIntParam(p, "size")
		if err != nil {
			return nil, err
		}
		method := stringParam(p, "method", "fft")
		signalType := stringParam(p, "type", "real")
		forward := boolParam(p, "forward", true)
		output := stringParam(p, "output", "magnitude")
		return newFFTStage(size, method, signalType, forward, output)
	})
}
