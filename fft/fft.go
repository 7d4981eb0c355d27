// Package fft implements the Fourier transform engine: a radix-2
// Cooley-Tukey FFT for power-of-two sizes, a direct O(N^2) DFT fallback for
// arbitrary sizes, and the derived magnitude/power/phase spectra used by
// the streaming FFT/STFT pipeline stages.
//
// This is a from-scratch engine, not a wrapper around algo-fft: the
// pipeline's spectral stages need the half-complex real-FFT layout and an
// engine that works for the arbitrary sizes STFT windows and filter banks
// pick, not just algo-fft's complex power-of-two plans. algo-fft stays
// wired for the kept convolution code (see dsp/conv), which only ever
// needs power-of-two complex transforms.
package fft

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/A-KGeorge/dspx/internal/vecmath"
)

// ErrSizeMismatch is returned when an input/output slice does not match the
// engine's configured size (or half-size, for real transforms).
var ErrSizeMismatch = errors.New("fft: size mismatch")

// Engine performs forward/inverse transforms for a fixed size N, caching
// twiddle factors and bit-reversal indices when N is a power of two.
type Engine struct {
	size        int
	isPow2      bool
	twiddles    []complex128 // W_N^k, k = 0..N/2-1, forward convention
	bitReversal []int
}

// New returns an Engine configured for transforms of length size.
func New(size int) (*Engine, error) {
	if size <= 0 {
		return nil, errors.New("fft: size must be positive")
	}
	e := &Engine{size: size, isPow2: isPowerOfTwo(size)}
	if e.isPow2 {
		e.initTwiddles()
		e.initBitReversal()
	}
	return e, nil
}

// Size returns the configured transform length.
func (e *Engine) Size() int { return e.size }

// HalfSize returns N/2+1, the length of a real-input half-spectrum.
func (e *Engine) HalfSize() int { return e.size/2 + 1 }

// IsPowerOfTwo reports whether the fast radix-2 path is used.
func (e *Engine) IsPowerOfTwo() bool { return e.isPow2 }

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

func (e *Engine) initTwiddles() {
	n := e.size
	e.twiddles = make([]complex128, n/2)
	for k := 0; k < n/2; k++ {
		theta := -2 * math.Pi * float64(k) / float64(n)
		e.twiddles[k] = cmplx.Rect(1, theta)
	}
}

func (e *Engine) initBitReversal() {
	n := e.size
	bits := 0
	for 1<<bits < n {
		bits++
	}
	e.bitReversal = make([]int, n)
	for i := 0; i < n; i++ {
		e.bitReversal[i] = reverseBits(i, bits)
	}
}

func reverseBits(x, bits int) int {
	r := 0
	for i := 0; i < bits; i++ {
		r = (r << 1) | (x & 1)
		x >>= 1
	}
	return r
}

// Forward computes the forward complex DFT/FFT of input into output.
// input and output may alias. Both must have length Size().
func (e *Engine) Forward(input, output []complex128) error {
	if len(input) != e.size || len(output) != e.size {
		return ErrSizeMismatch
	}
	if e.isPow2 {
		if &input[0] != &output[0] {
			copy(output, input)
		}
		e.cooleyTukey(output, false)
		return nil
	}
	e.dft(input, output, false)
	return nil
}

// Inverse computes the inverse complex DFT/FFT of input into output,
// including the 1/N normalization.
func (e *Engine) Inverse(input, output []complex128) error {
	if len(input) != e.size || len(output) != e.size {
		return ErrSizeMismatch
	}
	if e.isPow2 {
		if &input[0] != &output[0] {
			copy(output, input)
		}
		e.cooleyTukey(output, true)
		return nil
	}
	e.dft(input, output, true)
	return nil
}

// cooleyTukey runs the in-place iterative radix-2 Cooley-Tukey transform.
func (e *Engine) cooleyTukey(data []complex128, inverse bool) {
	n := e.size

	for i, j := range e.bitReversal {
		if j > i {
			data[i], data[j] = data[j], data[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		step := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				tw := e.twiddles[k*step]
				if inverse {
					tw = cmplx.Conj(tw)
				}
				a := data[start+k]
				b := data[start+k+half] * tw
				data[start+k] = a + b
				data[start+k+half] = a - b
			}
		}
	}

	if inverse {
		scale := complex(1/float64(n), 0)
		for i := range data {
			data[i] *= scale
		}
	}
}

// DFT computes the direct O(N^2) forward transform, exposed as a
// cross-check validator for tests against the fast path.
func (e *Engine) DFT(input, output []complex128) error {
	if len(input) != e.size || len(output) != e.size {
		return ErrSizeMismatch
	}
	e.dft(input, output, false)
	return nil
}

// IDFT computes the direct O(N^2) inverse transform.
func (e *Engine) IDFT(input, output []complex128) error {
	if len(input) != e.size || len(output) != e.size {
		return ErrSizeMismatch
	}
	e.dft(input, output, true)
	return nil
}

func (e *Engine) dft(input, output []complex128, inverse bool) {
	n := e.size
	sign := -1.0
	if inverse {
		sign = 1.0
	}
	tmp := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for t := 0; t < n; t++ {
			theta := sign * 2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum += input[t] * cmplx.Rect(1, theta)
		}
		tmp[k] = sum
	}
	if inverse {
		scale := complex(1/float64(n), 0)
		for k := range tmp {
			tmp[k] *= scale
		}
	}
	copy(output, tmp)
}

// RFFT computes the forward real-input transform, writing the half
// spectrum (length HalfSize()) exploiting conjugate symmetry.
func (e *Engine) RFFT(input []float32, output []complex128) error {
	if len(input) != e.size || len(output) != e.HalfSize() {
		return ErrSizeMismatch
	}
	full := make([]complex128, e.size)
	for i, v := range input {
		full[i] = complex(float64(v), 0)
	}
	if err := e.Forward(full, full); err != nil {
		return err
	}
	copy(output, full[:e.HalfSize()])
	return nil
}

// IRFFT reconstructs a real time-domain signal from its half spectrum.
func (e *Engine) IRFFT(input []complex128, output []float32) error {
	if len(input) != e.HalfSize() || len(output) != e.size {
		return ErrSizeMismatch
	}
	n := e.size
	full := make([]complex128, n)
	copy(full, input)
	for k := e.HalfSize(); k < n; k++ {
		full[k] = cmplx.Conj(full[n-k])
	}
	if err := e.Inverse(full, full); err != nil {
		return err
	}
	for i := range output {
		output[i] = float32(real(full[i]))
	}
	return nil
}

// Magnitude fills magnitudes[i] = |spectrum[i]| for i in [0, length).
func Magnitude(spectrum []complex128, magnitudes []float64, length int) {
	re := make([]float64, length)
	im := make([]float64, length)
	for i := 0; i < length; i++ {
		re[i] = real(spectrum[i])
		im[i] = imag(spectrum[i])
	}
	vecmath.Magnitude(magnitudes[:length], re, im)
}

// Power fills power[i] = |spectrum[i]|^2 for i in [0, length).
func Power(spectrum []complex128, power []float64, length int) {
	re := make([]float64, length)
	im := make([]float64, length)
	for i := 0; i < length; i++ {
		re[i] = real(spectrum[i])
		im[i] = imag(spectrum[i])
	}
	vecmath.Power(power[:length], re, im)
}

// Phase fills phases[i] = atan2(Im, Re) for i in [0, length).
func Phase(spectrum []complex128, phases []float64, length int) {
	for i := 0; i < length; i++ {
		phases[i] = math.Atan2(imag(spectrum[i]), real(spectrum[i]))
	}
}
