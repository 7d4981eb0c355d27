// Package toon implements the TOON tagged-byte wire format used to persist
// pipeline and stage state: a flat stream of typed tokens (ints, floats,
// strings, float arrays, nested object/array brackets) with a 32-byte
// aligned payload for float arrays so SIMD kernels can consume them
// directly after deserialization.
//
// The wire format is always little-endian. encoding/binary.LittleEndian
// already performs the correct byte order conversion regardless of host
// architecture, so unlike the C++ original this package needs no
// host-endianness branch: every Go build target produces identical bytes.
package toon

import (
	"errors"
)

// Token identifies the type of the next value in the stream.
type Token byte

const (
	TokenNull       Token = 0x00
	TokenInt32      Token = 0x01
	TokenFloat      Token = 0x02
	TokenString     Token = 0x03
	TokenFloatArray Token = 0x04
	TokenObjectStart Token = 0x10
	TokenObjectEnd   Token = 0x11
	TokenArrayStart  Token = 0x12
	TokenArrayEnd    Token = 0x13
	TokenBool        Token = 0x14
	TokenDouble      Token = 0x15
)

// alignment is the byte boundary float array payloads are padded to, so a
// consumer holding the underlying buffer can reinterpret the payload as a
// 32-byte-aligned []float32 for AVX2/NEON loads.
const alignment = 32

// ErrMalformed indicates the deserializer encountered an unexpected token,
// a truncated buffer, or a length field that would read past the stream.
var ErrMalformed = errors.New("toon: malformed stream")
