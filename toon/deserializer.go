package toon

import (
	"encoding/binary"
	"math"
)

// Deserializer reads TOON-encoded values from a byte slice it does not own.
// Once a read fails, every subsequent read is a no-op returning the zero
// value; callers check HasError once at the end rather than after
// every call, mirroring the original's sticky error_state flag.
type Deserializer struct {
	data []byte
	pos  int
	err  bool
}

// NewDeserializer wraps data for reading. data is not copied.
func NewDeserializer(data []byte) *Deserializer {
	return &Deserializer{data: data}
}

// HasError reports whether a malformed read has occurred.
func (d *Deserializer) HasError() bool { return d.err }

// Pos returns the current read offset.
func (d *Deserializer) Pos() int { return d.pos }

// PeekToken returns the next token without consuming it, or TokenNull at
// end of stream.
func (d *Deserializer) PeekToken() Token {
	if d.pos >= len(d.data) {
		return TokenNull
	}
	return Token(d.data[d.pos])
}

// ReadToken consumes and returns the next token.
func (d *Deserializer) ReadToken() Token {
	if d.pos >= len(d.data) {
		d.err = true
		return TokenNull
	}
	t := Token(d.data[d.pos])
	d.pos++
	return t
}

func (d *Deserializer) consume(expected Token) bool {
	if d.pos >= len(d.data) || Token(d.data[d.pos]) != expected {
		d.err = true
		return false
	}
	d.pos++
	return true
}

// ReadInt32 consumes a tagged 32-bit integer.
func (d *Deserializer) ReadInt32() int32 {
	if !d.consume(TokenInt32) {
		return 0
	}
	if d.pos+4 > len(d.data) {
		d.err = true
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(d.data[d.pos:]))
	d.pos += 4
	return v
}

// ReadFloat consumes a tagged 32-bit float.
func (d *Deserializer) ReadFloat() float32 {
	if !d.consume(TokenFloat) {
		return 0
	}
	if d.pos+4 > len(d.data) {
		d.err = true
		return 0
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(d.data[d.pos:]))
	d.pos += 4
	return v
}

// ReadDouble consumes a tagged 64-bit float.
func (d *Deserializer) ReadDouble() float64 {
	if !d.consume(TokenDouble) {
		return 0
	}
	if d.pos+8 > len(d.data) {
		d.err = true
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(d.data[d.pos:]))
	d.pos += 8
	return v
}

// ReadBool consumes a tagged boolean.
func (d *Deserializer) ReadBool() bool {
	if !d.consume(TokenBool) {
		return false
	}
	if d.pos >= len(d.data) {
		d.err = true
		return false
	}
	v := d.data[d.pos] != 0
	d.pos++
	return v
}

// ReadString consumes a tagged length-prefixed string. The returned string
// shares no memory with the source buffer.
func (d *Deserializer) ReadString() string {
	if !d.consume(TokenString) {
		return ""
	}
	if d.pos+4 > len(d.data) {
		d.err = true
		return ""
	}
	n := int32(binary.LittleEndian.Uint32(d.data[d.pos:]))
	d.pos += 4
	if n < 0 || d.pos+int(n) > len(d.data) {
		d.err = true
		return ""
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s
}

// ReadFloatArray consumes a tagged, 32-byte-aligned float32 array.
func (d *Deserializer) ReadFloatArray() []float32 {
	if !d.consume(TokenFloatArray) {
		return nil
	}
	if d.pos+4 > len(d.data) {
		d.err = true
		return nil
	}
	count := int32(binary.LittleEndian.Uint32(d.data[d.pos:]))
	d.pos += 4
	if count < 0 {
		d.err = true
		return nil
	}

	if rem := d.pos % alignment; rem != 0 {
		d.pos += alignment - rem
	}

	n := int(count)
	byteLen := n * 4
	if d.pos+byteLen > len(d.data) {
		d.err = true
		return nil
	}

	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(d.data[d.pos+i*4:]))
	}
	d.pos += byteLen
	return out
}
