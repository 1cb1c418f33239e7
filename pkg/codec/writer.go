// Package codec implements the deterministic binary wire/disk encoding
// shared by every data-model type: fixed-width big-endian integers,
// length-prefixed byte strings and sequences, and tag-prefixed sum types.
package codec

import (
	"encoding/binary"
	"math/big"
)

// Writer accumulates a canonical byte encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with a pre-sized backing array.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// U8 appends a single byte.
func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

// U32 appends a big-endian uint32.
func (w *Writer) U32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// U64 appends a big-endian uint64.
func (w *Writer) U64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// I32 appends a big-endian int32.
func (w *Writer) I32(v int32) {
	w.U32(uint32(v))
}

// I64 appends a big-endian int64.
func (w *Writer) I64(v int64) {
	w.U64(uint64(v))
}

// Raw appends bytes verbatim, with no length prefix.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Fixed appends a fixed-width field verbatim (e.g. a 32-byte Hash), with
// no length prefix.
func (w *Writer) Fixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// ByteVec appends a length-prefixed byte string: len:u32 ‖ bytes.
func (w *Writer) ByteVec(b []byte) {
	w.U32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// SeqLen writes the length prefix for a sequence; callers then write each
// element with the appropriate method.
func (w *Writer) SeqLen(n int) {
	w.U32(uint32(n))
}

// Tag writes the tag byte for a sum type.
func (w *Writer) Tag(t uint8) {
	w.U8(t)
}

// Bool appends a single-byte boolean.
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// U256 appends a big.Int as a canonical 32-byte big-endian unsigned value.
// Values must fit in 256 bits; big.Int.FillBytes panics on a larger value
// (callers validate range beforehand).
func (w *Writer) U256(v *big.Int) {
	var b [32]byte
	v.FillBytes(b[:])
	w.buf = append(w.buf, b[:]...)
}

// I256 appends a signed 256-bit integer as a 32-byte two's-complement value.
func (w *Writer) I256(v *big.Int) {
	var b [32]byte
	if v.Sign() < 0 {
		// Two's complement: 2^256 + v.
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		mod.Add(mod, v)
		mod.FillBytes(b[:])
	} else {
		v.FillBytes(b[:])
	}
	w.buf = append(w.buf, b[:]...)
}
