package codec

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Reader decodes a canonical byte encoding produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps a byte slice for sequential decoding.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("codec: need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

// U8 reads a single byte.
func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// U32 reads a big-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// U64 reads a big-endian uint64.
func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// I32 reads a big-endian int32.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// I64 reads a big-endian int64.
func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// Fixed reads exactly n bytes verbatim.
func (r *Reader) Fixed(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+n])
	r.pos += n
	return b, nil
}

// ByteVec reads a length-prefixed byte string: len:u32 ‖ bytes.
func (r *Reader) ByteVec() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	return r.Fixed(int(n))
}

// SeqLen reads the length prefix for a sequence.
func (r *Reader) SeqLen() (int, error) {
	n, err := r.U32()
	return int(n), err
}

// Tag reads the tag byte for a sum type.
func (r *Reader) Tag() (uint8, error) {
	return r.U8()
}

// Bool reads a single-byte boolean.
func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// U256 reads a canonical 32-byte big-endian unsigned integer.
func (r *Reader) U256() (*big.Int, error) {
	b, err := r.Fixed(32)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// I256 reads a 32-byte two's-complement signed integer.
func (r *Reader) I256() (*big.Int, error) {
	b, err := r.Fixed(32)
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetBytes(b)
	// If the high bit is set, interpret as negative two's complement.
	if b[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, mod)
	}
	return v, nil
}

// Done reports whether all bytes have been consumed.
func (r *Reader) Done() bool {
	return r.Remaining() == 0
}
