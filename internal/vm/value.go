package vm

import (
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// encodeVal/decodeVal give each Val a flat byte encoding for storage as
// a trie leaf: a one-byte type tag isn't needed since the reader takes
// the field's declared ValType from the contract's FieldTypes, so only
// the payload is written.
func encodeVal(v Val) ([]byte, error) {
	switch val := v.(type) {
	case ValBool:
		if val {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case ValI256:
		sign := byte(0)
		if val.V.Sign() < 0 {
			sign = 1
		}
		mag := new(big.Int).Abs(val.V).Bytes()
		return append([]byte{sign}, mag...), nil
	case ValU256:
		return val.V.Bytes(), nil
	case ValByteVec:
		return val.V, nil
	case ValAddress:
		return val.V[:], nil
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrInvalidType, v)
	}
}

func decodeVal(t ValType, raw []byte) (Val, error) {
	switch t {
	case TBool:
		return ValBool(len(raw) > 0 && raw[0] != 0), nil
	case TI256:
		if len(raw) == 0 {
			return ValI256{V: new(big.Int)}, nil
		}
		v := new(big.Int).SetBytes(raw[1:])
		if raw[0] == 1 {
			v.Neg(v)
		}
		return ValI256{V: v}, nil
	case TU256:
		return ValU256{V: new(big.Int).SetBytes(raw)}, nil
	case TByteVec:
		return ValByteVec{V: raw}, nil
	case TAddress:
		var a types.Address
		copy(a[:], raw)
		return ValAddress{V: a}, nil
	default:
		return nil, fmt.Errorf("%w: unknown value type %d", ErrInvalidType, t)
	}
}

// ValType discriminates the kinds of value the operand stack holds.
// Strongly typed at the stack level: a pop that sees the wrong variant
// aborts the frame with InvalidType, mirroring the spec's Val sum type.
type ValType uint8

const (
	TBool ValType = iota
	TI256
	TU256
	TByteVec
	TAddress
)

func (t ValType) String() string {
	switch t {
	case TBool:
		return "Bool"
	case TI256:
		return "I256"
	case TU256:
		return "U256"
	case TByteVec:
		return "ByteVec"
	case TAddress:
		return "Address"
	default:
		return "Unknown"
	}
}

// Val is a value on the VM operand stack or in a method's locals/fields.
type Val interface {
	Type() ValType
}

// ValBool wraps a boolean.
type ValBool bool

func (ValBool) Type() ValType { return TBool }

// ValI256 wraps a signed 256-bit integer (checked arithmetic: overflow
// aborts the frame rather than wrapping).
type ValI256 struct{ V *big.Int }

func (ValI256) Type() ValType { return TI256 }

// NewI256 builds a ValI256 from an int64.
func NewI256(v int64) ValI256 { return ValI256{V: big.NewInt(v)} }

// ValU256 wraps an unsigned 256-bit integer.
type ValU256 struct{ V *big.Int }

func (ValU256) Type() ValType { return TU256 }

// NewU256 builds a ValU256 from a uint64.
func NewU256(v uint64) ValU256 { return ValU256{V: new(big.Int).SetUint64(v)} }

// ValByteVec wraps an arbitrary byte string (gas for conversions to/from
// this type is proportional to its length).
type ValByteVec struct{ V []byte }

func (ValByteVec) Type() ValType { return TByteVec }

// ValAddress wraps a 160-bit address.
type ValAddress struct{ V types.Address }

func (ValAddress) Type() ValType { return TAddress }

var (
	i256Bound = new(big.Int).Lsh(big.NewInt(1), 255) // [-2^255, 2^255)
	u256Bound = new(big.Int).Lsh(big.NewInt(1), 256) // [0, 2^256)
)

// checkI256Range reports whether v fits in a signed 256-bit integer.
func checkI256Range(v *big.Int) bool {
	neg := new(big.Int).Neg(i256Bound)
	return v.Cmp(neg) >= 0 && v.Cmp(i256Bound) < 0
}

// checkU256Range reports whether v fits in an unsigned 256-bit integer.
func checkU256Range(v *big.Int) bool {
	return v.Sign() >= 0 && v.Cmp(u256Bound) < 0
}

// asBool type-asserts v as ValBool, aborting with ErrInvalidType otherwise.
func asBool(v Val) (bool, error) {
	b, ok := v.(ValBool)
	if !ok {
		return false, fmt.Errorf("%w: want Bool, got %s", ErrInvalidType, v.Type())
	}
	return bool(b), nil
}

func asI256(v Val) (*big.Int, error) {
	i, ok := v.(ValI256)
	if !ok {
		return nil, fmt.Errorf("%w: want I256, got %s", ErrInvalidType, v.Type())
	}
	return i.V, nil
}

func asU256(v Val) (*big.Int, error) {
	u, ok := v.(ValU256)
	if !ok {
		return nil, fmt.Errorf("%w: want U256, got %s", ErrInvalidType, v.Type())
	}
	return u.V, nil
}

func asByteVec(v Val) ([]byte, error) {
	b, ok := v.(ValByteVec)
	if !ok {
		return nil, fmt.Errorf("%w: want ByteVec, got %s", ErrInvalidType, v.Type())
	}
	return b.V, nil
}

func asAddress(v Val) (types.Address, error) {
	a, ok := v.(ValAddress)
	if !ok {
		return types.Address{}, fmt.Errorf("%w: want Address, got %s", ErrInvalidType, v.Type())
	}
	return a.V, nil
}
