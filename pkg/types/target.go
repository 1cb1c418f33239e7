package types

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Target is the 4-byte compact encoding of a 256-bit non-negative integer
// used as the PoW difficulty bound: size:u8 ‖ mantissa[3], value =
// mantissa << (8*(size-3)).
type Target [4]byte

// maxUint256 is 2^256 - 1, used to bound the decoded Int and to derive
// block weight from a target.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NewTargetFromInt compactly encodes a non-negative big.Int as a Target.
// Mirrors Bitcoin-style compact encoding: the mantissa is the most
// significant 3 bytes, "size" is the total byte length of the value.
func NewTargetFromInt(v *big.Int) (Target, error) {
	if v.Sign() < 0 {
		return Target{}, fmt.Errorf("target: negative value")
	}
	if v.Sign() == 0 {
		return Target{0, 0, 0, 0}, nil
	}
	b := v.Bytes()
	size := len(b)
	var mantissa [3]byte
	switch {
	case size <= 3:
		copy(mantissa[:size], b)
	default:
		copy(mantissa[:], b[:3])
	}
	if size > 255 {
		return Target{}, fmt.Errorf("target: value too large")
	}
	return Target{byte(size), mantissa[0], mantissa[1], mantissa[2]}, nil
}

// Int decodes the Target back into its represented big.Int value.
func (t Target) Int() *big.Int {
	size := int(t[0])
	mantissa := new(big.Int).SetBytes(t[1:4])
	if size <= 3 {
		// Mantissa bytes beyond `size` from the left are not significant;
		// shift right to keep only the first `size` bytes of mantissa.
		shift := uint((3 - size) * 8)
		return new(big.Int).Rsh(mantissa, shift)
	}
	shift := uint((size - 3) * 8)
	return new(big.Int).Lsh(mantissa, shift)
}

// MarshalJSON encodes the target as a hex string.
func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%02x%02x%02x%02x", t[0], t[1], t[2], t[3]))
}

// UnmarshalJSON decodes a hex string into the target.
func (t *Target) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var b [4]byte
	if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &b[0], &b[1], &b[2], &b[3]); err != nil {
		return fmt.Errorf("invalid target hex %q: %w", s, err)
	}
	*t = Target(b)
	return nil
}

// PoWValid reports whether hash, read as a big-endian 256-bit unsigned
// integer, is <= the target: the core PoW acceptance test.
func (t Target) PoWValid(hash Hash) bool {
	hashInt := new(big.Int).SetBytes(hash[:])
	return hashInt.Cmp(t.Int()) <= 0
}

// Weight is block weight, monotonically decreasing with target (harder
// target ⇒ more weight). Weight ≈ 2^256 / target.
type Weight big.Int

// WeightFromTarget computes weight ≈ 2^256 / target for a given target.
// A zero target is treated as the maximal possible difficulty (weight
// saturates at maxUint256) since a literal division by zero has no
// meaningful weight.
func WeightFromTarget(t Target) *big.Int {
	ti := t.Int()
	if ti.Sign() == 0 {
		return new(big.Int).Set(maxUint256)
	}
	return new(big.Int).Div(maxUint256, ti)
}

// AddWeight returns a+b without mutating either argument.
func AddWeight(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// CompareWeight returns -1, 0, or 1 as a is less than, equal to, or
// greater than b.
func CompareWeight(a, b *big.Int) int {
	return a.Cmp(b)
}
