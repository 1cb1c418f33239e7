package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressSize is the length of a public-key-hash address in bytes.
const AddressSize = 20

// Bech32 HRPs for the two networks.
const (
	MainnetHRP = "bf"
	TestnetHRP = "tbf"
)

// activeHRP is the address HRP used by String() and MarshalJSON().
// Set once at startup via SetAddressHRP().
var activeHRP = MainnetHRP

// SetAddressHRP sets the active address HRP. Call once at node startup.
func SetAddressHRP(hrp string) { activeHRP = hrp }

// GetAddressHRP returns the currently active address HRP.
func GetAddressHRP() string { return activeHRP }

// Address is a 160-bit public-key-hash, the payload of a P2PKH lockup
// script (or one entry of a P2MPKH lockup script).
type Address [AddressSize]byte

// IsZero reports whether the address is the all-zero value.
func (a Address) IsZero() bool { return a == Address{} }

// String returns the bech32-encoded address, e.g. "bf1...".
func (a Address) String() string {
	s, err := Bech32Encode(activeHRP, a[:])
	if err != nil {
		return activeHRP + ":" + hex.EncodeToString(a[:])
	}
	return s
}

// Hex returns the raw hex encoding without an HRP.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// Bytes returns a defensive copy of the address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a bech32 string.
func (a Address) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

// UnmarshalJSON decodes a bech32 or raw hex string into the address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a bech32 ("bf1...", "tbf1...") or raw 40-char hex
// address string.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if strings.Contains(s, "1") && !isHex40(s) {
		_, data, err := Bech32Decode(s)
		if err != nil {
			return Address{}, fmt.Errorf("invalid bech32 address: %w", err)
		}
		if len(data) != AddressSize {
			return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(data))
		}
		var a Address
		copy(a[:], data)
		return a, nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address: %w", err)
	}
	if len(decoded) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(decoded))
	}
	var a Address
	copy(a[:], decoded)
	return a, nil
}

// HexToAddress converts a raw hex string to an Address.
func HexToAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// LockupAddressString bech32-encodes a full LockupScript (any of the four
// variants), the user-facing address format that can name a P2SH or P2C
// output, not just a bare public-key hash.
func LockupAddressString(l LockupScript) string {
	s, err := Bech32Encode(activeHRP, l.Bytes())
	if err != nil {
		return activeHRP + ":" + hex.EncodeToString(l.Bytes())
	}
	return s
}

// ParseLockupAddress decodes a bech32 lockup-script address back into its
// tagged-union form.
func ParseLockupAddress(s string) (LockupScript, error) {
	_, data, err := Bech32Decode(s)
	if err != nil {
		return LockupScript{}, fmt.Errorf("invalid lockup address: %w", err)
	}
	return DecodeLockupScriptBytes(data)
}

// DecodeLockupScriptBytes decodes the raw payload produced by
// LockupScript.Bytes() back into its tagged-union form, independent of any
// address text encoding.
func DecodeLockupScriptBytes(data []byte) (LockupScript, error) {
	if len(data) < 1 {
		return LockupScript{}, fmt.Errorf("empty lockup payload")
	}
	tag := LockupScriptTag(data[0])
	rest := data[1:]
	switch tag {
	case LockupP2PKH:
		if len(rest) != AddressSize {
			return LockupScript{}, fmt.Errorf("p2pkh payload must be %d bytes", AddressSize)
		}
		var a Address
		copy(a[:], rest)
		return P2PKH(a), nil
	case LockupP2MPKH:
		if len(rest) < 1 || (len(rest)-1)%AddressSize != 0 {
			return LockupScript{}, fmt.Errorf("malformed p2mpkh payload")
		}
		m := int(rest[0])
		n := (len(rest) - 1) / AddressSize
		hashes := make([]Address, n)
		for i := 0; i < n; i++ {
			copy(hashes[i][:], rest[1+i*AddressSize:1+(i+1)*AddressSize])
		}
		return P2MPKH(hashes, m), nil
	case LockupP2SH:
		if len(rest) != HashSize {
			return LockupScript{}, fmt.Errorf("p2sh payload must be %d bytes", HashSize)
		}
		var h Hash
		copy(h[:], rest)
		return P2SH(h), nil
	case LockupP2C:
		if len(rest) != HashSize {
			return LockupScript{}, fmt.Errorf("p2c payload must be %d bytes", HashSize)
		}
		var h Hash
		copy(h[:], rest)
		return P2C(h), nil
	default:
		return LockupScript{}, fmt.Errorf("unknown lockup tag %d", tag)
	}
}
