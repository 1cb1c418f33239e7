// Package types defines the core primitive types of the BlockFlow data
// model: hashes, group/chain indices, scripts, outputs, and transactions.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length of a content-addressed hash in bytes.
const HashSize = 32

// Hash is a 256-bit content-addressed identifier.
type Hash [HashSize]byte

// BlockHash identifies a block header. It is a distinct type from TxId so
// the two identifier spaces can never be confused at the type level, even
// though both are 32-byte hashes underneath.
type BlockHash Hash

// TxId identifies a transaction: hash of its unsigned part.
type TxId Hash

// IsZero reports whether the hash is the all-zero value.
func (h Hash) IsZero() bool { return h == Hash{} }

// String returns the hex encoding of the hash.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a defensive copy of the hash bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) { return json.Marshal(h.String()) }

// UnmarshalJSON decodes a hex string into the hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != HashSize {
		return fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return nil
}

// HexToHash parses a 64-character hex string into a Hash.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func (h BlockHash) IsZero() bool                     { return Hash(h).IsZero() }
func (h BlockHash) String() string                   { return Hash(h).String() }
func (h BlockHash) Bytes() []byte                    { return Hash(h).Bytes() }
func (h BlockHash) Hash() Hash                       { return Hash(h) }
func (h BlockHash) MarshalJSON() ([]byte, error)     { return Hash(h).MarshalJSON() }
func (h *BlockHash) UnmarshalJSON(data []byte) error { return (*Hash)(h).UnmarshalJSON(data) }

func (t TxId) IsZero() bool                     { return Hash(t).IsZero() }
func (t TxId) String() string                   { return Hash(t).String() }
func (t TxId) Bytes() []byte                    { return Hash(t).Bytes() }
func (t TxId) Hash() Hash                       { return Hash(t) }
func (t TxId) MarshalJSON() ([]byte, error)     { return Hash(t).MarshalJSON() }
func (t *TxId) UnmarshalJSON(data []byte) error { return (*Hash)(t).UnmarshalJSON(data) }

// BlockHashOrderingLess is the fixed lexicographic ordering on 32-byte
// block hashes used to break weight ties deterministically: every honest
// node sorting the same set of hashes with this comparator gets the same
// order, which is what makes reorg tie-breaks and tip-extension candidate
// ordering reproducible across the network.
func BlockHashOrderingLess(a, b BlockHash) bool {
	for i := 0; i < HashSize; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
