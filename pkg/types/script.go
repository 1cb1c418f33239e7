package types

import "fmt"

// LockupScriptTag is the wire tag of a LockupScript variant.
type LockupScriptTag uint8

const (
	LockupP2PKH  LockupScriptTag = 0 // pay to public key hash
	LockupP2MPKH LockupScriptTag = 1 // pay to multi-pubkey-hash (m-of-n)
	LockupP2SH   LockupScriptTag = 2 // pay to script hash
	LockupP2C    LockupScriptTag = 3 // pay to contract
)

func (t LockupScriptTag) String() string {
	switch t {
	case LockupP2PKH:
		return "P2PKH"
	case LockupP2MPKH:
		return "P2MPKH"
	case LockupP2SH:
		return "P2SH"
	case LockupP2C:
		return "P2C"
	default:
		return "Unknown"
	}
}

// LockupScript is the UTXO spending condition, a tagged union over the
// four variants the protocol defines. Exactly one of the typed fields is
// meaningful, selected by Tag; this mirrors the wire encoding's
// tag:u8‖payload sum-type convention instead of relying on runtime
// subtype dispatch.
type LockupScript struct {
	Tag LockupScriptTag

	PKHash      Address   // LockupP2PKH
	PKHashes    []Address // LockupP2MPKH
	M           int       // LockupP2MPKH: required signature count
	ScriptHash  Hash       // LockupP2SH
	ContractId  Hash       // LockupP2C
}

// P2PKH constructs a pay-to-public-key-hash lockup script.
func P2PKH(pkHash Address) LockupScript {
	return LockupScript{Tag: LockupP2PKH, PKHash: pkHash}
}

// P2MPKH constructs an m-of-n multi-pubkey-hash lockup script.
func P2MPKH(pkHashes []Address, m int) LockupScript {
	return LockupScript{Tag: LockupP2MPKH, PKHashes: pkHashes, M: m}
}

// P2SH constructs a pay-to-script-hash lockup script.
func P2SH(scriptHash Hash) LockupScript {
	return LockupScript{Tag: LockupP2SH, ScriptHash: scriptHash}
}

// P2C constructs a pay-to-contract lockup script: the contract's own
// asset output.
func P2C(contractId Hash) LockupScript {
	return LockupScript{Tag: LockupP2C, ContractId: contractId}
}

// Bytes returns the canonical content that identifies this lockup script,
// used both for hash(lockupScript) (group binding) and for address
// encoding.
func (l LockupScript) Bytes() []byte {
	switch l.Tag {
	case LockupP2PKH:
		b := make([]byte, 1+AddressSize)
		b[0] = byte(LockupP2PKH)
		copy(b[1:], l.PKHash[:])
		return b
	case LockupP2MPKH:
		b := []byte{byte(LockupP2MPKH), byte(l.M)}
		for _, h := range l.PKHashes {
			b = append(b, h[:]...)
		}
		return b
	case LockupP2SH:
		b := make([]byte, 1+HashSize)
		b[0] = byte(LockupP2SH)
		copy(b[1:], l.ScriptHash[:])
		return b
	case LockupP2C:
		b := make([]byte, 1+HashSize)
		b[0] = byte(LockupP2C)
		copy(b[1:], l.ContractId[:])
		return b
	default:
		return []byte{byte(l.Tag)}
	}
}

// GroupIndexOf derives the shard a lockup script is bound to:
// hash(lockupScript).xorByte mod G. hashFn is injected so pkg/types does
// not need to import pkg/crypto (which itself depends on pkg/types).
func (l LockupScript) GroupIndexOf(hashFn func([]byte) Hash, groups int) GroupIndex {
	h := hashFn(l.Bytes())
	var x byte
	for _, b := range h {
		x ^= b
	}
	return GroupIndex(int(x) % groups)
}

// UnlockScriptTag is the wire tag of an UnlockScript variant.
type UnlockScriptTag uint8

const (
	UnlockP2PKH  UnlockScriptTag = 0
	UnlockP2MPKH UnlockScriptTag = 1
	UnlockP2SH   UnlockScriptTag = 2
)

// IndexedPublicKey pairs a public key with the multisig slot it fills.
type IndexedPublicKey struct {
	PubKey []byte
	Index  int
}

// UnlockScript is the witness structurally matching a LockupScript
// variant: P2PKH carries the public key, P2MPKH an indexed subset of
// public keys, P2SH the script plus its parameters.
type UnlockScript struct {
	Tag UnlockScriptTag

	PubKey            []byte             // UnlockP2PKH
	IndexedPublicKeys []IndexedPublicKey // UnlockP2MPKH
	Script            []byte             // UnlockP2SH
	Params            [][]byte           // UnlockP2SH
}

// MatchesLockup reports whether this unlock script's variant structurally
// matches the lockup script it is meant to spend.
func (u UnlockScript) MatchesLockup(l LockupScript) bool {
	switch l.Tag {
	case LockupP2PKH:
		return u.Tag == UnlockP2PKH
	case LockupP2MPKH:
		return u.Tag == UnlockP2MPKH
	case LockupP2SH:
		return u.Tag == UnlockP2SH
	case LockupP2C:
		return false // contract outputs are spent only by VM script execution
	default:
		return false
	}
}

func (u UnlockScript) String() string {
	return fmt.Sprintf("Unlock{tag=%d}", u.Tag)
}
