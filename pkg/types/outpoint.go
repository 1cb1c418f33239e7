package types

import "fmt"

// scriptHintAssetBit marks bit 0 of a hint as the "this is an asset output"
// discriminator. AssetOutputRef has it set; ContractOutputRef does not.
const scriptHintAssetBit = 1

// TxOutputRef identifies a previously created output: a hint (derived from
// the output's lockup script, with the asset/contract discriminator
// folded into its low bit) plus a key hash identifying the exact output.
type TxOutputRef struct {
	Hint uint32 `json:"hint"`
	Key  Hash   `json:"key"`
}

// IsAsset reports whether this ref names an asset output (vs. contract).
func (r TxOutputRef) IsAsset() bool { return r.Hint&scriptHintAssetBit != 0 }

// String renders "key#hint".
func (r TxOutputRef) String() string { return fmt.Sprintf("%s#%08x", r.Key, r.Hint) }

// NewAssetOutputRef builds a ref with the asset bit set.
func NewAssetOutputRef(scriptHint uint32, key Hash) TxOutputRef {
	return TxOutputRef{Hint: scriptHint | scriptHintAssetBit, Key: key}
}

// NewContractOutputRef builds a ref with the asset bit cleared.
func NewContractOutputRef(scriptHint uint32, key Hash) TxOutputRef {
	return TxOutputRef{Hint: scriptHint &^ scriptHintAssetBit, Key: key}
}

// OutputRefKey derives the key for an output at outputIndex within txId:
// hash(txId ‖ outputIndex), used uniformly for both fixed and
// script-generated outputs so the derivation has a single implementation.
func OutputRefKey(hashFn func([]byte) Hash, txId TxId, outputIndex uint32) Hash {
	buf := make([]byte, HashSize+4)
	copy(buf, txId[:])
	buf[HashSize] = byte(outputIndex >> 24)
	buf[HashSize+1] = byte(outputIndex >> 16)
	buf[HashSize+2] = byte(outputIndex >> 8)
	buf[HashSize+3] = byte(outputIndex)
	return hashFn(buf)
}
