package block

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/pkg/codec"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// GenesisTimestamp is the fixed timestamp (milliseconds since epoch) every
// genesis header carries.
const GenesisTimestamp uint64 = 0

// Header is a BlockFlow block header. It carries no explicit chain index:
// a header's (from, to) chain is derived from its own hash (see
// ChainIndexFromHash) the same way a miner searches for a nonce that both
// satisfies the PoW target and lands the hash in the desired chain.
type Header struct {
	Deps      []types.BlockHash `json:"deps"`
	TxsHash   types.Hash        `json:"txs_hash"`
	Timestamp uint64            `json:"timestamp"`
	Target    types.Target      `json:"target"`
	Nonce     *big.Int          `json:"nonce"`
}

type headerJSON struct {
	Deps      []types.BlockHash `json:"deps"`
	TxsHash   types.Hash        `json:"txs_hash"`
	Timestamp uint64            `json:"timestamp"`
	Target    types.Target      `json:"target"`
	Nonce     string            `json:"nonce"`
}

// MarshalJSON encodes Nonce as a decimal string since it may exceed the
// range JSON numbers can represent losslessly.
func (h *Header) MarshalJSON() ([]byte, error) {
	nonce := h.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}
	return json.Marshal(headerJSON{
		Deps:      h.Deps,
		TxsHash:   h.TxsHash,
		Timestamp: h.Timestamp,
		Target:    h.Target,
		Nonce:     nonce.String(),
	})
}

// UnmarshalJSON decodes a header previously produced by MarshalJSON.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	nonce, ok := new(big.Int).SetString(j.Nonce, 10)
	if !ok {
		return fmt.Errorf("block: invalid header nonce %q", j.Nonce)
	}
	h.Deps = j.Deps
	h.TxsHash = j.TxsHash
	h.Timestamp = j.Timestamp
	h.Target = j.Target
	h.Nonce = nonce
	return nil
}

// NewGenesisHeader builds the all-zero-deps header fixed genesis blocks
// carry, with the given txsHash and target.
func NewGenesisHeader(groups int, txsHash types.Hash, target types.Target) *Header {
	return &Header{
		Deps:      make([]types.BlockHash, types.DepVectorLen(groups)),
		TxsHash:   txsHash,
		Timestamp: GenesisTimestamp,
		Target:    target,
		Nonce:     new(big.Int),
	}
}

// IsGenesis reports whether this header is a fixed all-zero-deps genesis
// header.
func (h *Header) IsGenesis() bool {
	for _, d := range h.Deps {
		if !d.IsZero() {
			return false
		}
	}
	return true
}

// InDeps returns the first G-1 entries of the dependency vector: the
// intra-group dependencies on every group other than this header's own.
func (h *Header) InDeps(groups int) []types.BlockHash {
	return h.Deps[:groups-1]
}

// OutDeps returns the last G entries of the dependency vector: the
// dependency on each destination group's chain, including this header's
// own out-chain (whose entry is always the header's parent hash).
func (h *Header) OutDeps(groups int) []types.BlockHash {
	return h.Deps[groups-1:]
}

// UncleHash returns the dependency this header commits to on the chain
// (from, toGroup), i.e. OutDeps(groups)[toGroup].
func (h *Header) UncleHash(toGroup types.GroupIndex, groups int) types.BlockHash {
	return h.OutDeps(groups)[toGroup]
}

// ParentHash returns the header's parent on its own intra-chain: the
// out-dependency entry for its own "from" group.
func (h *Header) ParentHash(from types.GroupIndex, groups int) types.BlockHash {
	return h.OutDeps(groups)[from]
}

// Hash computes the header's identifying hash, the value a miner searches
// nonces against.
func (h *Header) Hash() types.BlockHash {
	return types.BlockHash(crypto.Hash(h.SigningBytes()))
}

// SigningBytes returns the canonical encoding hashed for PoW and used as
// the block's identity: depsLen:u32 ‖ dep[Hash]×depsLen ‖ txsHash:Hash ‖
// timestamp:u64 ‖ target:4 ‖ nonce:u256.
func (h *Header) SigningBytes() []byte {
	w := codec.NewWriter(4 + len(h.Deps)*32 + 32 + 8 + 4 + 32)
	w.SeqLen(len(h.Deps))
	for _, d := range h.Deps {
		w.Fixed(d.Bytes())
	}
	w.Fixed(h.TxsHash.Bytes())
	w.U64(h.Timestamp)
	w.Raw(h.Target[:])
	nonce := h.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}
	w.U256(nonce)
	return w.Bytes()
}

// ChainIndexFromHash derives the (from, to) chain a header's hash belongs
// to. Two independent windows of the hash are each reduced mod groups,
// letting a miner target a specific chain purely by searching nonces: the
// header carries no separate chain-index field.
func ChainIndexFromHash(hash types.BlockHash, groups int) types.ChainIndex {
	from := new(big.Int).SetBytes(hash[:16])
	to := new(big.Int).SetBytes(hash[16:])
	g := big.NewInt(int64(groups))
	return types.ChainIndex{
		From: types.GroupIndex(new(big.Int).Mod(from, g).Int64()),
		To:   types.GroupIndex(new(big.Int).Mod(to, g).Int64()),
	}
}

// ChainIndex returns the chain this header belongs to, derived from its
// hash.
func (h *Header) ChainIndex(groups int) types.ChainIndex {
	return ChainIndexFromHash(h.Hash(), groups)
}

// PoWValid reports whether the header's hash satisfies its own target.
func (h *Header) PoWValid() bool {
	return h.Target.PoWValid(types.Hash(h.Hash()))
}
