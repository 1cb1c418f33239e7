// Package chainstore persists BlockFlow's G×G chains: one block store
// keyed by hash, a per-chain height index, a per-chain tip pointer, and a
// canonical-chain marker for each block. It generalizes the teacher's
// single-chain BlockStore (internal/chain/store.go) from one height axis
// to one height axis per (from,to) chain.
package chainstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Store persists blocks, headers, and per-chain indexes over a set of
// storage.Columns.
type Store struct {
	cols *storage.Columns
}

// New wraps cols as a chain store.
func New(cols *storage.Columns) *Store {
	return &Store{cols: cols}
}

// PutBlock stores a block's body and header by hash and indexes its
// transactions, without touching height/tip/canonical state. Callers
// decide canonicity separately, since a block may sit in the DAG as a
// non-canonical (but still valid) block for a while.
func (s *Store) PutBlock(blk *block.Block) error {
	hash := blk.Header.Hash()

	headerData, err := json.Marshal(blk.Header)
	if err != nil {
		return fmt.Errorf("chainstore: marshal header: %w", err)
	}
	if err := s.cols.Headers.Put(hash[:], headerData); err != nil {
		return fmt.Errorf("chainstore: put header: %w", err)
	}

	blockData, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("chainstore: marshal block: %w", err)
	}
	if err := s.cols.Blocks.Put(hash[:], blockData); err != nil {
		return fmt.Errorf("chainstore: put block: %w", err)
	}

	for _, t := range blk.Transactions {
		txId := t.TxId()
		if err := s.cols.Txs.Put(txId[:], hash[:]); err != nil {
			return fmt.Errorf("chainstore: index tx %s: %w", txId, err)
		}
	}
	return nil
}

// GetBlock retrieves a full block by hash.
func (s *Store) GetBlock(hash types.BlockHash) (*block.Block, error) {
	data, err := s.cols.Blocks.Get(hash[:])
	if err != nil {
		return nil, fmt.Errorf("chainstore: get block %s: %w", hash, err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("chainstore: unmarshal block %s: %w", hash, err)
	}
	return &blk, nil
}

// GetHeader retrieves a header by hash without loading the full block
// body — used by headers-first sync.
func (s *Store) GetHeader(hash types.BlockHash) (*block.Header, error) {
	data, err := s.cols.Headers.Get(hash[:])
	if err != nil {
		return nil, fmt.Errorf("chainstore: get header %s: %w", hash, err)
	}
	var h block.Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("chainstore: unmarshal header %s: %w", hash, err)
	}
	return &h, nil
}

// HasBlock reports whether a block with this hash is stored.
func (s *Store) HasBlock(hash types.BlockHash) (bool, error) {
	return s.cols.Blocks.Has(hash[:])
}

// GetTxLocation returns the hash of the block containing txId.
func (s *Store) GetTxLocation(txId types.TxId) (types.BlockHash, error) {
	data, err := s.cols.Txs.Get(txId[:])
	if err != nil {
		return types.BlockHash{}, fmt.Errorf("chainstore: tx location %s: %w", txId, err)
	}
	var hash types.BlockHash
	copy(hash[:], data)
	return hash, nil
}

// heightKey encodes a per-chain height index key: ci.From, ci.To, height.
func heightKey(ci types.ChainIndex, height uint64) []byte {
	key := make([]byte, 2+8)
	key[0] = byte(ci.From)
	key[1] = byte(ci.To)
	binary.BigEndian.PutUint64(key[2:], height)
	return key
}

// PutHeightHash records hash as the block at height on chain ci. A chain
// may carry multiple blocks at the same height (competing, not-yet-resolved
// forks); the caller is responsible for calling SetCanonical to mark which
// one the canonical view should use — PutHeightHash itself just indexes
// the block for lookup by (chain, height, hash), so reorg never loses a
// once-valid block it needs to roll back to.
func (s *Store) PutHeightHash(ci types.ChainIndex, height uint64, hash types.BlockHash) error {
	key := append(heightKey(ci, height), hash[:]...)
	return s.cols.Heights.Put(key, []byte{1})
}

// HeightHashes returns every block hash indexed at (ci, height).
func (s *Store) HeightHashes(ci types.ChainIndex, height uint64) ([]types.BlockHash, error) {
	prefix := heightKey(ci, height)
	var out []types.BlockHash
	err := s.cols.Heights.ForEach(prefix, func(key, _ []byte) error {
		var hash types.BlockHash
		copy(hash[:], key[len(prefix):])
		out = append(out, hash)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chainstore: height hashes (%s,%d): %w", ci, height, err)
	}
	return out, nil
}

// SetCanonical marks hash as canonical (or not) on the chain it belongs to.
func (s *Store) SetCanonical(hash types.BlockHash, canonical bool) error {
	if !canonical {
		return s.cols.Canonical.Delete(hash[:])
	}
	return s.cols.Canonical.Put(hash[:], []byte{1})
}

// IsCanonical reports whether hash is currently marked canonical.
func (s *Store) IsCanonical(hash types.BlockHash) (bool, error) {
	return s.cols.Canonical.Has(hash[:])
}

// trieRootKey is the Meta key the world-state trie's committed root lives
// under, a singleton shared by every chain since the trie is one global
// keyspace over all contracts.
var trieRootKey = []byte("trieroot")

// SetTrieRoot records the world-state trie's root after a Commit.
func (s *Store) SetTrieRoot(root types.Hash) error {
	return s.cols.Meta.Put(trieRootKey, root[:])
}

// GetTrieRoot returns the last committed trie root (the zero hash if
// none has been committed yet).
func (s *Store) GetTrieRoot() (types.Hash, error) {
	data, err := s.cols.Meta.Get(trieRootKey)
	if err != nil {
		return types.Hash{}, nil
	}
	var root types.Hash
	copy(root[:], data)
	return root, nil
}

// tipKey returns the Meta key under which a chain's tip pointer lives.
func tipKey(ci types.ChainIndex) []byte {
	return []byte(fmt.Sprintf("tip/%d/%d", ci.From, ci.To))
}

// SetTip records the current best-known (hash, height) for chain ci.
func (s *Store) SetTip(ci types.ChainIndex, hash types.BlockHash, height uint64) error {
	val := make([]byte, types.HashSize+8)
	copy(val, hash[:])
	binary.BigEndian.PutUint64(val[types.HashSize:], height)
	return s.cols.Meta.Put(tipKey(ci), val)
}

// GetTip returns chain ci's current tip (the zero hash, height 0 if unset).
func (s *Store) GetTip(ci types.ChainIndex) (types.BlockHash, uint64, error) {
	data, err := s.cols.Meta.Get(tipKey(ci))
	if err != nil {
		return types.BlockHash{}, 0, nil
	}
	if len(data) != types.HashSize+8 {
		return types.BlockHash{}, 0, fmt.Errorf("chainstore: corrupt tip entry for %s", ci)
	}
	var hash types.BlockHash
	copy(hash[:], data[:types.HashSize])
	height := binary.BigEndian.Uint64(data[types.HashSize:])
	return hash, height, nil
}
