// Package blockflow tracks the G×G chain DAG's growing edge: for each
// chain it knows the current best tip, and it answers the two questions
// every other subsystem needs of it — "what deps should my next block
// commit to" (CalBestDeps, for mining) and "does this new block extend
// what I already know" (TryExtend, for validation/sync). It generalizes
// the teacher's single sub-chain Manager (internal/subchain/manager.go) —
// same "registry of chains behind one mutex" shape — from spawning
// independent sub-chains to tracking the G² chains BlockFlow always has.
package blockflow

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-chain/internal/chainstore"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Flow tracks the best-known tip of every chain in a groups-sized
// BlockFlow DAG, backed by a chainstore.Store for persistence.
type Flow struct {
	store  *chainstore.Store
	groups int
	mu     sync.RWMutex
}

// New returns a Flow over store for the given group count.
func New(store *chainstore.Store, groups int) *Flow {
	return &Flow{store: store, groups: groups}
}

// CalBestDeps builds the 2G-1 dependency vector for a new block mined on
// origin group `from`: the intra-chain tip of every other group, followed
// by this group's tip on each of its own G out-chains (including its own
// parent, at index `from`).
func (f *Flow) CalBestDeps(from types.GroupIndex) ([]types.BlockHash, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	deps := make([]types.BlockHash, 0, types.DepVectorLen(f.groups))
	for g := 0; g < f.groups; g++ {
		if types.GroupIndex(g) == from {
			continue
		}
		tip, _, err := f.store.GetTip(types.ChainIndex{From: types.GroupIndex(g), To: types.GroupIndex(g)})
		if err != nil {
			return nil, fmt.Errorf("blockflow: in-dep tip (%d,%d): %w", g, g, err)
		}
		deps = append(deps, tip)
	}
	for t := 0; t < f.groups; t++ {
		tip, _, err := f.store.GetTip(types.ChainIndex{From: from, To: types.GroupIndex(t)})
		if err != nil {
			return nil, fmt.Errorf("blockflow: out-dep tip (%d,%d): %w", from, t, err)
		}
		deps = append(deps, tip)
	}
	return deps, nil
}

// TryExtend records a validated block against the chain its hash belongs
// to (derived via block.ChainIndexFromHash), advancing that chain's tip
// if the new block is not worse than what's already known. Ties at equal
// height are broken by types.BlockHashOrderingLess so every honest node
// converges on the same tip without favoring whichever block it saw
// first.
func (f *Flow) TryExtend(blk *block.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	header := blk.Header
	hash := header.Hash()
	ci := header.ChainIndex(f.groups)

	var height uint64
	if header.IsGenesis() {
		height = 0
	} else {
		parent := header.ParentHash(ci.From, f.groups)
		parentHeader, err := f.store.GetHeader(parent)
		if err != nil {
			return fmt.Errorf("blockflow: parent %s of %s not found: %w", parent, hash, err)
		}
		parentCi := parentHeader.ChainIndex(f.groups)
		_, parentHeight, err := f.bestHeightAtOrAbove(parentCi, parent)
		if err != nil {
			return err
		}
		height = parentHeight + 1
	}

	if err := f.store.PutHeightHash(ci, height, hash); err != nil {
		return fmt.Errorf("blockflow: index %s at (%s,%d): %w", hash, ci, height, err)
	}

	tipHash, tipHeight, err := f.store.GetTip(ci)
	if err != nil {
		return fmt.Errorf("blockflow: get tip %s: %w", ci, err)
	}

	extends := tipHash.IsZero() ||
		height > tipHeight ||
		(height == tipHeight && types.BlockHashOrderingLess(tipHash, hash))
	if extends {
		if err := f.store.SetTip(ci, hash, height); err != nil {
			return fmt.Errorf("blockflow: set tip %s: %w", ci, err)
		}
	}
	return nil
}

// bestHeightAtOrAbove looks up the height a known hash was indexed at on
// chain ci by walking the height index starting at the chain's current
// tip height downward. It trusts that PutHeightHash was already called
// for hash when its own block was processed.
func (f *Flow) bestHeightAtOrAbove(ci types.ChainIndex, hash types.BlockHash) (types.BlockHash, uint64, error) {
	_, tipHeight, err := f.store.GetTip(ci)
	if err != nil {
		return types.BlockHash{}, 0, err
	}
	for h := tipHeight; ; h-- {
		hashes, err := f.store.HeightHashes(ci, h)
		if err != nil {
			return types.BlockHash{}, 0, err
		}
		for _, candidate := range hashes {
			if candidate == hash {
				return candidate, h, nil
			}
		}
		if h == 0 {
			break
		}
	}
	return types.BlockHash{}, 0, fmt.Errorf("blockflow: %s not indexed on chain %s", hash, ci)
}

// Tip returns the current (hash, height) of chain ci.
func (f *Flow) Tip(ci types.ChainIndex) (types.BlockHash, uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.store.GetTip(ci)
}

// BlockHeight resolves the height at which hash was indexed on chain ci.
// hash must already have been recorded via a prior TryExtend call on
// the same chain (e.g. a candidate block's parent). Used by
// internal/blockvalidate to compute the height a new block would take
// before committing it.
func (f *Flow) BlockHeight(ci types.ChainIndex, hash types.BlockHash) (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, height, err := f.bestHeightAtOrAbove(ci, hash)
	return height, err
}

// HistoryLocators returns a sparse, exponentially-spaced list of block
// hashes on chain ci, most recent first, for use in a peer sync request:
// the receiver walks the list to find the most recent common ancestor
// without either side needing to exchange every height in between.
func (f *Flow) HistoryLocators(ci types.ChainIndex) ([]types.BlockHash, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, tipHeight, err := f.store.GetTip(ci)
	if err != nil {
		return nil, err
	}

	var locators []types.BlockHash
	step := uint64(1)
	h := tipHeight
	for {
		hashes, err := f.store.HeightHashes(ci, h)
		if err != nil {
			return nil, err
		}
		if len(hashes) > 0 {
			locators = append(locators, hashes[0])
		}
		if h == 0 {
			break
		}
		if len(locators) >= 10 {
			step *= 2
		}
		if step > h {
			h = 0
		} else {
			h -= step
		}
	}
	return locators, nil
}
