// Package blockvalidate runs the stateful per-block checks that need
// chain history: dependency resolution, target continuity with the
// parent chain, coinbase reward arithmetic, per-transaction validation
// in the block's deterministic script-execution order, and the
// inter-block conflict re-check every block triggers against its
// siblings' spends.
//
// pkg/block.Block.Validate covers everything derivable from a block's
// own bytes (shape, PoW, the txs-hash commitment, per-tx structural
// rules); this package covers everything that needs the chain around
// it, the same split internal/txvalidate draws at the transaction
// level. It generalizes the teacher's internal/chain/processor.go
// (ProcessBlock), which validated a single flat chain's linkage, UTXO
// application, and coinbase maturity, into BlockFlow's G×G chain set.
package blockvalidate

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/blockflow"
	"github.com/Klingon-tech/klingnet-chain/internal/chainstore"
	"github.com/Klingon-tech/klingnet-chain/internal/conflict"
	"github.com/Klingon-tech/klingnet-chain/internal/txvalidate"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Block validation errors.
var (
	ErrMissingDep         = errors.New("blockvalidate: dependency not found")
	ErrBadParentTimestamp = errors.New("blockvalidate: timestamp does not follow parent")
	ErrBadTarget          = errors.New("blockvalidate: target does not match the parent chain's target")
	ErrBadCoinbaseReward  = errors.New("blockvalidate: coinbase reward does not match baseReward + fees")
	ErrBlockConflict      = errors.New("blockvalidate: block's input conflicts with an already-confirmed spend")
	ErrStaleTimestamp     = errors.New("blockvalidate: timestamp too far behind wall clock")
)

// Validator runs every stateful block-level check. It delegates
// per-transaction checks to an injected *txvalidate.Validator, which
// must already be wired against a world-state resolver appropriate for
// the chain being validated.
type Validator struct {
	Flow      *blockflow.Flow
	Store     *chainstore.Store
	Txs       *txvalidate.Validator
	Conflicts *conflict.Cache
	Rules     config.ConsensusRules
	Groups    int
}

// New returns a block validator wired against flow/store for
// dependency and height lookups, txs for per-transaction checks, and
// rules for the block reward schedule and timestamp bounds.
func New(flow *blockflow.Flow, store *chainstore.Store, txs *txvalidate.Validator, conflicts *conflict.Cache, rules config.ConsensusRules, groups int) *Validator {
	return &Validator{Flow: flow, Store: store, Txs: txs, Conflicts: conflicts, Rules: rules, Groups: groups}
}

// ValidateBlock checks blk against every stateful rule, after first
// running blk.Validate(groups) — the structural/PoW/txsHash/shape
// checks — itself.
func (v *Validator) ValidateBlock(blk *block.Block) error {
	if err := blk.Validate(v.Groups); err != nil {
		return fmt.Errorf("structure: %w", err)
	}

	header := blk.Header
	if header.IsGenesis() {
		return nil
	}

	ci := header.ChainIndex(v.Groups)
	parentHash := header.ParentHash(ci.From, v.Groups)
	parentHeader, err := v.Store.GetHeader(parentHash)
	if err != nil {
		return fmt.Errorf("%w: parent %s: %v", ErrMissingDep, parentHash, err)
	}
	if header.Timestamp <= parentHeader.Timestamp {
		return fmt.Errorf("%w: %d <= parent %d", ErrBadParentTimestamp, header.Timestamp, parentHeader.Timestamp)
	}
	if header.Target != parentHeader.Target {
		return fmt.Errorf("%w: header=%x parent=%x", ErrBadTarget, header.Target, parentHeader.Target)
	}

	for _, dep := range header.Deps {
		if _, err := v.Store.GetHeader(dep); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMissingDep, dep, err)
		}
	}

	parentCi := parentHeader.ChainIndex(v.Groups)
	parentHeight, err := v.Flow.BlockHeight(parentCi, parentHash)
	if err != nil {
		return fmt.Errorf("%w: parent height: %v", ErrMissingDep, err)
	}
	height := parentHeight + 1

	env := txvalidate.BlockEnv{Timestamp: header.Timestamp, ChainIndex: ci, Groups: v.Groups}
	nonCoinbase := blk.NonCoinbase()
	order := blk.ScriptExecutionOrder(parentHash)

	totalFees := new(big.Int)
	for _, idx := range order {
		fee, err := v.Txs.Validate(nonCoinbase[idx], env)
		if err != nil {
			return fmt.Errorf("tx %d: %w", idx, err)
		}
		totalFees.Add(totalFees, fee)
	}

	want := new(big.Int).Add(new(big.Int).SetUint64(v.Rules.BaseReward(height)), totalFees)
	coinbaseEnv := env
	if want.IsUint64() {
		coinbaseEnv.CoinbaseNetReward = want.Uint64()
	}
	if _, err := v.Txs.Validate(blk.Coinbase(), coinbaseEnv); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCoinbaseReward, err)
	}

	if v.Conflicts != nil {
		now := time.Now()
		for _, t := range blk.Transactions {
			txId := types.TxId(t.TxId())
			for _, ref := range t.AllInputRefs() {
				if conflictId, conflicted := v.Conflicts.Add(ref, txId, now); conflicted {
					return fmt.Errorf("%w: %s already claimed by %s", ErrBlockConflict, ref, conflictId)
				}
			}
		}
	}

	return nil
}

// CheckRecency rejects a freshly received (not historically replayed)
// header whose timestamp lags now by more than RecentBlockTimestampDiff.
// Historical sync must not call this — every already-canonical ancestor
// would fail it trivially once enough wall-clock time has passed.
func (v *Validator) CheckRecency(header *block.Header, now time.Time) error {
	if v.Rules.RecentBlockTimestampDiff <= 0 {
		return nil
	}
	ts := time.UnixMilli(int64(header.Timestamp))
	if now.Sub(ts) > v.Rules.RecentBlockTimestampDiff {
		return fmt.Errorf("%w: block at %s is %s old", ErrStaleTimestamp, ts, now.Sub(ts))
	}
	return nil
}
