package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Structural validation errors. These checks require only the block
// itself (plus the group count); they do not touch chain state, the
// UTXO set, or the VM. See internal/blockvalidate for the stateful
// checks (deps resolve to known blocks, PoW target matches the chain's
// current difficulty, per-tx witness/balance checking).
var (
	ErrNilHeader        = errors.New("block: nil header")
	ErrNoTransactions   = errors.New("block: no transactions")
	ErrBadTxsHash       = errors.New("block: txs hash mismatch")
	ErrZeroTimestamp    = errors.New("block: zero timestamp")
	ErrTooManyTxs       = errors.New("block: too many transactions")
	ErrBlockTooLarge    = errors.New("block: too large")
	ErrBadDepsLength     = errors.New("block: wrong dependency vector length")
	ErrInvalidPoW       = errors.New("block: PoW target not met")
	ErrDuplicateBlockTx = errors.New("block: duplicate input across transactions")
)

// Validate checks everything derivable from the block's own bytes plus
// the protocol's group count: header shape, PoW, size/count limits, the
// txs-hash commitment, and that every transaction is individually
// well-formed and mutually non-conflicting.
func (b *Block) Validate(groups int) error {
	if b.Header == nil {
		return ErrNilHeader
	}
	h := b.Header

	if !h.IsGenesis() {
		if len(h.Deps) != types.DepVectorLen(groups) {
			return fmt.Errorf("%w: got %d, want %d", ErrBadDepsLength, len(h.Deps), types.DepVectorLen(groups))
		}
		if h.Timestamp == 0 {
			return ErrZeroTimestamp
		}
	}

	if !h.PoWValid() {
		return ErrInvalidPoW
	}

	if len(b.Transactions) == 0 {
		return ErrNoTransactions
	}
	if len(b.Transactions) > config.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), config.MaxBlockTxs)
	}

	size := len(h.SigningBytes())
	for _, t := range b.Transactions {
		size += len(t.Unsigned.Bytes())
	}
	if size > config.MaxBlockSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, size, config.MaxBlockSize)
	}

	if got := b.TxsHash(); got != h.TxsHash {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadTxsHash, h.TxsHash, got)
	}

	if !b.Coinbase().IsCoinbase() {
		return fmt.Errorf("block: last transaction is not a coinbase")
	}
	for i, t := range b.NonCoinbase() {
		if t.IsCoinbase() {
			return fmt.Errorf("block: tx %d is a coinbase but is not last", i)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	seen := make(map[types.TxOutputRef]int)
	for i, t := range b.Transactions {
		for _, ref := range t.AllInputRefs() {
			if prev, ok := seen[ref]; ok {
				return fmt.Errorf("tx %d: %w: %s also spent in tx %d", i, ErrDuplicateBlockTx, ref, prev)
			}
			seen[ref] = i
		}
	}

	return nil
}
