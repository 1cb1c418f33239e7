// Package mempool holds unconfirmed, individually-valid transactions
// waiting for block inclusion, generalizing the teacher's flat-UTXO
// pool.go/eviction.go/policy.go into BlockFlow's world-state validation
// and per-output conflict tracking.
package mempool

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/txvalidate"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("mempool: transaction already present")
	ErrConflict      = errors.New("mempool: transaction conflicts with an existing entry")
	ErrPoolFull      = errors.New("mempool: pool is full")
	ErrValidation    = errors.New("mempool: transaction failed validation")
	ErrFeeTooLow     = errors.New("mempool: fee below minimum")
)

// entry wraps a transaction with its fee, fee rate, and arrival time.
type entry struct {
	tx       *tx.Transaction
	txId     types.TxId
	fee      *big.Int
	feeRate  float64 // fee per byte of the unsigned body.
	addedAt  time.Time
}

// Pool holds unconfirmed transactions, validated against the best
// known world state at the moment each was added.
type Pool struct {
	mu      sync.RWMutex
	entries map[types.TxId]*entry
	spends  map[types.Hash]types.TxId // output ref key -> spending tx

	validator  *txvalidate.Validator
	envFn      func() txvalidate.BlockEnv
	maxSize    int
	ttl        time.Duration
	minFeeRate float64
}

// New creates a mempool that validates incoming transactions with
// validator against the BlockEnv envFn reports at admission time.
func New(validator *txvalidate.Validator, rules config.MempoolRules, envFn func() txvalidate.BlockEnv) *Pool {
	maxSize := rules.Capacity
	if maxSize <= 0 {
		maxSize = 10_000
	}
	return &Pool{
		entries:   make(map[types.TxId]*entry),
		spends:    make(map[types.Hash]types.TxId),
		validator: validator,
		envFn:     envFn,
		maxSize:   maxSize,
		ttl:       rules.TTL,
	}
}

// SetMinFeeRate sets the minimum fee rate (base units per byte) a
// transaction must pay to be admitted.
func (p *Pool) SetMinFeeRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minFeeRate = rate
}

// Add validates t against the current world state and, if accepted,
// admits it to the pool. Returns the fee it pays.
func (p *Pool) Add(t *tx.Transaction) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	txId := t.TxId()
	if _, exists := p.entries[txId]; exists {
		return nil, ErrAlreadyExists
	}

	for _, ref := range t.AllInputRefs() {
		if conflictId, exists := p.spends[ref.Key]; exists {
			return nil, fmt.Errorf("%w: %s already spent by %s", ErrConflict, ref, conflictId)
		}
	}

	fee, err := p.validator.Validate(t, p.envFn())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	sigBytes := len(t.Unsigned.Bytes())
	var feeRate float64
	if sigBytes > 0 {
		feeRate, _ = new(big.Float).Quo(new(big.Float).SetInt(fee), big.NewFloat(float64(sigBytes))).Float64()
	}
	if p.minFeeRate > 0 && feeRate < p.minFeeRate {
		return nil, fmt.Errorf("%w: %.4f < %.4f", ErrFeeTooLow, feeRate, p.minFeeRate)
	}

	if len(p.entries) >= p.maxSize {
		lowestId, lowestRate := p.findLowestFeeRateLocked()
		if feeRate <= lowestRate {
			return nil, ErrPoolFull
		}
		p.removeLocked(lowestId)
	}

	e := &entry{tx: t, txId: txId, fee: fee, feeRate: feeRate, addedAt: time.Now()}
	p.entries[txId] = e
	for _, ref := range t.AllInputRefs() {
		p.spends[ref.Key] = txId
	}
	return fee, nil
}

// Remove drops a transaction from the pool by id.
func (p *Pool) Remove(txId types.TxId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txId)
}

func (p *Pool) removeLocked(txId types.TxId) {
	e, exists := p.entries[txId]
	if !exists {
		return
	}
	for _, ref := range e.tx.AllInputRefs() {
		delete(p.spends, ref.Key)
	}
	delete(p.entries, txId)
}

// RemoveConfirmed drops every transaction that was just included in a
// block.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range transactions {
		p.removeLocked(t.TxId())
	}
}

// Has reports whether txId is in the pool.
func (p *Pool) Has(txId types.TxId) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.entries[txId]
	return exists
}

// Get returns the pooled transaction, or nil if not present.
func (p *Pool) Get(txId types.TxId) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.entries[txId]
	if !exists {
		return nil
	}
	return e.tx
}

// Count returns the number of pooled transactions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Ids returns the ids of every pooled transaction.
func (p *Pool) Ids() []types.TxId {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]types.TxId, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	return ids
}

func (p *Pool) findLowestFeeRateLocked() (types.TxId, float64) {
	var lowestId types.TxId
	lowestRate := math.MaxFloat64
	for id, e := range p.entries {
		if e.feeRate < lowestRate {
			lowestRate = e.feeRate
			lowestId = id
		}
	}
	return lowestId, lowestRate
}

// SelectForBlock returns up to limit pooled transactions ordered by fee
// rate, highest first — the order a miner should prefer for inclusion.
func (p *Pool) SelectForBlock(limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].feeRate > entries[j].feeRate
	})
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]*tx.Transaction, limit)
	for i := 0; i < limit; i++ {
		out[i] = entries[i].tx
	}
	return out
}

// EvictExpired removes every transaction older than the pool's TTL,
// returning the number evicted.
func (p *Pool) EvictExpired(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ttl <= 0 {
		return 0
	}
	evicted := 0
	for id, e := range p.entries {
		if now.Sub(e.addedAt) >= p.ttl {
			p.removeLocked(id)
			evicted++
		}
	}
	return evicted
}

// EvictOverCapacity removes the lowest fee-rate transactions until the
// pool is at or below its configured capacity.
func (p *Pool) EvictOverCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) <= p.maxSize {
		return 0
	}
	entries := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].feeRate < entries[j].feeRate
	})
	evicted := 0
	for len(p.entries) > p.maxSize && evicted < len(entries) {
		p.removeLocked(entries[evicted].txId)
		evicted++
	}
	return evicted
}
