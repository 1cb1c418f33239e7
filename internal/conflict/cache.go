// Package conflict tracks outputs spent by transactions that have not
// yet reached the depth BlockFlow considers final. Because sibling
// chains can confirm blocks out of order, two transactions on different
// chains can race to spend the same output before either side has seen
// the other; the cache remembers which output refs are already claimed
// so a second spend is rejected instead of silently double-spending once
// both chains' blocks land. Entries expire after ConflictRules.KeepDuration,
// mirroring the teacher's size/age-bounded eviction in
// internal/mempool/eviction.go generalized from a fee-rate bound to a
// time bound.
package conflict

import (
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

type entry struct {
	spender types.TxId
	seenAt  time.Time
}

// Cache is a bounded, time-evicted map of output ref -> spending tx.
type Cache struct {
	rules   config.ConflictRules
	entries map[types.Hash]entry // keyed by ref.Key
	mu      sync.Mutex
}

// New returns a Cache governed by rules.
func New(rules config.ConflictRules) *Cache {
	return &Cache{rules: rules, entries: make(map[types.Hash]entry)}
}

// Add records that ref was spent by txId at now. If ref is already
// claimed by a different, still-live transaction, Add reports that
// conflict instead of overwriting it.
func (c *Cache) Add(ref types.TxOutputRef, txId types.TxId, now time.Time) (conflictingTxId types.TxId, conflicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[ref.Key]; ok && now.Sub(e.seenAt) < c.rules.KeepDuration && e.spender != txId {
		return e.spender, true
	}
	c.entries[ref.Key] = entry{spender: txId, seenAt: now}
	return types.TxId{}, false
}

// IsConflicted reports whether ref is currently claimed by a live entry
// other than allowTxId.
func (c *Cache) IsConflicted(ref types.TxOutputRef, allowTxId types.TxId, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ref.Key]
	if !ok {
		return false
	}
	if e.spender == allowTxId {
		return false
	}
	return now.Sub(e.seenAt) < c.rules.KeepDuration
}

// Remove clears the conflict entry for ref, used once the spend is
// confirmed deep enough that BlockFlow no longer needs to guard it.
func (c *Cache) Remove(ref types.TxOutputRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ref.Key)
}

// Evict drops every entry older than KeepDuration as of now, returning
// the number removed.
func (c *Cache) Evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, e := range c.entries {
		if now.Sub(e.seenAt) >= c.rules.KeepDuration {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked entries, including stale ones not
// yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
