// Package orchestrator serializes every write to BlockFlow behind a
// single actor goroutine. internal/chain/chain.go protects its state
// with one sync.Mutex around ProcessBlock; this package generalizes
// that same "one writer at a time" guarantee to BlockFlow's G² chains
// and to mempool admission, replacing the mutex with a request queue.
// The read requests it serves (locators, inventory) go through the same
// queue and run one at a time with the writes, so a read waits behind
// any validation queued before it.
//
// Once an Orchestrator owns blockflow.Flow, chainstore.Store, and
// mempool.Pool, AddBlock and AddTx are the only way blocks and
// transactions are added to them. Other access does not go through the
// actor: internal/node's miner and Node.Tip read Flow and Store
// directly, and its eviction loop drops expired and over-capacity
// entries from the Pool directly; Flow and Pool guard their own state
// with a sync.RWMutex.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/blockflow"
	"github.com/Klingon-tech/klingnet-chain/internal/blockvalidate"
	"github.com/Klingon-tech/klingnet-chain/internal/chainstore"
	klog "github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/internal/mempool"
	"github.com/Klingon-tech/klingnet-chain/internal/p2p"
	"github.com/Klingon-tech/klingnet-chain/internal/trie"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ErrClosed is returned by any request submitted after Close.
var ErrClosed = errors.New("orchestrator: closed")

// BlockOrigin identifies where an incoming block came from, for logging
// and for future peer-scoring hooks.
type BlockOrigin int

const (
	OriginMiner BlockOrigin = iota
	OriginPeer
	OriginSync
)

func (o BlockOrigin) String() string {
	switch o {
	case OriginMiner:
		return "miner"
	case OriginPeer:
		return "peer"
	case OriginSync:
		return "sync"
	default:
		return "unknown"
	}
}

// BlockNotify is published to every subscriber after a block is
// durably accepted and its chain's tip has been updated.
type BlockNotify struct {
	Block  *block.Block
	Chain  types.ChainIndex
	Height uint64
	Origin BlockOrigin
}

// request is the single envelope every public method funnels through
// the actor's queue: do is run on the actor goroutine, and done is
// closed once it returns.
type request struct {
	do   func()
	done chan struct{}
}

// Orchestrator owns the write side of BlockFlow: one goroutine drains
// a bounded request queue and is the only goroutine that adds blocks
// and transactions to flow/store/mempool.
type Orchestrator struct {
	Flow      *blockflow.Flow
	Store     *chainstore.Store
	Outputs   *chainstore.OutputSet
	Trie      *trie.Trie // world-state trie the Validator's VM stages writes against, nil if no contracts are wired
	Mempool   *mempool.Pool
	Validator *blockvalidate.Validator
	Groups    int

	queue  chan request
	done   chan struct{}
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once

	subMu sync.Mutex
	subs  map[int]chan BlockNotify
	nextS int
}

// New builds an Orchestrator over the given components and starts its
// actor goroutine. rules.QueueCapacity bounds how many pending requests
// may back up before callers block; 0 or less selects a default bound
// of 4096 (a plain Go channel cap of 0 would instead mean synchronous
// handoff).
func New(flow *blockflow.Flow, store *chainstore.Store, outputs *chainstore.OutputSet, worldTrie *trie.Trie, pool *mempool.Pool, validator *blockvalidate.Validator, groups int, rules config.OrchestratorRules) *Orchestrator {
	capacity := rules.QueueCapacity
	if capacity <= 0 {
		capacity = 4096
	}
	o := &Orchestrator{
		Flow:      flow,
		Store:     store,
		Outputs:   outputs,
		Trie:      worldTrie,
		Mempool:   pool,
		Validator: validator,
		Groups:    groups,
		queue:     make(chan request, capacity),
		done:      make(chan struct{}),
		closed:    make(chan struct{}),
		subs:      make(map[int]chan BlockNotify),
	}
	o.wg.Add(1)
	go o.run()
	return o
}

// run is the single actor loop: every mutation of Flow/Store/Mempool
// happens here, one request at a time, so no lock is needed on those
// components themselves.
func (o *Orchestrator) run() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		case req := <-o.queue:
			req.do()
			close(req.done)
		}
	}
}

// submit enqueues fn to run on the actor goroutine and blocks until it
// completes or ctx is done. Returns ErrClosed if the orchestrator has
// already been closed.
func (o *Orchestrator) submit(ctx context.Context, fn func()) error {
	select {
	case <-o.closed:
		return ErrClosed
	default:
	}

	req := request{do: fn, done: make(chan struct{})}
	select {
	case o.queue <- req:
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-o.done:
		// Wait for the loop to exit, then report whether it ran req first.
		o.wg.Wait()
		select {
		case <-req.done:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddBlock validates blk, and if it passes, stores it, advances its
// chain's tip, prunes its transactions from the mempool, and notifies
// subscribers. A rejected block never reaches chainstore or Flow.
func (o *Orchestrator) AddBlock(ctx context.Context, blk *block.Block, origin BlockOrigin) error {
	var outErr error
	err := o.submit(ctx, func() {
		hash := blk.Hash()
		if known, herr := o.Store.HasBlock(hash); herr != nil {
			outErr = fmt.Errorf("orchestrator: check known: %w", herr)
			return
		} else if known {
			return // already accepted; not an error, just a no-op.
		}

		// Snapshot the world-state trie so a rejected block's script
		// replay (which may have run several txs before the one that
		// failed) never leaves stray staged writes behind.
		var preRoot types.Hash
		if o.Trie != nil {
			preRoot = o.Trie.Root()
		}

		if verr := o.Validator.ValidateBlock(blk); verr != nil {
			if o.Trie != nil {
				o.Trie.Reset(preRoot)
			}
			outErr = fmt.Errorf("orchestrator: reject block %s: %w", hash, verr)
			return
		}
		if perr := o.Store.PutBlock(blk); perr != nil {
			if o.Trie != nil {
				o.Trie.Reset(preRoot)
			}
			outErr = fmt.Errorf("orchestrator: store block %s: %w", hash, perr)
			return
		}
		if eerr := o.Flow.TryExtend(blk); eerr != nil {
			if o.Trie != nil {
				o.Trie.Reset(preRoot)
			}
			outErr = fmt.Errorf("orchestrator: extend chain with %s: %w", hash, eerr)
			return
		}
		if o.Outputs != nil {
			if oerr := o.Outputs.ApplyBlock(blk.Transactions); oerr != nil {
				if o.Trie != nil {
					o.Trie.Reset(preRoot)
				}
				outErr = fmt.Errorf("orchestrator: apply outputs for %s: %w", hash, oerr)
				return
			}
		}
		if o.Trie != nil {
			root, cerr := o.Trie.Commit()
			if cerr != nil {
				outErr = fmt.Errorf("orchestrator: commit world state for %s: %w", hash, cerr)
				return
			}
			if serr := o.Store.SetTrieRoot(root); serr != nil {
				outErr = fmt.Errorf("orchestrator: persist trie root for %s: %w", hash, serr)
				return
			}
		}

		ci := blk.Header.ChainIndex(o.Groups)
		_, height, terr := o.Flow.Tip(ci)
		if terr != nil {
			outErr = fmt.Errorf("orchestrator: read tip after extend: %w", terr)
			return
		}

		if o.Mempool != nil {
			o.Mempool.RemoveConfirmed(blk.Transactions)
		}

		klog.Orchestrator.Info().
			Str("block", hash.String()).
			Str("chain", ci.String()).
			Uint64("height", height).
			Str("origin", origin.String()).
			Msg("block accepted")

		o.publish(BlockNotify{Block: blk, Chain: ci, Height: height, Origin: origin})
	})
	if err != nil {
		return err
	}
	return outErr
}

// AddTx submits t for mempool admission, returning the fee it was
// accepted at or the reason it was rejected.
func (o *Orchestrator) AddTx(ctx context.Context, t *tx.Transaction) error {
	var outErr error
	err := o.submit(ctx, func() {
		if o.Mempool == nil {
			outErr = errors.New("orchestrator: no mempool configured")
			return
		}
		if _, aerr := o.Mempool.Add(t); aerr != nil {
			outErr = fmt.Errorf("orchestrator: reject tx %s: %w", t.TxId(), aerr)
		}
	})
	if err != nil {
		return err
	}
	return outErr
}

// GetLocators returns the requested chain's sparse history locator list,
// for answering a peer's p2p.LocatorRequest.
func (o *Orchestrator) GetLocators(ctx context.Context, ci types.ChainIndex) ([]types.BlockHash, error) {
	var out []types.BlockHash
	var outErr error
	err := o.submit(ctx, func() {
		out, outErr = o.Flow.HistoryLocators(ci)
	})
	if err != nil {
		return nil, err
	}
	return out, outErr
}

// GetInventory reports which of req's candidate hashes this node is
// missing, answering a peer's p2p.InventoryRequest.
func (o *Orchestrator) GetInventory(ctx context.Context, req p2p.InventoryRequest) (p2p.InventoryResponse, error) {
	var resp p2p.InventoryResponse
	err := o.submit(ctx, func() {
		resp.Chain = req.Chain
		for _, h := range req.Hashes {
			has, herr := o.Store.HasBlock(h)
			if herr != nil {
				continue
			}
			if !has {
				resp.Missing = append(resp.Missing, h)
			}
		}
	})
	return resp, err
}

// Subscribe registers a channel that receives every BlockNotify emitted
// after this call, until the returned cancel func is invoked. The
// channel is buffered; a subscriber that falls behind drops the oldest
// unread notification rather than blocking the actor loop.
func (o *Orchestrator) Subscribe(buffer int) (<-chan BlockNotify, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan BlockNotify, buffer)

	o.subMu.Lock()
	id := o.nextS
	o.nextS++
	o.subs[id] = ch
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
		o.subMu.Unlock()
	}
	return ch, cancel
}

// publish fans n out to every live subscriber without blocking: a full
// subscriber channel has its oldest entry dropped to make room, since a
// notification stream is inherently best-effort for slow consumers.
func (o *Orchestrator) publish(n BlockNotify) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- n:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- n:
			default:
			}
		}
	}
}

// Close stops the actor goroutine and closes every subscriber channel.
// Any request not yet picked up by the loop at that point returns
// ErrClosed to its caller instead of running.
func (o *Orchestrator) Close() {
	o.once.Do(func() {
		close(o.closed)
		close(o.done)
		o.wg.Wait()

		o.subMu.Lock()
		for id, ch := range o.subs {
			delete(o.subs, id)
			close(ch)
		}
		o.subMu.Unlock()
	})
}
