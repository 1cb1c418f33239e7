package consensus

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("consensus: hash does not meet target")
	ErrNonceExhausted   = errors.New("consensus: nonce space exhausted")
)

// PoW mines and verifies BlockFlow headers. It carries no adjustable
// difficulty state of its own — header.Target is set by the caller
// (genesis, or inherited from the parent chain) before Seal is called.
type PoW struct {
	// Threads controls how many goroutines search the nonce space in
	// parallel. 0 or 1 means single-threaded.
	Threads int
}

// NewPoW creates a PoW engine that mines with the given thread count.
func NewPoW(threads int) *PoW {
	return &PoW{Threads: threads}
}

// VerifyHeader checks that header's hash meets its own declared target.
func (p *PoW) VerifyHeader(header *block.Header) error {
	if !header.PoWValid() {
		return ErrInsufficientWork
	}
	return nil
}

// Seal mines header in place: it searches nonces until it finds one
// whose hash both satisfies header.Target and whose derived chain
// index equals chain, the same two-part acceptance test VerifyHeader
// and block.ChainIndexFromHash apply independently at verification
// time.
func (p *PoW) Seal(ctx context.Context, header *block.Header, groups int, chain types.ChainIndex) error {
	threads := p.Threads
	if threads <= 1 {
		return p.sealSingle(ctx, header, groups, chain)
	}
	return p.sealParallel(ctx, header, groups, chain, threads)
}

// accepts reports whether nonce both meets target and lands on chain.
func accepts(header *block.Header, nonce *big.Int, groups int, chain types.ChainIndex) bool {
	header.Nonce = nonce
	hash := header.Hash()
	if !header.Target.PoWValid(types.Hash(hash)) {
		return false
	}
	return block.ChainIndexFromHash(hash, groups) == chain
}

func (p *PoW) sealSingle(ctx context.Context, header *block.Header, groups int, chain types.ChainIndex) error {
	nonce := new(big.Int)
	one := big.NewInt(1)
	for i := uint64(0); ; i++ {
		if i&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if accepts(header, new(big.Int).Set(nonce), groups, chain) {
			return nil
		}
		nonce.Add(nonce, one)
	}
}

// sealParallel mines with multiple goroutines, each searching a
// strided partition of the nonce space (goroutine i starts at nonce=i,
// step=threads) so no two goroutines ever test the same nonce.
func (p *PoW) sealParallel(ctx context.Context, header *block.Header, groups int, chain types.ChainIndex, threads int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce *big.Int
	}
	found := make(chan result, 1)
	stride := big.NewInt(int64(threads))

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		start := big.NewInt(int64(i))
		go func(nonce *big.Int) {
			defer wg.Done()
			h := &block.Header{Deps: header.Deps, TxsHash: header.TxsHash, Timestamp: header.Timestamp, Target: header.Target}
			nonce = new(big.Int).Set(nonce)
			for n := uint64(0); ; n++ {
				if n&0xFFFF == 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}
				if accepts(h, new(big.Int).Set(nonce), groups, chain) {
					select {
					case found <- result{nonce: new(big.Int).Set(nonce)}:
					default:
					}
					cancel()
					return
				}
				nonce.Add(nonce, stride)
			}
		}(start)
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return fmt.Errorf("%w", ErrNonceExhausted)
		}
		header.Nonce = r.nonce
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
