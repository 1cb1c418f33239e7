// Package consensus mines and verifies BlockFlow's proof-of-work
// headers. BlockFlow's consensus is PoW-only: per the specification, a
// header's target is inherited from the parent chain rather than
// re-derived block by block, so this package's job narrows to what the
// chain state can't do for itself — searching a nonce that both meets
// the declared target and lands the header's hash on the desired
// (from, to) chain.
package consensus

import (
	"context"

	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Engine mines and verifies a block header's proof of work.
type Engine interface {
	// Seal searches for a nonce satisfying both header.Target and
	// placement on chain, mutating header.Nonce in place.
	Seal(ctx context.Context, header *block.Header, groups int, chain types.ChainIndex) error

	// VerifyHeader reports whether header's hash meets its own stated
	// target. Target continuity with the parent chain and chain
	// placement are stateful checks internal/blockvalidate performs
	// against chain history, not here.
	VerifyHeader(header *block.Header) error
}
