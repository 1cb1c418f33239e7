package vm

import (
	"github.com/Klingon-tech/klingnet-chain/internal/txvalidate"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Context is everything a frame's execution needs beyond its own
// locals/stack: the transaction it belongs to, the signature stack
// asset/contract witnesses draw from, the shared gas counter, and the
// block it is executing against. A stateless Context (no World/pool)
// is enough to run RunAssetScript's P2SH checks; RunTxScript attaches
// the world-state staging described below.
type Context struct {
	Tx           *tx.Transaction
	Signatures   *SignatureStack
	GasRemaining int64
	Env          txvalidate.BlockEnv

	// World-state staging, nil for a stateless Context. Present only
	// when running a tx script, which may load/create/destroy
	// contracts and move assets between them.
	World            *WorldState
	ContractInputs   []types.TxOutputRef
	GeneratedOutputs []tx.Output

	depth int
}

// charge spends class's gas (plus extraBytes' per-byte surcharge) from
// the shared counter every frame draws from.
func (c *Context) charge(class GasClass, extraBytes int) error {
	return chargeGas(&c.GasRemaining, class, extraBytes)
}

func (c *Context) isStateful() bool { return c.World != nil }

// recordContractInput notes that ref's output was consumed by a
// contract call, for later comparison against the transaction's
// declared ContractInputs in checkTxScript.
func (c *Context) recordContractInput(ref types.TxOutputRef) {
	c.ContractInputs = append(c.ContractInputs, ref)
}

func (c *Context) recordGeneratedOutput(out tx.Output) {
	c.GeneratedOutputs = append(c.GeneratedOutputs, out)
}
