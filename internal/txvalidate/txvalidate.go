// Package txvalidate runs the transaction checks that need access to
// world state: resolving the outputs a transaction's inputs reference,
// checking ALF/token balance, verifying witnesses, and (for intra-group
// transactions carrying a script) replaying script execution against a
// staged world state. pkg/tx.Validate covers everything that needs only
// the transaction's own bytes; this package covers everything that
// needs the chain around it.
//
// It generalizes the teacher's pkg/tx/utxo_validate.go, which resolved
// a flat UTXO set and checked a single P2PKH witness variant, into a
// per-lockup-variant dispatch over the four-variant LockupScript/
// UnlockScript sum type plus the VM hooks P2SH and script-carrying
// transactions need.
package txvalidate

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Klingon-tech/klingnet-chain/internal/conflict"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Sentinel errors for the stateful checks.
var (
	ErrNonExistInput       = errors.New("txvalidate: input references an unknown or already-spent output")
	ErrTimeLockedTx        = errors.New("txvalidate: output not yet spendable (lock time)")
	ErrBalanceMismatch     = errors.New("txvalidate: ALF balance does not reconcile")
	ErrTokenBalanceMismatch = errors.New("txvalidate: token balance does not reconcile")
	ErrInvalidPublicKeyHash = errors.New("txvalidate: public key does not match lockup hash")
	ErrWrongUnlockVariant  = errors.New("txvalidate: unlock script does not match lockup script variant")
	ErrBadMultisig         = errors.New("txvalidate: multisig index/signature count mismatch")
	ErrBadScriptHash       = errors.New("txvalidate: P2SH script hash mismatch")
	ErrInvalidSignature    = errors.New("txvalidate: signature verification failed")
	ErrGroupMismatch       = errors.New("txvalidate: input groups are not uniform")
	ErrMissingOutGroup     = errors.New("txvalidate: inter-group tx has no output in the destination group")
	ErrScriptOutputMismatch = errors.New("txvalidate: script execution outputs do not match declared result")
	ErrConflicted          = errors.New("txvalidate: input conflicts with a live mempool spend")
	ErrDustOutput          = errors.New("txvalidate: output below dust threshold")
)

// PreOutputResolver resolves a TxOutputRef to the output it names,
// against whatever world-state snapshot the caller is validating
// against (confirmed chain state, or a staged per-block/per-mempool
// overlay). ok is false when the ref does not resolve — unknown or
// already spent in this snapshot.
type PreOutputResolver interface {
	ResolveOutput(ref types.TxOutputRef) (out tx.Output, ok bool, err error)
}

// BlockEnv carries the execution context a stateful check needs from
// the block (or mempool-candidate context) a transaction is being
// validated against.
type BlockEnv struct {
	Timestamp    uint64
	ChainIndex   types.ChainIndex
	Groups       int
	CoinbaseNetReward uint64 // 0 for non-coinbase transactions
}

// AssetScriptRunner executes a P2SH unlock script (StatelessVM.runAssetScript
// in the source terminology): no contract state, no balance staging,
// just bytecode that must return true/false using the remaining gas
// budget. Implemented by internal/vm.
type AssetScriptRunner interface {
	RunAssetScript(script []byte, params [][]byte, gasRemaining int64) (gasUsed int64, err error)
}

// TxScriptResult is what replaying a transaction's script against the
// staged world state produced, compared against what the transaction
// itself declares (ContractInputs/GeneratedOutputs) in checkTxScript.
type TxScriptResult struct {
	ContractInputs  []types.TxOutputRef
	GeneratedOutputs []tx.Output
	GasUsed         int64
}

// TxScriptRunner replays an intra-group transaction's VM script against
// the staged world state. Implemented by internal/vm.
type TxScriptRunner interface {
	RunTxScript(t *tx.Transaction, preOutputs []tx.Output, env BlockEnv, gasRemaining int64) (TxScriptResult, error)
}

// Validator runs the stateful checks of a transaction: pre-output
// resolution, lock time, ALF/token balance, witnesses, and (for
// intra-group script-carrying transactions) script replay.
type Validator struct {
	Resolver    PreOutputResolver
	AssetRunner AssetScriptRunner // nil disables P2SH spends
	TxRunner    TxScriptRunner    // nil disables script-carrying transactions
	Conflicts   *conflict.Cache   // nil disables conflict checking
	DustAmount  uint64
}

// New returns a Validator wired against the given world-state resolver
// and conflict cache, using dustAmount as the minimum spendable output.
func New(resolver PreOutputResolver, conflicts *conflict.Cache, dustAmount uint64) *Validator {
	return &Validator{Resolver: resolver, Conflicts: conflicts, DustAmount: dustAmount}
}

// Validate runs every stateful check against t and returns the fee it
// pays (gasAmount*gasPrice) on success.
func (v *Validator) Validate(t *tx.Transaction, env BlockEnv) (fee *big.Int, err error) {
	if t.IsCoinbase() {
		return v.validateCoinbase(t, env)
	}

	preOutputs, err := v.resolvePreOutputs(t)
	if err != nil {
		return nil, err
	}

	if err := checkDust(t, v.DustAmount); err != nil {
		return nil, err
	}
	if err := checkGroups(t, preOutputs, env); err != nil {
		return nil, err
	}
	if err := checkLockTime(preOutputs, env.Timestamp); err != nil {
		return nil, err
	}
	if err := v.checkConflicts(t); err != nil {
		return nil, err
	}

	fee = tx.RequiredFee(t)
	if err := checkALFBalance(preOutputs, t.AllOutputs(), fee, 0); err != nil {
		return nil, err
	}
	if err := checkTokenBalance(preOutputs, t.AllOutputs(), t.TxId(), t.HasScript()); err != nil {
		return nil, err
	}
	if err := v.checkWitnesses(t, preOutputs); err != nil {
		return nil, err
	}

	if env.ChainIndex.IsIntraGroup() && t.HasScript() {
		if err := v.checkTxScript(t, preOutputs, env); err != nil {
			return nil, err
		}
	}

	return fee, nil
}

// validateCoinbase checks the one transaction per block that creates
// value instead of consuming it: its single reward output must equal
// baseReward plus the fees of every other transaction in the block,
// already summed into env.CoinbaseNetReward by the caller.
func (v *Validator) validateCoinbase(t *tx.Transaction, env BlockEnv) (*big.Int, error) {
	total := new(big.Int)
	for _, out := range t.Unsigned.FixedOutputs {
		total.Add(total, out.Amount)
	}
	want := new(big.Int).SetUint64(env.CoinbaseNetReward)
	if total.Cmp(want) != 0 {
		return nil, fmt.Errorf("%w: coinbase pays %s, want %s", ErrBalanceMismatch, total, want)
	}
	return new(big.Int), nil
}

func (v *Validator) resolvePreOutputs(t *tx.Transaction) ([]tx.Output, error) {
	refs := t.Unsigned.Inputs
	outs := make([]tx.Output, len(refs))
	for i, in := range refs {
		out, ok, err := v.Resolver.ResolveOutput(in.OutputRef)
		if err != nil {
			return nil, fmt.Errorf("resolve input %d: %w", i, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNonExistInput, in.OutputRef)
		}
		outs[i] = out
	}
	return outs, nil
}

func (v *Validator) checkConflicts(t *tx.Transaction) error {
	if v.Conflicts == nil {
		return nil
	}
	txId := t.TxId()
	for _, ref := range t.AllInputRefs() {
		if v.Conflicts.IsConflicted(ref, types.TxId(txId), time.Now()) {
			return fmt.Errorf("%w: %s", ErrConflicted, ref)
		}
	}
	return nil
}

func checkDust(t *tx.Transaction, dustAmount uint64) error {
	if dustAmount == 0 {
		return nil
	}
	min := new(big.Int).SetUint64(dustAmount)
	for i, out := range t.Unsigned.FixedOutputs {
		if out.IsAsset() && out.Amount.Cmp(min) < 0 {
			return fmt.Errorf("%w: output %d has %s, dust floor %s", ErrDustOutput, i, out.Amount, min)
		}
	}
	return nil
}

// checkGroups enforces that every input belongs to one fromGroup and,
// for an inter-group transaction, that at least one fixed output lands
// in the destination group named by the block's ChainIndex.
func checkGroups(t *tx.Transaction, preOutputs []tx.Output, env BlockEnv) error {
	if len(preOutputs) == 0 {
		return nil
	}
	fromGroup := preOutputs[0].LockupScript.GroupIndexOf(crypto.Hash, env.Groups)
	for i, out := range preOutputs[1:] {
		g := out.LockupScript.GroupIndexOf(crypto.Hash, env.Groups)
		if g != fromGroup {
			return fmt.Errorf("%w: input %d in group %s, expected %s", ErrGroupMismatch, i+1, g, fromGroup)
		}
	}

	if env.ChainIndex.IsIntraGroup() {
		return nil
	}
	for _, out := range t.Unsigned.FixedOutputs {
		if out.LockupScript.GroupIndexOf(crypto.Hash, env.Groups) == env.ChainIndex.To {
			return nil
		}
	}
	if len(t.GeneratedOutputs) > 0 {
		return fmt.Errorf("%w: generated outputs are forbidden on inter-group transactions", ErrMissingOutGroup)
	}
	return fmt.Errorf("%w: chain %s", ErrMissingOutGroup, env.ChainIndex)
}

func checkLockTime(preOutputs []tx.Output, blockTimestamp uint64) error {
	for i, out := range preOutputs {
		if out.IsAsset() && out.LockTime > 0 && out.LockTime > blockTimestamp {
			return fmt.Errorf("%w: input %d locked until %d, block is %d", ErrTimeLockedTx, i, out.LockTime, blockTimestamp)
		}
	}
	return nil
}

func checkALFBalance(preOutputs []tx.Output, outputs []tx.Output, fee *big.Int, coinbaseNetReward uint64) error {
	in := new(big.Int).SetUint64(coinbaseNetReward)
	for _, out := range preOutputs {
		in.Add(in, out.Amount)
	}
	out := new(big.Int)
	for _, o := range outputs {
		out.Add(out, o.Amount)
	}
	out.Add(out, fee)
	if in.Cmp(out) != 0 {
		return fmt.Errorf("%w: in=%s out+fee=%s", ErrBalanceMismatch, in, out)
	}
	return nil
}

// checkTokenBalance requires Σin == Σout for every token id, except a
// token whose id equals txId — script execution is allowed to mint that
// one as a fresh issuance (IssueToken), so it needs no matching input.
func checkTokenBalance(preOutputs []tx.Output, outputs []tx.Output, txId types.TxId, payable bool) error {
	in := make(map[types.TokenId]*big.Int)
	for _, out := range preOutputs {
		for _, t := range out.Tokens {
			sum, ok := in[t.Id]
			if !ok {
				sum = new(big.Int)
				in[t.Id] = sum
			}
			sum.Add(sum, t.Amount)
		}
	}
	out := make(map[types.TokenId]*big.Int)
	for _, o := range outputs {
		for _, t := range o.Tokens {
			sum, ok := out[t.Id]
			if !ok {
				sum = new(big.Int)
				out[t.Id] = sum
			}
			sum.Add(sum, t.Amount)
		}
	}
	issuedId := types.TokenId(txId)
	for id, outSum := range out {
		inSum, ok := in[id]
		if !ok {
			inSum = new(big.Int)
		}
		if inSum.Cmp(outSum) == 0 {
			continue
		}
		if payable && id == issuedId {
			continue
		}
		return fmt.Errorf("%w: token %s in=%s out=%s", ErrTokenBalanceMismatch, id, inSum, outSum)
	}
	for id, inSum := range in {
		if _, ok := out[id]; !ok && inSum.Sign() != 0 {
			return fmt.Errorf("%w: token %s in=%s out=0", ErrTokenBalanceMismatch, id, inSum)
		}
	}
	return nil
}
