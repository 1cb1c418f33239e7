package txvalidate

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// checkWitnesses processes each input's unlock script against the
// lockup script of the output it claims to spend, consuming signatures
// from InputSignatures in order the way the source's checkWitnesses
// walks a per-tx signature stack.
func (v *Validator) checkWitnesses(t *tx.Transaction, preOutputs []tx.Output) error {
	txHash := t.TxId()
	sigIdx := 0
	nextSig := func() ([]byte, error) {
		if sigIdx >= len(t.InputSignatures) {
			return nil, fmt.Errorf("%w: ran out of signatures", tx.ErrMissingSignature)
		}
		sig := t.InputSignatures[sigIdx]
		sigIdx++
		return sig, nil
	}

	for i, in := range t.Unsigned.Inputs {
		lockup := preOutputs[i].LockupScript
		unlock := in.UnlockScript
		if !unlock.MatchesLockup(lockup) {
			return fmt.Errorf("%w: input %d", ErrWrongUnlockVariant, i)
		}

		switch lockup.Tag {
		case types.LockupP2PKH:
			if crypto.AddressFromPubKey(unlock.PubKey) != lockup.PKHash {
				return fmt.Errorf("%w: input %d", ErrInvalidPublicKeyHash, i)
			}
			sig, err := nextSig()
			if err != nil {
				return err
			}
			if !crypto.VerifySignature(txHash[:], sig, unlock.PubKey) {
				return fmt.Errorf("%w: input %d", ErrInvalidSignature, i)
			}

		case types.LockupP2MPKH:
			if len(unlock.IndexedPublicKeys) != lockup.M {
				return fmt.Errorf("%w: input %d needs %d signers, got %d", ErrBadMultisig, i, lockup.M, len(unlock.IndexedPublicKeys))
			}
			for _, ipk := range unlock.IndexedPublicKeys {
				if ipk.Index < 0 || ipk.Index >= len(lockup.PKHashes) {
					return fmt.Errorf("%w: input %d index %d out of range", ErrBadMultisig, i, ipk.Index)
				}
				if crypto.AddressFromPubKey(ipk.PubKey) != lockup.PKHashes[ipk.Index] {
					return fmt.Errorf("%w: input %d slot %d", ErrInvalidPublicKeyHash, i, ipk.Index)
				}
				sig, err := nextSig()
				if err != nil {
					return err
				}
				if !crypto.VerifySignature(txHash[:], sig, ipk.PubKey) {
					return fmt.Errorf("%w: input %d slot %d", ErrInvalidSignature, i, ipk.Index)
				}
			}

		case types.LockupP2SH:
			scriptHash := crypto.Hash(unlock.Script)
			if scriptHash != lockup.ScriptHash {
				return fmt.Errorf("%w: input %d", ErrBadScriptHash, i)
			}
			if v.AssetRunner == nil {
				return fmt.Errorf("txvalidate: P2SH spend at input %d but no asset script runner configured", i)
			}
			if _, err := v.AssetRunner.RunAssetScript(unlock.Script, unlock.Params, t.Unsigned.GasAmount); err != nil {
				return fmt.Errorf("txvalidate: input %d asset script: %w", i, err)
			}

		default:
			return fmt.Errorf("%w: input %d unknown lockup tag %d", ErrWrongUnlockVariant, i, lockup.Tag)
		}
	}
	return nil
}

// checkTxScript replays an intra-group transaction's VM script against
// the staged world state and requires the replay's contract inputs and
// generated outputs to match what the transaction itself declares —
// the source's "deterministic replay, not trusted self-report" check.
func (v *Validator) checkTxScript(t *tx.Transaction, preOutputs []tx.Output, env BlockEnv) error {
	if v.TxRunner == nil {
		return fmt.Errorf("txvalidate: tx %s carries a script but no script runner is configured", t.TxId())
	}
	result, err := v.TxRunner.RunTxScript(t, preOutputs, env, t.Unsigned.GasAmount)
	if err != nil {
		return fmt.Errorf("txvalidate: script execution: %w", err)
	}
	if !refsEqual(result.ContractInputs, t.ContractInputs) {
		return fmt.Errorf("%w: contract inputs", ErrScriptOutputMismatch)
	}
	if !outputsEqual(result.GeneratedOutputs, t.GeneratedOutputs) {
		return fmt.Errorf("%w: generated outputs", ErrScriptOutputMismatch)
	}
	return nil
}

func refsEqual(a, b []types.TxOutputRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func outputsEqual(a, b []tx.Output) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Amount.Cmp(b[i].Amount) != 0 {
			return false
		}
		if string(a[i].LockupScript.Bytes()) != string(b[i].LockupScript.Bytes()) {
			return false
		}
	}
	return true
}
