package tx

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Sentinel errors for the stateless structural checks. UTXO- and
// VM-dependent validation (balance, witness checking, script execution)
// lives in internal/txvalidate, which has access to world state.
var (
	ErrNoInputs           = errors.New("tx: no inputs")
	ErrNoOutputs          = errors.New("tx: no outputs")
	ErrDuplicateInput     = errors.New("tx: duplicate input")
	ErrTooManyInputs      = errors.New("tx: too many inputs")
	ErrTooManyOutputs     = errors.New("tx: too many outputs")
	ErrScriptDataTooLarge = errors.New("tx: script data too large")
	ErrOutputOverflow     = errors.New("tx: output amount overflow")
	ErrNegativeOutput     = errors.New("tx: negative or nil output amount")
	ErrInvalidGasAmount   = errors.New("tx: gas amount out of range")
	ErrInvalidGasPrice    = errors.New("tx: gas price out of range")
	ErrUnsortedTokens     = errors.New("tx: output tokens not sorted or duplicated")
	ErrMissingSignature   = errors.New("tx: missing input signature")
)

// Validate runs every check that does not require UTXO-set or VM access:
// shape, duplicate inputs, size limits, gas bounds, and per-output token
// ordering. It does not check witnesses, balances, or lock times, which
// need the referenced outputs.
func (t *Transaction) Validate() error {
	u := &t.Unsigned

	if !t.IsCoinbase() {
		if len(u.Inputs) == 0 {
			return ErrNoInputs
		}
	}
	if len(u.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d > %d", ErrTooManyInputs, len(u.Inputs), config.MaxTxInputs)
	}
	if len(u.FixedOutputs) == 0 {
		return ErrNoOutputs
	}
	if len(u.FixedOutputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d > %d", ErrTooManyOutputs, len(u.FixedOutputs), config.MaxTxOutputs)
	}

	seen := make(map[types.TxOutputRef]struct{}, len(u.Inputs))
	for _, in := range u.Inputs {
		if _, ok := seen[in.OutputRef]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateInput, in.OutputRef)
		}
		seen[in.OutputRef] = struct{}{}
	}

	if len(u.ScriptOpt) > config.MaxScriptData {
		return fmt.Errorf("%w: %d > %d", ErrScriptDataTooLarge, len(u.ScriptOpt), config.MaxScriptData)
	}

	if !t.IsCoinbase() {
		if u.GasAmount < config.MinimalGas || u.GasAmount > config.MaxGasPerTx {
			return fmt.Errorf("%w: %d", ErrInvalidGasAmount, u.GasAmount)
		}
		if u.GasPrice == nil || u.GasPrice.Sign() <= 0 || u.GasPrice.Cmp(config.MaxALFValue) >= 0 {
			return ErrInvalidGasPrice
		}
	}

	total := new(big.Int)
	for _, out := range u.FixedOutputs {
		if out.Amount == nil || out.Amount.Sign() < 0 {
			return ErrNegativeOutput
		}
		if out.Amount.Sign() == 0 && len(out.Tokens) == 0 {
			return ErrNegativeOutput
		}
		if !types.SortedTokensValid(out.Tokens) {
			return ErrUnsortedTokens
		}
		total.Add(total, out.Amount)
		if total.Cmp(config.MaxALFValue) > 0 {
			return ErrOutputOverflow
		}
	}

	return nil
}

// VerifySignatures checks that every P2PKH/P2MPKH input carries a
// cryptographically valid signature over the unsigned transaction hash.
// It does not check that the unlock script matches the output being
// spent (that requires the referenced output) nor P2SH script
// execution — full witness verification against a resolved UTXO set
// happens in internal/txvalidate.checkWitnesses.
func (t *Transaction) VerifySignatures() error {
	if t.IsCoinbase() {
		return nil
	}
	if len(t.InputSignatures) == 0 {
		return ErrMissingSignature
	}
	hash := t.Unsigned.Id()
	used := 0
	for _, in := range t.Unsigned.Inputs {
		switch in.UnlockScript.Tag {
		case types.UnlockP2PKH:
			if used >= len(t.InputSignatures) {
				return ErrMissingSignature
			}
			sig := t.InputSignatures[used]
			used++
			if len(in.UnlockScript.PubKey) == 0 {
				return fmt.Errorf("%w: missing pubkey", ErrMissingSignature)
			}
			if !crypto.VerifySignature(hash[:], sig, in.UnlockScript.PubKey) {
				return fmt.Errorf("tx: invalid signature for input %s", in.OutputRef)
			}
		case types.UnlockP2MPKH:
			for _, ipk := range in.UnlockScript.IndexedPublicKeys {
				if used >= len(t.InputSignatures) {
					return ErrMissingSignature
				}
				sig := t.InputSignatures[used]
				used++
				if !crypto.VerifySignature(hash[:], sig, ipk.PubKey) {
					return fmt.Errorf("tx: invalid signature for input %s", in.OutputRef)
				}
			}
		case types.UnlockP2SH:
			// P2SH unlocking runs through the VM; signatures (if any) are
			// consumed as script parameters, not checked here.
		}
	}
	return nil
}
