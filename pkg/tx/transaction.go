// Package tx defines the transaction data model: unsigned transaction
// bodies, inputs/outputs, witnesses, and the stateless validation rules
// that do not require UTXO-set or VM access.
package tx

import (
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/pkg/codec"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// TxInput references a previous output together with the witness that
// unlocks it.
type TxInput struct {
	OutputRef    types.TxOutputRef
	UnlockScript types.UnlockScript
}

// UnsignedTx is the part of a transaction that gets signed and hashed into
// the transaction id.
type UnsignedTx struct {
	Inputs       []TxInput
	FixedOutputs []Output
	GasAmount    int64
	GasPrice     *big.Int
	ScriptOpt    []byte // serialized VM bytecode; nil for a plain transfer
}

// Transaction is a full transaction: its unsigned body, the witness
// signatures consumed against it, and the contract inputs/generated
// outputs script execution appends (empty for a transaction that has not
// yet run its script).
type Transaction struct {
	Unsigned           UnsignedTx
	InputSignatures    [][]byte
	ContractSignatures [][]byte
	ContractInputs     []types.TxOutputRef
	GeneratedOutputs    []Output
}

func encodeUnlockScript(w *codec.Writer, u types.UnlockScript) {
	w.Tag(uint8(u.Tag))
	switch u.Tag {
	case types.UnlockP2PKH:
		w.ByteVec(u.PubKey)
	case types.UnlockP2MPKH:
		w.SeqLen(len(u.IndexedPublicKeys))
		for _, ipk := range u.IndexedPublicKeys {
			w.ByteVec(ipk.PubKey)
			w.U32(uint32(ipk.Index))
		}
	case types.UnlockP2SH:
		w.ByteVec(u.Script)
		w.SeqLen(len(u.Params))
		for _, p := range u.Params {
			w.ByteVec(p)
		}
	}
}

func decodeUnlockScript(r *codec.Reader) (types.UnlockScript, error) {
	tag, err := r.Tag()
	if err != nil {
		return types.UnlockScript{}, err
	}
	u := types.UnlockScript{Tag: types.UnlockScriptTag(tag)}
	switch u.Tag {
	case types.UnlockP2PKH:
		pk, err := r.ByteVec()
		if err != nil {
			return types.UnlockScript{}, err
		}
		u.PubKey = pk
	case types.UnlockP2MPKH:
		n, err := r.SeqLen()
		if err != nil {
			return types.UnlockScript{}, err
		}
		ipks := make([]types.IndexedPublicKey, n)
		for i := 0; i < n; i++ {
			pk, err := r.ByteVec()
			if err != nil {
				return types.UnlockScript{}, err
			}
			idx, err := r.U32()
			if err != nil {
				return types.UnlockScript{}, err
			}
			ipks[i] = types.IndexedPublicKey{PubKey: pk, Index: int(idx)}
		}
		u.IndexedPublicKeys = ipks
	case types.UnlockP2SH:
		script, err := r.ByteVec()
		if err != nil {
			return types.UnlockScript{}, err
		}
		n, err := r.SeqLen()
		if err != nil {
			return types.UnlockScript{}, err
		}
		params := make([][]byte, n)
		for i := 0; i < n; i++ {
			p, err := r.ByteVec()
			if err != nil {
				return types.UnlockScript{}, err
			}
			params[i] = p
		}
		u.Script = script
		u.Params = params
	}
	return u, nil
}

func encodeOutputRef(w *codec.Writer, ref types.TxOutputRef) {
	w.U32(ref.Hint)
	w.Fixed(ref.Key.Bytes())
}

func decodeOutputRef(r *codec.Reader) (types.TxOutputRef, error) {
	hint, err := r.U32()
	if err != nil {
		return types.TxOutputRef{}, err
	}
	b, err := r.Fixed(types.HashSize)
	if err != nil {
		return types.TxOutputRef{}, err
	}
	var h types.Hash
	copy(h[:], b)
	return types.TxOutputRef{Hint: hint, Key: h}, nil
}

// Bytes returns the canonical encoding of the unsigned body: this is what
// is hashed to produce the transaction id, and what every input signature
// is computed over.
func (u *UnsignedTx) Bytes() []byte {
	w := codec.NewWriter(256)
	w.SeqLen(len(u.Inputs))
	for _, in := range u.Inputs {
		encodeOutputRef(w, in.OutputRef)
		encodeUnlockScript(w, in.UnlockScript)
	}
	w.SeqLen(len(u.FixedOutputs))
	for _, out := range u.FixedOutputs {
		out.Encode(w)
	}
	w.I64(u.GasAmount)
	gasPrice := u.GasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	w.U256(gasPrice)
	w.ByteVec(u.ScriptOpt)
	return w.Bytes()
}

// Id computes the transaction identity: hash(unsigned).
func (u *UnsignedTx) Id() types.TxId {
	return types.TxId(crypto.Hash(u.Bytes()))
}

// TxId is a convenience accessor for the transaction's identity.
func (t *Transaction) TxId() types.TxId {
	return t.Unsigned.Id()
}

// HasScript reports whether the transaction carries a VM script, i.e. is
// not a plain asset transfer.
func (t *Transaction) HasScript() bool {
	return len(t.Unsigned.ScriptOpt) > 0
}

// AllInputRefs returns every TxOutputRef this transaction consumes: the
// fixed UTXO inputs plus any contract inputs script execution added.
func (t *Transaction) AllInputRefs() []types.TxOutputRef {
	refs := make([]types.TxOutputRef, 0, len(t.Unsigned.Inputs)+len(t.ContractInputs))
	for _, in := range t.Unsigned.Inputs {
		refs = append(refs, in.OutputRef)
	}
	refs = append(refs, t.ContractInputs...)
	return refs
}

// IsConflicted reports whether t and other share any input TxOutputRef.
func (t *Transaction) IsConflicted(other *Transaction) bool {
	seen := make(map[types.TxOutputRef]struct{}, len(t.Unsigned.Inputs))
	for _, ref := range t.AllInputRefs() {
		seen[ref] = struct{}{}
	}
	for _, ref := range other.AllInputRefs() {
		if _, ok := seen[ref]; ok {
			return true
		}
	}
	return false
}

// AllOutputs returns the fixed outputs followed by any script-generated
// outputs.
func (t *Transaction) AllOutputs() []Output {
	out := make([]Output, 0, len(t.Unsigned.FixedOutputs)+len(t.GeneratedOutputs))
	out = append(out, t.Unsigned.FixedOutputs...)
	out = append(out, t.GeneratedOutputs...)
	return out
}

// IsCoinbase reports whether t has the single synthesized input shape of a
// coinbase transaction: exactly one input referencing the zero output ref.
func (t *Transaction) IsCoinbase() bool {
	if len(t.Unsigned.Inputs) != 1 {
		return false
	}
	return t.Unsigned.Inputs[0].OutputRef == types.TxOutputRef{}
}
