package tx

import (
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/pkg/codec"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// OutputTag discriminates the two output kinds in the codec sum type.
type OutputTag uint8

const (
	OutputAsset    OutputTag = 0
	OutputContract OutputTag = 1
)

// Output is an asset or contract output. Exactly one of the tag-specific
// fields is meaningful; AdditionalData and LockTime are asset-only.
type Output struct {
	Tag            OutputTag
	Amount         *big.Int
	LockupScript   types.LockupScript
	Tokens         []types.TokenAmount
	LockTime       uint64
	AdditionalData []byte
}

// NewAssetOutput builds an AssetOutput(amount, lockupScript, tokens,
// lockTime, additionalData).
func NewAssetOutput(amount *big.Int, lockup types.LockupScript, tokens []types.TokenAmount, lockTime uint64, data []byte) Output {
	return Output{
		Tag:            OutputAsset,
		Amount:         amount,
		LockupScript:   lockup,
		Tokens:         tokens,
		LockTime:       lockTime,
		AdditionalData: data,
	}
}

// NewContractOutput builds a ContractOutput(amount, lockupScript, tokens).
func NewContractOutput(amount *big.Int, lockup types.LockupScript, tokens []types.TokenAmount) Output {
	return Output{
		Tag:          OutputContract,
		Amount:       amount,
		LockupScript: lockup,
		Tokens:       tokens,
	}
}

// IsAsset reports whether this is an AssetOutput.
func (o Output) IsAsset() bool { return o.Tag == OutputAsset }

func encodeTokens(w *codec.Writer, tokens []types.TokenAmount) {
	w.SeqLen(len(tokens))
	for _, t := range tokens {
		w.Fixed(t.Id.Hash().Bytes())
		w.U256(t.Amount)
	}
}

func decodeTokens(r *codec.Reader) ([]types.TokenAmount, error) {
	n, err := r.SeqLen()
	if err != nil {
		return nil, err
	}
	out := make([]types.TokenAmount, n)
	for i := 0; i < n; i++ {
		b, err := r.Fixed(types.HashSize)
		if err != nil {
			return nil, err
		}
		var h types.Hash
		copy(h[:], b)
		amt, err := r.U256()
		if err != nil {
			return nil, err
		}
		out[i] = types.TokenAmount{Id: types.TokenId(h), Amount: amt}
	}
	return out, nil
}

func encodeLockupScript(w *codec.Writer, l types.LockupScript) {
	w.ByteVec(l.Bytes())
}

func decodeLockupScript(r *codec.Reader) (types.LockupScript, error) {
	b, err := r.ByteVec()
	if err != nil {
		return types.LockupScript{}, err
	}
	return types.DecodeLockupScriptBytes(b)
}

// Encode appends the output's canonical encoding: tag:u8 ‖ amount:u256 ‖
// lockupScript ‖ tokens ‖ (asset-only: lockTime:u64 ‖ additionalData).
func (o Output) Encode(w *codec.Writer) {
	w.Tag(uint8(o.Tag))
	amount := o.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	w.U256(amount)
	encodeLockupScript(w, o.LockupScript)
	encodeTokens(w, o.Tokens)
	if o.Tag == OutputAsset {
		w.U64(o.LockTime)
		w.ByteVec(o.AdditionalData)
	}
}

// DecodeOutput reads an Output previously written by Encode.
func DecodeOutput(r *codec.Reader) (Output, error) {
	tag, err := r.Tag()
	if err != nil {
		return Output{}, err
	}
	amount, err := r.U256()
	if err != nil {
		return Output{}, err
	}
	lockup, err := decodeLockupScript(r)
	if err != nil {
		return Output{}, err
	}
	tokens, err := decodeTokens(r)
	if err != nil {
		return Output{}, err
	}
	out := Output{Tag: OutputTag(tag), Amount: amount, LockupScript: lockup, Tokens: tokens}
	if out.Tag == OutputAsset {
		lockTime, err := r.U64()
		if err != nil {
			return Output{}, err
		}
		data, err := r.ByteVec()
		if err != nil {
			return Output{}, err
		}
		out.LockTime = lockTime
		out.AdditionalData = data
	}
	return out, nil
}
