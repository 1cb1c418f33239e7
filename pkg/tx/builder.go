package tx

import (
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Builder constructs transactions incrementally, the way a wallet would
// before handing an UnsignedTx off for signing.
type Builder struct {
	unsigned   UnsignedTx
	pubKeys    [][]byte // parallel to unsigned.Inputs, pending P2PKH signing
	signatures [][]byte
}

// NewBuilder creates a transaction builder with the default gas price.
func NewBuilder() *Builder {
	return &Builder{
		unsigned: UnsignedTx{
			GasAmount: config.MinimalGas,
			GasPrice:  new(big.Int).Set(config.DefaultGasPrice),
		},
	}
}

// AddInput adds a P2PKH input spending outputRef, unlocked by pubKey.
func (b *Builder) AddInput(outputRef types.TxOutputRef, pubKey []byte) *Builder {
	b.unsigned.Inputs = append(b.unsigned.Inputs, TxInput{
		OutputRef:    outputRef,
		UnlockScript: types.UnlockScript{Tag: types.UnlockP2PKH, PubKey: pubKey},
	})
	b.pubKeys = append(b.pubKeys, pubKey)
	return b
}

// AddOutput adds a plain asset output.
func (b *Builder) AddOutput(amount *big.Int, lockup types.LockupScript) *Builder {
	b.unsigned.FixedOutputs = append(b.unsigned.FixedOutputs, NewAssetOutput(amount, lockup, nil, 0, nil))
	return b
}

// AddTokenOutput adds an asset output carrying a single token.
func (b *Builder) AddTokenOutput(amount *big.Int, lockup types.LockupScript, token types.TokenAmount) *Builder {
	b.unsigned.FixedOutputs = append(b.unsigned.FixedOutputs, NewAssetOutput(amount, lockup, []types.TokenAmount{token}, 0, nil))
	return b
}

// SetLockTime sets the lock time of the most recently added output.
func (b *Builder) SetLockTime(lockTime uint64) *Builder {
	if n := len(b.unsigned.FixedOutputs); n > 0 {
		b.unsigned.FixedOutputs[n-1].LockTime = lockTime
	}
	return b
}

// SetGas overrides the default gas amount and price.
func (b *Builder) SetGas(amount int64, price *big.Int) *Builder {
	b.unsigned.GasAmount = amount
	b.unsigned.GasPrice = price
	return b
}

// SetScript attaches VM bytecode, turning this into a script-carrying
// transaction.
func (b *Builder) SetScript(script []byte) *Builder {
	b.unsigned.ScriptOpt = script
	return b
}

// Sign signs every P2PKH input with the same private key
// (single-key spending).
func (b *Builder) Sign(key *crypto.PrivateKey) error {
	hash := b.unsigned.Id()
	sig, err := key.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	sigs := make([][]byte, 0, len(b.unsigned.Inputs))
	for range b.unsigned.Inputs {
		sigs = append(sigs, sig)
	}
	b.signatures = sigs
	return nil
}

// SignMulti signs each input with the key owning the address it was
// built from; addrOf maps each input's index to its owning address.
func (b *Builder) SignMulti(signers map[types.Address]*crypto.PrivateKey, addrOf map[int]types.Address) error {
	hash := b.unsigned.Id()

	type cached struct{ sig []byte }
	cache := make(map[types.Address]*cached)

	sigs := make([][]byte, len(b.unsigned.Inputs))
	for i := range b.unsigned.Inputs {
		addr, ok := addrOf[i]
		if !ok {
			return fmt.Errorf("no address mapping for input %d", i)
		}
		key, ok := signers[addr]
		if !ok {
			return fmt.Errorf("no signer for address %s (input %d)", addr, i)
		}
		c, hit := cache[addr]
		if !hit {
			sig, err := key.Sign(hash[:])
			if err != nil {
				return fmt.Errorf("sign input %d: %w", i, err)
			}
			c = &cached{sig: sig}
			cache[addr] = c
		}
		sigs[i] = c.sig
	}
	b.signatures = sigs
	return nil
}

// Build returns the constructed transaction. Does NOT validate — call
// Transaction.Validate() separately.
func (b *Builder) Build() *Transaction {
	return &Transaction{
		Unsigned:        b.unsigned,
		InputSignatures: b.signatures,
	}
}
