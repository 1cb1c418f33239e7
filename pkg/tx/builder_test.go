package tx

import (
	"math/big"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func TestBuilder_Build_DefaultsGas(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	tr := NewBuilder().
		AddInput(types.TxOutputRef{Key: types.Hash{0x01}}, key.PublicKey()).
		AddOutput(big.NewInt(1000), types.P2PKH(addr)).
		Build()

	if tr.Unsigned.GasAmount != config.MinimalGas {
		t.Errorf("expected default gas amount %d, got %d", config.MinimalGas, tr.Unsigned.GasAmount)
	}
	if tr.Unsigned.GasPrice.Cmp(config.DefaultGasPrice) != 0 {
		t.Errorf("expected default gas price %s, got %s", config.DefaultGasPrice, tr.Unsigned.GasPrice)
	}
}

func TestBuilder_SetGas(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	tr := NewBuilder().
		AddInput(types.TxOutputRef{Key: types.Hash{0x01}}, key.PublicKey()).
		AddOutput(big.NewInt(1000), types.P2PKH(addr)).
		SetGas(50_000, big.NewInt(2)).
		Build()

	if tr.Unsigned.GasAmount != 50_000 {
		t.Errorf("expected gas amount 50000, got %d", tr.Unsigned.GasAmount)
	}
	if tr.Unsigned.GasPrice.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("expected gas price 2, got %s", tr.Unsigned.GasPrice)
	}
}

func TestBuilder_SetScript(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	script := []byte{0x01, 0x02, 0x03}
	tr := NewBuilder().
		AddInput(types.TxOutputRef{Key: types.Hash{0x01}}, key.PublicKey()).
		AddOutput(big.NewInt(1000), types.P2PKH(addr)).
		SetScript(script).
		Build()

	if !tr.HasScript() {
		t.Error("transaction should report HasScript after SetScript")
	}
	if string(tr.Unsigned.ScriptOpt) != string(script) {
		t.Error("ScriptOpt mismatch")
	}
}

func TestBuilder_SetLockTime(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	tr := NewBuilder().
		AddInput(types.TxOutputRef{Key: types.Hash{0x01}}, key.PublicKey()).
		AddOutput(big.NewInt(1000), types.P2PKH(addr)).
		SetLockTime(12345).
		Build()

	if tr.Unsigned.FixedOutputs[0].LockTime != 12345 {
		t.Errorf("expected lockTime 12345, got %d", tr.Unsigned.FixedOutputs[0].LockTime)
	}
}

func TestBuilder_SetLockTime_OnlyAppliesToLastOutput(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	tr := NewBuilder().
		AddInput(types.TxOutputRef{Key: types.Hash{0x01}}, key.PublicKey()).
		AddOutput(big.NewInt(1000), types.P2PKH(addr)).
		AddOutput(big.NewInt(2000), types.P2PKH(addr)).
		SetLockTime(999).
		Build()

	if tr.Unsigned.FixedOutputs[0].LockTime != 0 {
		t.Error("earlier output should be unaffected by SetLockTime")
	}
	if tr.Unsigned.FixedOutputs[1].LockTime != 999 {
		t.Error("most recently added output should carry the lockTime")
	}
}

func TestBuilder_AddTokenOutput(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	token := types.TokenAmount{Id: types.TokenId{0x01}, Amount: big.NewInt(10)}
	tr := NewBuilder().
		AddInput(types.TxOutputRef{Key: types.Hash{0x01}}, key.PublicKey()).
		AddTokenOutput(big.NewInt(0), types.P2PKH(addr), token).
		Build()

	if len(tr.Unsigned.FixedOutputs[0].Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tr.Unsigned.FixedOutputs[0].Tokens))
	}
	if tr.Unsigned.FixedOutputs[0].Tokens[0].Id != token.Id {
		t.Error("token id mismatch")
	}
}

func TestBuilder_Sign_VerifiesSuccessfully(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	b := NewBuilder().
		AddInput(types.TxOutputRef{Key: types.Hash{0x01}}, key.PublicKey()).
		AddOutput(big.NewInt(1000), types.P2PKH(addr))
	if err := b.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	tr := b.Build()

	if len(tr.InputSignatures) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(tr.InputSignatures))
	}
	if err := tr.VerifySignatures(); err != nil {
		t.Errorf("signed transaction should verify: %v", err)
	}
}

func TestBuilder_Sign_SameSignatureAcrossMultipleInputs(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	b := NewBuilder().
		AddInput(types.TxOutputRef{Key: types.Hash{0x01}}, key.PublicKey()).
		AddInput(types.TxOutputRef{Key: types.Hash{0x02}}, key.PublicKey()).
		AddOutput(big.NewInt(1000), types.P2PKH(addr))
	if err := b.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	tr := b.Build()

	if len(tr.InputSignatures) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(tr.InputSignatures))
	}
	if string(tr.InputSignatures[0]) != string(tr.InputSignatures[1]) {
		t.Error("single-key Sign should repeat the same signature per input")
	}
}

func TestBuilder_SignMulti(t *testing.T) {
	key1, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key2, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr1 := crypto.AddressFromPubKey(key1.PublicKey())
	addr2 := crypto.AddressFromPubKey(key2.PublicKey())

	b := NewBuilder().
		AddInput(types.TxOutputRef{Key: types.Hash{0x01}}, key1.PublicKey()).
		AddInput(types.TxOutputRef{Key: types.Hash{0x02}}, key2.PublicKey()).
		AddOutput(big.NewInt(1000), types.P2PKH(addr1))

	signers := map[types.Address]*crypto.PrivateKey{addr1: key1, addr2: key2}
	addrOf := map[int]types.Address{0: addr1, 1: addr2}
	if err := b.SignMulti(signers, addrOf); err != nil {
		t.Fatalf("SignMulti: %v", err)
	}
	tr := b.Build()

	if err := tr.VerifySignatures(); err != nil {
		t.Errorf("multi-signed transaction should verify: %v", err)
	}
}

func TestBuilder_SignMulti_MissingSigner(t *testing.T) {
	key1, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr1 := crypto.AddressFromPubKey(key1.PublicKey())

	b := NewBuilder().
		AddInput(types.TxOutputRef{Key: types.Hash{0x01}}, key1.PublicKey()).
		AddOutput(big.NewInt(1000), types.P2PKH(addr1))

	err = b.SignMulti(map[types.Address]*crypto.PrivateKey{}, map[int]types.Address{0: addr1})
	if err == nil {
		t.Error("SignMulti should fail when no signer is registered for the input's address")
	}
}
