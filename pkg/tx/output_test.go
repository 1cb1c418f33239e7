package tx

import (
	"math/big"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/codec"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func TestOutput_EncodeDecode_Asset(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	lockup := types.P2PKH(crypto.AddressFromPubKey(key.PublicKey()))
	out := NewAssetOutput(big.NewInt(12345), lockup, nil, 99, []byte("memo"))

	w := codec.NewWriter(64)
	out.Encode(w)

	got, err := DecodeOutput(codec.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsAsset() {
		t.Error("decoded output should be an asset output")
	}
	if got.Amount.Cmp(out.Amount) != 0 {
		t.Errorf("amount mismatch: got %s, want %s", got.Amount, out.Amount)
	}
	if got.LockTime != out.LockTime {
		t.Errorf("lockTime mismatch: got %d, want %d", got.LockTime, out.LockTime)
	}
	if string(got.AdditionalData) != string(out.AdditionalData) {
		t.Errorf("additionalData mismatch: got %q, want %q", got.AdditionalData, out.AdditionalData)
	}
	if got.LockupScript.Tag != lockup.Tag || got.LockupScript.PKHash != lockup.PKHash {
		t.Error("lockupScript mismatch after roundtrip")
	}
}

func TestOutput_EncodeDecode_Contract(t *testing.T) {
	lockup := types.P2C(types.Hash{0xaa})
	token := types.TokenAmount{Id: types.TokenId{0x01}, Amount: big.NewInt(7)}
	out := NewContractOutput(big.NewInt(500), lockup, []types.TokenAmount{token})

	w := codec.NewWriter(64)
	out.Encode(w)

	got, err := DecodeOutput(codec.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.IsAsset() {
		t.Error("decoded output should be a contract output")
	}
	if len(got.Tokens) != 1 || got.Tokens[0].Id != token.Id || got.Tokens[0].Amount.Cmp(token.Amount) != 0 {
		t.Errorf("tokens mismatch: got %v", got.Tokens)
	}
	if got.LockupScript.Tag != types.LockupP2C || got.LockupScript.ContractId != lockup.ContractId {
		t.Error("lockupScript mismatch for P2C output")
	}
	// Contract outputs carry no lockTime/additionalData.
	if got.LockTime != 0 || got.AdditionalData != nil {
		t.Error("contract output should not decode lockTime/additionalData")
	}
}

func TestOutput_EncodeDecode_NilAmount(t *testing.T) {
	lockup := types.P2C(types.Hash{0xbb})
	out := Output{Tag: OutputContract, LockupScript: lockup}

	w := codec.NewWriter(32)
	out.Encode(w)

	got, err := DecodeOutput(codec.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Amount == nil || got.Amount.Sign() != 0 {
		t.Errorf("expected zero amount for nil input, got %v", got.Amount)
	}
}

func TestDecodeOutput_TruncatedInput(t *testing.T) {
	w := codec.NewWriter(8)
	w.Tag(uint8(OutputAsset))
	_, err := DecodeOutput(codec.NewReader(w.Bytes()))
	if err == nil {
		t.Error("decoding a truncated output should fail")
	}
}

func TestDecodeOutput_EmptyInput(t *testing.T) {
	_, err := DecodeOutput(codec.NewReader(nil))
	if err == nil {
		t.Error("decoding empty input should fail")
	}
}
