package txvalidate

import (
	"math/big"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/conflict"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// mockResolver resolves TxOutputRef by key from an in-memory map, the
// way the teacher's pool_test.go fakes a UTXO provider.
type mockResolver struct {
	outputs map[types.Hash]tx.Output
}

func newMockResolver() *mockResolver {
	return &mockResolver{outputs: make(map[types.Hash]tx.Output)}
}

func (m *mockResolver) put(ref types.TxOutputRef, out tx.Output) {
	m.outputs[ref.Key] = out
}

func (m *mockResolver) ResolveOutput(ref types.TxOutputRef) (tx.Output, bool, error) {
	out, ok := m.outputs[ref.Key]
	return out, ok, nil
}

func testRef(seed byte) types.TxOutputRef {
	return types.NewAssetOutputRef(0, types.Hash{seed})
}

func testEnv() BlockEnv {
	return BlockEnv{Timestamp: 1700000000, ChainIndex: types.ChainIndex{From: 0, To: 0}, Groups: 4}
}

// buildSpend builds a single-input, single-output P2PKH transaction
// spending preAmount, paying outAmount plus the fixed fee, signed by key.
func buildSpend(t *testing.T, key *crypto.PrivateKey, ref types.TxOutputRef, outAmount *big.Int, gasAmount int64, gasPrice *big.Int) *tx.Transaction {
	t.Helper()
	b := tx.NewBuilder()
	b.AddInput(ref, key.PublicKey())
	b.AddOutput(outAmount, types.P2PKH(crypto.AddressFromPubKey(key.PublicKey())))
	b.SetGas(gasAmount, gasPrice)
	if err := b.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return b.Build()
}

func TestValidator_Validate_SimpleP2PKHSpend(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	ref := testRef(1)
	gasAmount, gasPrice := int64(20_000), big.NewInt(1)
	fee := tx.GasFee(gasAmount, gasPrice)
	preAmount := big.NewInt(1000)
	outAmount := new(big.Int).Sub(preAmount, fee)

	transaction := buildSpend(t, key, ref, outAmount, gasAmount, gasPrice)

	resolver := newMockResolver()
	resolver.put(ref, tx.NewAssetOutput(preAmount, types.P2PKH(addr), nil, 0, nil))

	v := New(resolver, nil, 0)
	gotFee, err := v.Validate(transaction, testEnv())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if gotFee.Cmp(fee) != 0 {
		t.Errorf("fee = %s, want %s", gotFee, fee)
	}
}

func TestValidator_Validate_WrongPubKeyHash(t *testing.T) {
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	ref := testRef(2)
	gasAmount, gasPrice := int64(20_000), big.NewInt(1)
	preAmount := big.NewInt(1000)
	outAmount := new(big.Int).Sub(preAmount, tx.GasFee(gasAmount, gasPrice))

	transaction := buildSpend(t, key, ref, outAmount, gasAmount, gasPrice)

	resolver := newMockResolver()
	// Lockup names a different key's hash than the one that signed.
	resolver.put(ref, tx.NewAssetOutput(preAmount, types.P2PKH(crypto.AddressFromPubKey(other.PublicKey())), nil, 0, nil))

	v := New(resolver, nil, 0)
	if _, err := v.Validate(transaction, testEnv()); err == nil {
		t.Fatal("expected an error for mismatched pubkey hash")
	}
}

func TestValidator_Validate_NonExistInput(t *testing.T) {
	key, _ := crypto.GenerateKey()
	ref := testRef(3)
	transaction := buildSpend(t, key, ref, big.NewInt(500), 20_000, big.NewInt(1))

	v := New(newMockResolver(), nil, 0)
	_, err := v.Validate(transaction, testEnv())
	if err == nil {
		t.Fatal("expected ErrNonExistInput")
	}
}

func TestValidator_Validate_BalanceMismatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	ref := testRef(4)
	preAmount := big.NewInt(1000)
	// Output spends the whole pre-amount, leaving nothing for the fee.
	transaction := buildSpend(t, key, ref, preAmount, 20_000, big.NewInt(1))

	resolver := newMockResolver()
	resolver.put(ref, tx.NewAssetOutput(preAmount, types.P2PKH(addr), nil, 0, nil))

	v := New(resolver, nil, 0)
	if _, err := v.Validate(transaction, testEnv()); err == nil {
		t.Fatal("expected ErrBalanceMismatch")
	}
}

func TestValidator_Validate_TimeLockedInput(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	ref := testRef(5)
	gasAmount, gasPrice := int64(20_000), big.NewInt(1)
	preAmount := big.NewInt(1000)
	outAmount := new(big.Int).Sub(preAmount, tx.GasFee(gasAmount, gasPrice))
	transaction := buildSpend(t, key, ref, outAmount, gasAmount, gasPrice)

	resolver := newMockResolver()
	out := tx.NewAssetOutput(preAmount, types.P2PKH(addr), nil, 9_999_999_999, nil)
	resolver.put(ref, out)

	v := New(resolver, nil, 0)
	if _, err := v.Validate(transaction, testEnv()); err == nil {
		t.Fatal("expected ErrTimeLockedTx")
	}
}

func TestValidator_Validate_ConflictedInput(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	ref := testRef(6)
	gasAmount, gasPrice := int64(20_000), big.NewInt(1)
	preAmount := big.NewInt(1000)
	outAmount := new(big.Int).Sub(preAmount, tx.GasFee(gasAmount, gasPrice))
	transaction := buildSpend(t, key, ref, outAmount, gasAmount, gasPrice)

	resolver := newMockResolver()
	resolver.put(ref, tx.NewAssetOutput(preAmount, types.P2PKH(addr), nil, 0, nil))

	cache := conflict.New(config.ConflictRules{KeepDuration: 10 * time.Minute})
	cache.Add(ref, types.TxId{0xff}, time.Now())

	v := New(resolver, cache, 0)
	if _, err := v.Validate(transaction, testEnv()); err == nil {
		t.Fatal("expected ErrConflicted")
	}
}

func TestValidator_Validate_DustOutput(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	ref := testRef(7)
	gasAmount, gasPrice := int64(20_000), big.NewInt(1)
	preAmount := big.NewInt(1000)
	outAmount := new(big.Int).Sub(preAmount, tx.GasFee(gasAmount, gasPrice))
	transaction := buildSpend(t, key, ref, outAmount, gasAmount, gasPrice)

	resolver := newMockResolver()
	resolver.put(ref, tx.NewAssetOutput(preAmount, types.P2PKH(addr), nil, 0, nil))

	v := New(resolver, nil, 100_000) // dust floor above outAmount
	if _, err := v.Validate(transaction, testEnv()); err == nil {
		t.Fatal("expected ErrDustOutput")
	}
}

func TestValidator_Validate_Coinbase(t *testing.T) {
	addr := types.Address{0x01}
	b := tx.NewBuilder()
	b.AddOutput(big.NewInt(2_100_000), types.P2PKH(addr))
	coinbase := b.Build()
	coinbase.Unsigned.Inputs = []tx.TxInput{{OutputRef: types.TxOutputRef{}}}

	v := New(newMockResolver(), nil, 0)
	env := testEnv()
	env.CoinbaseNetReward = 2_100_000
	fee, err := v.Validate(coinbase, env)
	if err != nil {
		t.Fatalf("Validate coinbase: %v", err)
	}
	if fee.Sign() != 0 {
		t.Errorf("coinbase fee should be zero, got %s", fee)
	}
}

func TestValidator_Validate_CoinbaseWrongReward(t *testing.T) {
	addr := types.Address{0x01}
	b := tx.NewBuilder()
	b.AddOutput(big.NewInt(2_100_000), types.P2PKH(addr))
	coinbase := b.Build()
	coinbase.Unsigned.Inputs = []tx.TxInput{{OutputRef: types.TxOutputRef{}}}

	v := New(newMockResolver(), nil, 0)
	env := testEnv()
	env.CoinbaseNetReward = 1_000_000
	if _, err := v.Validate(coinbase, env); err == nil {
		t.Fatal("expected ErrBalanceMismatch for wrong coinbase reward")
	}
}
