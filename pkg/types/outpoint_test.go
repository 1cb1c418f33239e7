package types

import "testing"

func TestTxOutputRef_IsAsset(t *testing.T) {
	assetRef := NewAssetOutputRef(0xabcd, Hash{0x01})
	if !assetRef.IsAsset() {
		t.Error("asset ref should report IsAsset() == true")
	}

	contractRef := NewContractOutputRef(0xabcd, Hash{0x01})
	if contractRef.IsAsset() {
		t.Error("contract ref should report IsAsset() == false")
	}
}

func TestTxOutputRef_String(t *testing.T) {
	ref := NewAssetOutputRef(0x1, Hash{0xaa})
	if ref.String() == "" {
		t.Fatal("expected non-empty string")
	}
}

func TestOutputRefKey_Deterministic(t *testing.T) {
	// Stand-in hash: the trailing HashSize bytes, so the index bytes
	// appended after txId reach the key.
	hashFn := func(b []byte) Hash {
		var h Hash
		copy(h[:], b[len(b)-HashSize:])
		return h
	}
	txID := TxId{0x01, 0x02}
	k1 := OutputRefKey(hashFn, txID, 3)
	k2 := OutputRefKey(hashFn, txID, 3)
	if k1 != k2 {
		t.Error("OutputRefKey should be deterministic for the same inputs")
	}

	k3 := OutputRefKey(hashFn, txID, 4)
	if k1 == k3 {
		t.Error("different output indices should produce different keys")
	}
}
