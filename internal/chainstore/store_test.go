package chainstore

import (
	"math/big"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func newTestStore() *Store {
	return New(storage.NewColumns(storage.NewMemory()))
}

func testBlock(t *testing.T) *block.Block {
	t.Helper()
	addr := types.Address{0x01}
	b := tx.NewBuilder()
	b.AddOutput(big.NewInt(1000), types.P2PKH(addr))
	coinbase := b.Build()
	coinbase.Unsigned.Inputs = []tx.TxInput{{OutputRef: types.TxOutputRef{}}}

	groups := 4
	deps := make([]types.BlockHash, types.DepVectorLen(groups))
	deps[0] = types.BlockHash{0xaa}
	tgt, _ := types.NewTargetFromInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
	header := &block.Header{
		Deps:      deps,
		Timestamp: 1700000000,
		Target:    tgt,
		Nonce:     new(big.Int),
	}
	blk := block.NewBlock(header, nil, coinbase)
	header.TxsHash = blk.TxsHash()
	return blk
}

func TestStore_PutGetBlock(t *testing.T) {
	s := newTestStore()
	blk := testBlock(t)
	hash := blk.Header.Hash()

	if err := s.PutBlock(blk); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	has, err := s.HasBlock(hash)
	if err != nil || !has {
		t.Fatalf("HasBlock: has=%v err=%v", has, err)
	}

	got, err := s.GetBlock(hash)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Header.Hash() != hash {
		t.Error("retrieved block hash mismatch")
	}
}

func TestStore_GetHeader(t *testing.T) {
	s := newTestStore()
	blk := testBlock(t)
	hash := blk.Header.Hash()
	if err := s.PutBlock(blk); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	h, err := s.GetHeader(hash)
	if err != nil {
		t.Fatalf("GetHeader: %v", err)
	}
	if h.Hash() != hash {
		t.Error("retrieved header hash mismatch")
	}
}

func TestStore_TxLocation(t *testing.T) {
	s := newTestStore()
	blk := testBlock(t)
	hash := blk.Header.Hash()
	if err := s.PutBlock(blk); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	txId := blk.Coinbase().TxId()
	loc, err := s.GetTxLocation(txId)
	if err != nil {
		t.Fatalf("GetTxLocation: %v", err)
	}
	if loc != hash {
		t.Errorf("GetTxLocation() = %s, want %s", loc, hash)
	}
}

func TestStore_HeightIndex_MultipleCompetingBlocks(t *testing.T) {
	s := newTestStore()
	ci := types.ChainIndex{From: 0, To: 0}

	h1 := types.BlockHash{0x01}
	h2 := types.BlockHash{0x02}
	if err := s.PutHeightHash(ci, 5, h1); err != nil {
		t.Fatalf("PutHeightHash: %v", err)
	}
	if err := s.PutHeightHash(ci, 5, h2); err != nil {
		t.Fatalf("PutHeightHash: %v", err)
	}

	hashes, err := s.HeightHashes(ci, 5)
	if err != nil {
		t.Fatalf("HeightHashes: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("expected 2 competing blocks at height 5, got %d", len(hashes))
	}
}

func TestStore_HeightIndex_DistinctChains(t *testing.T) {
	s := newTestStore()
	ci1 := types.ChainIndex{From: 0, To: 0}
	ci2 := types.ChainIndex{From: 1, To: 2}

	h1 := types.BlockHash{0x01}
	if err := s.PutHeightHash(ci1, 3, h1); err != nil {
		t.Fatalf("PutHeightHash: %v", err)
	}

	hashes, err := s.HeightHashes(ci2, 3)
	if err != nil {
		t.Fatalf("HeightHashes: %v", err)
	}
	if len(hashes) != 0 {
		t.Errorf("expected no blocks indexed on an unrelated chain, got %d", len(hashes))
	}
}

func TestStore_Canonical(t *testing.T) {
	s := newTestStore()
	hash := types.BlockHash{0x01}

	canonical, err := s.IsCanonical(hash)
	if err != nil || canonical {
		t.Fatalf("expected not canonical before SetCanonical: canonical=%v err=%v", canonical, err)
	}

	if err := s.SetCanonical(hash, true); err != nil {
		t.Fatalf("SetCanonical(true): %v", err)
	}
	canonical, err = s.IsCanonical(hash)
	if err != nil || !canonical {
		t.Fatalf("expected canonical after SetCanonical(true): canonical=%v err=%v", canonical, err)
	}

	if err := s.SetCanonical(hash, false); err != nil {
		t.Fatalf("SetCanonical(false): %v", err)
	}
	canonical, err = s.IsCanonical(hash)
	if err != nil || canonical {
		t.Fatalf("expected not canonical after SetCanonical(false): canonical=%v err=%v", canonical, err)
	}
}

func TestStore_Tip_DefaultsToZero(t *testing.T) {
	s := newTestStore()
	ci := types.ChainIndex{From: 0, To: 0}
	hash, height, err := s.GetTip(ci)
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	if !hash.IsZero() || height != 0 {
		t.Errorf("expected zero tip on a fresh store, got hash=%s height=%d", hash, height)
	}
}

func TestStore_SetGetTip(t *testing.T) {
	s := newTestStore()
	ci := types.ChainIndex{From: 1, To: 2}
	hash := types.BlockHash{0xab}

	if err := s.SetTip(ci, hash, 42); err != nil {
		t.Fatalf("SetTip: %v", err)
	}
	gotHash, gotHeight, err := s.GetTip(ci)
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	if gotHash != hash || gotHeight != 42 {
		t.Errorf("GetTip() = (%s,%d), want (%s,42)", gotHash, gotHeight, hash)
	}
}

func TestStore_Tip_IndependentPerChain(t *testing.T) {
	s := newTestStore()
	ci1 := types.ChainIndex{From: 0, To: 0}
	ci2 := types.ChainIndex{From: 0, To: 1}

	s.SetTip(ci1, types.BlockHash{0x01}, 1)
	s.SetTip(ci2, types.BlockHash{0x02}, 2)

	h1, height1, _ := s.GetTip(ci1)
	h2, height2, _ := s.GetTip(ci2)
	if h1 == h2 || height1 == height2 {
		t.Error("tips for distinct chains should be tracked independently")
	}
}
