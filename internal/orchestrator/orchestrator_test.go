package orchestrator

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/blockflow"
	"github.com/Klingon-tech/klingnet-chain/internal/blockvalidate"
	"github.com/Klingon-tech/klingnet-chain/internal/chainstore"
	"github.com/Klingon-tech/klingnet-chain/internal/conflict"
	"github.com/Klingon-tech/klingnet-chain/internal/mempool"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/internal/txvalidate"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

const groups = 1

type mockResolver struct {
	outputs map[types.Hash]tx.Output
}

func newMockResolver() *mockResolver { return &mockResolver{outputs: make(map[types.Hash]tx.Output)} }

func (m *mockResolver) put(ref types.TxOutputRef, out tx.Output) { m.outputs[ref.Key] = out }

func (m *mockResolver) ResolveOutput(ref types.TxOutputRef) (tx.Output, bool, error) {
	out, ok := m.outputs[ref.Key]
	return out, ok, nil
}

func maxTarget(t *testing.T) types.Target {
	t.Helper()
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	target, err := types.NewTargetFromInt(max)
	if err != nil {
		t.Fatalf("NewTargetFromInt: %v", err)
	}
	return target
}

func coinbaseTx(t *testing.T, amount *big.Int, addr types.Address) *tx.Transaction {
	t.Helper()
	b := tx.NewBuilder()
	b.AddOutput(amount, types.P2PKH(addr))
	coinbase := b.Build()
	coinbase.Unsigned.Inputs = []tx.TxInput{{OutputRef: types.TxOutputRef{}}}
	return coinbase
}

func sealedHeader(t *testing.T, deps []types.BlockHash, timestamp uint64, target types.Target, txsHash types.Hash) *block.Header {
	t.Helper()
	return &block.Header{
		Deps:      deps,
		TxsHash:   txsHash,
		Timestamp: timestamp,
		Target:    target,
		Nonce:     new(big.Int),
	}
}

type harness struct {
	t       *testing.T
	store   *chainstore.Store
	flow    *blockflow.Flow
	orch    *Orchestrator
	genesis *block.Block
	target  types.Target
	rules   config.ConsensusRules
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := chainstore.New(storage.NewColumns(storage.NewMemory()))
	flow := blockflow.New(store, groups)
	resolver := newMockResolver()
	conflicts := conflict.New(config.ConflictRules{})
	rules := config.ConsensusRules{BlockReward: 1000}

	target := maxTarget(t)
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	genesisCoinbase := coinbaseTx(t, big.NewInt(0), addr)
	genesisHeader := sealedHeader(t, make([]types.BlockHash, types.DepVectorLen(groups)), block.GenesisTimestamp, target, types.Hash{})
	genesis := block.NewBlock(genesisHeader, nil, genesisCoinbase)
	genesisHeader.TxsHash = genesis.TxsHash()

	if err := store.PutBlock(genesis); err != nil {
		t.Fatalf("PutBlock genesis: %v", err)
	}
	if err := flow.TryExtend(genesis); err != nil {
		t.Fatalf("TryExtend genesis: %v", err)
	}

	txs := txvalidate.New(resolver, conflicts, 0)
	validator := blockvalidate.New(flow, store, txs, conflicts, rules, groups)

	envFn := func() txvalidate.BlockEnv {
		return txvalidate.BlockEnv{ChainIndex: types.ChainIndex{From: 0, To: 0}, Groups: groups}
	}
	pool := mempool.New(txvalidate.New(resolver, conflicts, 0), config.MempoolRules{Capacity: 100, TTL: time.Hour}, envFn)

	orch := New(flow, store, nil, nil, pool, validator, groups, config.OrchestratorRules{QueueCapacity: 8})
	t.Cleanup(orch.Close)

	return &harness{t: t, store: store, flow: flow, orch: orch, genesis: genesis, target: target, rules: rules}
}

func (h *harness) childBlock() *block.Block {
	h.t.Helper()
	rewardKey, _ := crypto.GenerateKey()
	rewardAddr := crypto.AddressFromPubKey(rewardKey.PublicKey())
	reward := new(big.Int).SetUint64(h.rules.BaseReward(1))
	coinbase := coinbaseTx(h.t, reward, rewardAddr)

	deps := []types.BlockHash{h.genesis.Hash()}
	header := sealedHeader(h.t, deps, h.genesis.Header.Timestamp+1, h.target, types.Hash{})
	blk := block.NewBlock(header, nil, coinbase)
	header.TxsHash = blk.TxsHash()
	return blk
}

func TestOrchestrator_AddBlock_AcceptsValidChildAndNotifies(t *testing.T) {
	h := newHarness(t)
	notifyCh, cancel := h.orch.Subscribe(4)
	defer cancel()

	blk := h.childBlock()
	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := h.orch.AddBlock(ctx, blk, OriginMiner); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	select {
	case n := <-notifyCh:
		if n.Height != 1 {
			t.Errorf("notify height = %d, want 1", n.Height)
		}
		if n.Origin != OriginMiner {
			t.Errorf("notify origin = %v, want OriginMiner", n.Origin)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for BlockNotify")
	}

	tip, height, err := h.flow.Tip(types.ChainIndex{From: 0, To: 0})
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	if tip != blk.Hash() || height != 1 {
		t.Errorf("tip = (%s,%d), want (%s,1)", tip, height, blk.Hash())
	}
}

func TestOrchestrator_AddBlock_RejectsInvalidChild(t *testing.T) {
	h := newHarness(t)
	blk := h.childBlock()
	blk.Header.Deps = []types.BlockHash{{0xff}}
	blk.Header.TxsHash = blk.TxsHash()

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := h.orch.AddBlock(ctx, blk, OriginPeer); err == nil {
		t.Error("expected an error for an unknown parent hash")
	}

	has, err := h.store.HasBlock(blk.Hash())
	if err != nil {
		t.Fatalf("HasBlock: %v", err)
	}
	if has {
		t.Error("rejected block must not be stored")
	}
}

func TestOrchestrator_AddBlock_DuplicateIsNoop(t *testing.T) {
	h := newHarness(t)
	blk := h.childBlock()
	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()

	if err := h.orch.AddBlock(ctx, blk, OriginMiner); err != nil {
		t.Fatalf("AddBlock (first): %v", err)
	}
	if err := h.orch.AddBlock(ctx, blk, OriginMiner); err != nil {
		t.Fatalf("AddBlock (duplicate): %v", err)
	}
}

func TestOrchestrator_GetLocators_ReturnsGenesis(t *testing.T) {
	h := newHarness(t)
	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()

	locators, err := h.orch.GetLocators(ctx, types.ChainIndex{From: 0, To: 0})
	if err != nil {
		t.Fatalf("GetLocators: %v", err)
	}
	if len(locators) == 0 || locators[0] != h.genesis.Hash() {
		t.Errorf("locators = %v, want first entry %s", locators, h.genesis.Hash())
	}
}

func TestOrchestrator_Close_RejectsFurtherRequests(t *testing.T) {
	h := newHarness(t)
	h.orch.Close()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	blk := h.childBlock()
	if err := h.orch.AddBlock(ctx, blk, OriginMiner); err != ErrClosed {
		t.Errorf("got %v, want ErrClosed", err)
	}
}
