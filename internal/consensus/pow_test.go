package consensus

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func easyTarget(t *testing.T) types.Target {
	t.Helper()
	target, err := types.NewTargetFromInt(new(big.Int).Lsh(big.NewInt(1), 255))
	if err != nil {
		t.Fatalf("NewTargetFromInt: %v", err)
	}
	return target
}

func TestPoW_Seal_SingleThread_ProducesValidHeader(t *testing.T) {
	header := &block.Header{
		Deps:      make([]types.BlockHash, types.DepVectorLen(1)),
		Timestamp: 1,
		Target:    easyTarget(t),
	}
	p := NewPoW(1)
	chain := block.ChainIndexFromHash(types.BlockHash{}, 1) // groups=1 ⇒ always {0,0}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Seal(ctx, header, 1, chain); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := p.VerifyHeader(header); err != nil {
		t.Errorf("VerifyHeader after Seal: %v", err)
	}
	if header.ChainIndex(1) != chain {
		t.Errorf("ChainIndex = %+v, want %+v", header.ChainIndex(1), chain)
	}
}

func TestPoW_Seal_MultiThread_ProducesValidHeader(t *testing.T) {
	header := &block.Header{
		Deps:      make([]types.BlockHash, types.DepVectorLen(1)),
		Timestamp: 2,
		Target:    easyTarget(t),
	}
	p := NewPoW(4)
	chain := types.ChainIndex{From: 0, To: 0}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Seal(ctx, header, 1, chain); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := p.VerifyHeader(header); err != nil {
		t.Errorf("VerifyHeader after Seal: %v", err)
	}
}

func TestPoW_VerifyHeader_RejectsUnmetTarget(t *testing.T) {
	tiny, err := types.NewTargetFromInt(big.NewInt(0))
	if err != nil {
		t.Fatalf("NewTargetFromInt: %v", err)
	}
	header := &block.Header{
		Deps:      make([]types.BlockHash, types.DepVectorLen(1)),
		Timestamp: 3,
		Target:    tiny,
		Nonce:     new(big.Int),
	}
	p := NewPoW(1)
	if err := p.VerifyHeader(header); err != ErrInsufficientWork {
		t.Errorf("got %v, want ErrInsufficientWork", err)
	}
}

func TestPoW_Seal_CancelledContext(t *testing.T) {
	tiny, err := types.NewTargetFromInt(big.NewInt(0))
	if err != nil {
		t.Fatalf("NewTargetFromInt: %v", err)
	}
	header := &block.Header{
		Deps:      make([]types.BlockHash, types.DepVectorLen(1)),
		Timestamp: 4,
		Target:    tiny,
	}
	p := NewPoW(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Seal(ctx, header, 1, types.ChainIndex{From: 0, To: 0}); err == nil {
		t.Error("expected an error from an already-cancelled context")
	}
}
