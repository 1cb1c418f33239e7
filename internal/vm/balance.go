package vm

import (
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// BalanceState tracks one tx input's worth of assets as they are
// approved into a frame and spent by Assets-class opcodes. approved is
// the amount ApproveAlf/ApproveToken moved out of the input and made
// available to the current call chain; remaining shrinks as
// TransferAlf/TransferToken opcodes spend it.
type BalanceState struct {
	owner types.Address

	remainingAlf *big.Int
	remainingTok map[types.TokenId]*big.Int

	approvedAlf *big.Int
	approvedTok map[types.TokenId]*big.Int
}

func newBalanceState(owner types.Address, alf *big.Int, tokens []types.TokenAmount) *BalanceState {
	tok := make(map[types.TokenId]*big.Int, len(tokens))
	for _, t := range tokens {
		tok[t.Id] = new(big.Int).Set(t.Amount)
	}
	return &BalanceState{
		owner:        owner,
		remainingAlf: new(big.Int).Set(alf),
		remainingTok: tok,
		approvedAlf:  new(big.Int),
		approvedTok:  make(map[types.TokenId]*big.Int),
	}
}

// approveAlf moves amount out of remaining and into approved, for use
// by a subsequent contract call's TransferAlfFromSelf.
func (b *BalanceState) approveAlf(amount *big.Int) error {
	if amount.Sign() < 0 || b.remainingAlf.Cmp(amount) < 0 {
		return ErrNotEnoughBalance
	}
	b.remainingAlf.Sub(b.remainingAlf, amount)
	b.approvedAlf.Add(b.approvedAlf, amount)
	return nil
}

func (b *BalanceState) approveToken(id types.TokenId, amount *big.Int) error {
	have, ok := b.remainingTok[id]
	if !ok || amount.Sign() < 0 || have.Cmp(amount) < 0 {
		return ErrNotEnoughBalance
	}
	have.Sub(have, amount)
	cur, ok := b.approvedTok[id]
	if !ok {
		cur = new(big.Int)
		b.approvedTok[id] = cur
	}
	cur.Add(cur, amount)
	return nil
}

// spendApprovedAlf consumes amount from the approved pool, as
// TransferAlfFromSelf does when a contract pays out of its approved
// input balance.
func (b *BalanceState) spendApprovedAlf(amount *big.Int) error {
	if amount.Sign() < 0 || b.approvedAlf.Cmp(amount) < 0 {
		return ErrNotEnoughBalance
	}
	b.approvedAlf.Sub(b.approvedAlf, amount)
	return nil
}

func (b *BalanceState) spendApprovedToken(id types.TokenId, amount *big.Int) error {
	have, ok := b.approvedTok[id]
	if !ok || amount.Sign() < 0 || have.Cmp(amount) < 0 {
		return ErrNotEnoughBalance
	}
	have.Sub(have, amount)
	return nil
}

func (b *BalanceState) alfRemaining() *big.Int {
	return new(big.Int).Set(b.remainingAlf)
}

func (b *BalanceState) tokenRemaining(id types.TokenId) *big.Int {
	if v, ok := b.remainingTok[id]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}
