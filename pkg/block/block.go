// Package block defines the block type, its canonical transaction-hash
// merkle root, and the deterministic script-execution order every
// honest node derives identically from a block's own contents.
package block

import (
	"github.com/Klingon-tech/klingnet-chain/internal/prng"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Block is a header plus its ordered transactions. The last transaction
// is always the coinbase; every earlier one is a regular transaction.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock builds a block from a header and transactions, with the
// coinbase transaction appended last.
func NewBlock(header *Header, nonCoinbase []*tx.Transaction, coinbase *tx.Transaction) *Block {
	txs := make([]*tx.Transaction, 0, len(nonCoinbase)+1)
	txs = append(txs, nonCoinbase...)
	txs = append(txs, coinbase)
	return &Block{Header: header, Transactions: txs}
}

// Coinbase returns the block's coinbase transaction (the last one).
func (b *Block) Coinbase() *tx.Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[len(b.Transactions)-1]
}

// NonCoinbase returns every transaction except the coinbase.
func (b *Block) NonCoinbase() []*tx.Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[:len(b.Transactions)-1]
}

// Hash returns the block's identity: its header hash.
func (b *Block) Hash() types.BlockHash {
	if b.Header == nil {
		return types.BlockHash{}
	}
	return b.Header.Hash()
}

// TxsHash computes the merkle root over every transaction id in stored
// order (coinbase last); this is the value a correct Header.TxsHash
// must commit to.
func (b *Block) TxsHash() types.Hash {
	ids := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		ids[i] = types.Hash(t.TxId())
	}
	return ComputeMerkleRoot(ids)
}

// scriptExecutionSeed derives the shuffle seed from the parent hash and
// up to three sample transaction hashes (first, middle, last of
// nonCoinbase in stored order), so every node computes the identical
// seed from the block's own contents plus its parent.
func scriptExecutionSeed(parentHash types.BlockHash, nonCoinbase []*tx.Transaction) [32]byte {
	if len(nonCoinbase) == 0 {
		return prng.Seed(parentHash[:])
	}
	first := types.Hash(nonCoinbase[0].TxId())
	mid := types.Hash(nonCoinbase[len(nonCoinbase)/2].TxId())
	last := types.Hash(nonCoinbase[len(nonCoinbase)-1].TxId())
	return prng.Seed(parentHash[:], first[:], mid[:], last[:])
}

// ScriptExecutionOrder returns, for each position in NonCoinbase(), the
// index of the transaction that should execute there. Transactions
// without a script keep their stored position; transactions carrying a
// script are permuted among themselves using a seed derived from
// parentHash and three sample transaction hashes, so every honest node
// derives the identical order.
func (b *Block) ScriptExecutionOrder(parentHash types.BlockHash) []int {
	nonCoinbase := b.NonCoinbase()
	order := make([]int, len(nonCoinbase))
	for i := range order {
		order[i] = i
	}

	var scripted []int
	for i, t := range nonCoinbase {
		if t.HasScript() {
			scripted = append(scripted, i)
		}
	}
	if len(scripted) <= 1 {
		return order
	}

	seed := scriptExecutionSeed(parentHash, nonCoinbase)
	perm := prng.Permutation(seed, len(scripted))
	for i, p := range perm {
		order[scripted[i]] = scripted[p]
	}
	return order
}
