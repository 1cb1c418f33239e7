package chainstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// OutputSet tracks the live (unspent) asset/contract outputs of the
// canonical view of one broker's chains, keyed by TxOutputRef. It
// generalizes the teacher's flat-chain UTXO store (internal/utxo/store.go,
// keyed by types.Outpoint) to the TxOutputRef/tx.Output pair BlockFlow's
// multi-chain, asset-and-contract output model uses. The get/put/delete/has
// shape carries over; there is no address index.
type OutputSet struct {
	cols *storage.Columns
}

// NewOutputSet wraps cols's Outputs column as a live-output set.
func NewOutputSet(cols *storage.Columns) *OutputSet {
	return &OutputSet{cols: cols}
}

// outputKey packs a TxOutputRef as key.Bytes() ‖ big-endian hint, so
// asset and contract refs to the same key hash never collide.
func outputKey(ref types.TxOutputRef) []byte {
	key := make([]byte, types.HashSize+4)
	copy(key, ref.Key.Bytes())
	binary.BigEndian.PutUint32(key[types.HashSize:], ref.Hint)
	return key
}

// Put records out as live under ref, spendable until a later Delete.
func (s *OutputSet) Put(ref types.TxOutputRef, out tx.Output) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("chainstore: marshal output %s: %w", ref, err)
	}
	if err := s.cols.Outputs.Put(outputKey(ref), data); err != nil {
		return fmt.Errorf("chainstore: put output %s: %w", ref, err)
	}
	return nil
}

// Delete marks ref spent, removing it from the live set.
func (s *OutputSet) Delete(ref types.TxOutputRef) error {
	if err := s.cols.Outputs.Delete(outputKey(ref)); err != nil {
		return fmt.Errorf("chainstore: delete output %s: %w", ref, err)
	}
	return nil
}

// Has reports whether ref is still live.
func (s *OutputSet) Has(ref types.TxOutputRef) (bool, error) {
	return s.cols.Outputs.Has(outputKey(ref))
}

// Get retrieves the output named by ref, if still live.
func (s *OutputSet) Get(ref types.TxOutputRef) (tx.Output, bool, error) {
	data, err := s.cols.Outputs.Get(outputKey(ref))
	if err != nil {
		return tx.Output{}, false, nil
	}
	var out tx.Output
	if err := json.Unmarshal(data, &out); err != nil {
		return tx.Output{}, false, fmt.Errorf("chainstore: unmarshal output %s: %w", ref, err)
	}
	return out, true, nil
}

// ResolveOutput implements internal/txvalidate.PreOutputResolver against
// this broker's confirmed live-output set.
func (s *OutputSet) ResolveOutput(ref types.TxOutputRef) (tx.Output, bool, error) {
	return s.Get(ref)
}

// OutputRef derives the TxOutputRef a transaction's outputIndex'th output
// (fixed or script-generated, AllOutputs order) is addressed by.
func OutputRef(t *tx.Transaction, outputIndex int, out tx.Output) types.TxOutputRef {
	key := types.OutputRefKey(crypto.Hash, t.TxId(), uint32(outputIndex))
	if out.IsAsset() {
		return types.NewAssetOutputRef(0, key)
	}
	return types.NewContractOutputRef(0, key)
}

// ApplyTx updates the live set for one already-validated transaction:
// every input it consumes (including any contract inputs script
// execution recorded) is spent, every output it produced becomes live.
// A coinbase transaction's synthetic zero input ref names nothing to
// spend and is skipped.
func (s *OutputSet) ApplyTx(t *tx.Transaction) error {
	for _, ref := range t.AllInputRefs() {
		if (ref == types.TxOutputRef{}) {
			continue
		}
		if err := s.Delete(ref); err != nil {
			return err
		}
	}
	for idx, out := range t.AllOutputs() {
		if err := s.Put(OutputRef(t, idx, out), out); err != nil {
			return err
		}
	}
	return nil
}

// ApplyBlock runs ApplyTx over every transaction in a validated block, in
// order. Callers run this after internal/blockvalidate accepts the block,
// inside the same single-writer section that advances chainstore's
// height/tip/canonical state.
func (s *OutputSet) ApplyBlock(transactions []*tx.Transaction) error {
	for _, t := range transactions {
		if err := s.ApplyTx(t); err != nil {
			return err
		}
	}
	return nil
}
