package vm

import (
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Klingon-tech/klingnet-chain/internal/trie"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ContractObject is a deployed contract's live state during one
// execution: its code (fixed at deploy time) and its mutable fields,
// staged against the world-state trie so a failed transaction's writes
// never escape past this call.
type ContractObject struct {
	ContractId types.Hash
	Code       *Contract
	OutputRef  types.TxOutputRef

	fields []Val
	dirty  bool
}

func (o *ContractObject) loadField(index int) (Val, error) {
	if index < 0 || index >= len(o.fields) {
		return nil, ErrInvalidFieldIndex
	}
	v := o.fields[index]
	if v == nil {
		return nil, ErrInvalidFieldIndex
	}
	return v, nil
}

func (o *ContractObject) storeField(index int, v Val) error {
	if index < 0 || index >= len(o.fields) {
		return ErrInvalidFieldIndex
	}
	if v.Type() != o.Code.FieldTypes[index] {
		return ErrInvalidType
	}
	o.fields[index] = v
	o.dirty = true
	return nil
}

// fieldKey derives the trie key fields are stored under: contractId ‖
// big-endian field index, so every field of every contract lives at a
// distinct leaf of the shared world-state trie.
func fieldKey(contractId types.Hash, index int) []byte {
	key := make([]byte, types.HashSize+4)
	copy(key, contractId[:])
	binary.BigEndian.PutUint32(key[types.HashSize:], uint32(index))
	return key
}

// WorldState stages contract field reads/writes against a Merkle trie
// keyed by contractId‖fieldIndex, exactly like spec's "world-state
// staging" component of a stateful Context: writes are visible to
// later reads within the same execution but are only durable once
// Commit is called by the caller that owns the underlying trie.Trie
// (normally after a block's every transaction validates).
type WorldState struct {
	trie *trie.Trie
	pool *ContractPool
}

// NewWorldState builds a WorldState over t, using pool to cache decoded
// Contract code bodies (code never changes post-deploy, so it is safe
// to cache across transactions and blocks).
func NewWorldState(t *trie.Trie, pool *ContractPool) *WorldState {
	return &WorldState{trie: t, pool: pool}
}

// Load resolves a contract's code and fields from the trie into a
// fresh ContractObject. Code is served from pool when possible; fields
// always come from the trie, since they are mutable.
func (w *WorldState) Load(contractId types.Hash, code *Contract, outputRef types.TxOutputRef) (*ContractObject, error) {
	if code == nil {
		cached, ok := w.pool.Get(contractId)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrContractNotFound, contractId)
		}
		code = cached
	} else {
		w.pool.Add(contractId, code)
	}

	fields := make([]Val, len(code.FieldTypes))
	for i, t := range code.FieldTypes {
		raw, ok, err := w.trie.Get(fieldKey(contractId, i))
		if err != nil {
			return nil, err
		}
		if !ok {
			fields[i] = zeroValue(t)
			continue
		}
		v, err := decodeVal(t, raw)
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}

	return &ContractObject{ContractId: contractId, Code: code, OutputRef: outputRef, fields: fields}, nil
}

// Flush writes obj's dirty fields back into the trie. Call after a
// method returns successfully; on failure the caller discards obj
// instead, leaving the trie untouched.
func (w *WorldState) Flush(obj *ContractObject) error {
	if !obj.dirty {
		return nil
	}
	for i, v := range obj.fields {
		raw, err := encodeVal(v)
		if err != nil {
			return err
		}
		if err := w.trie.Put(fieldKey(obj.ContractId, i), raw); err != nil {
			return err
		}
	}
	obj.dirty = false
	return nil
}

func zeroValue(t ValType) Val {
	switch t {
	case TBool:
		return ValBool(false)
	case TI256:
		return NewI256(0)
	case TU256:
		return NewU256(0)
	case TByteVec:
		return ValByteVec{V: nil}
	case TAddress:
		return ValAddress{}
	default:
		return ValBool(false)
	}
}

// ContractPool caches decoded Contract code by contract id, avoiding a
// trie read plus bytecode decode on every call to a hot contract. It
// never caches fields, only the immutable code body.
type ContractPool struct {
	cache *lru.Cache[types.Hash, *Contract]
}

// NewContractPool builds a ContractPool holding up to size entries.
func NewContractPool(size int) (*ContractPool, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[types.Hash, *Contract](size)
	if err != nil {
		return nil, err
	}
	return &ContractPool{cache: c}, nil
}

func (p *ContractPool) Get(id types.Hash) (*Contract, bool) {
	return p.cache.Get(id)
}

func (p *ContractPool) Add(id types.Hash, c *Contract) {
	p.cache.Add(id, c)
}
