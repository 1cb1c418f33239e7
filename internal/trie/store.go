package trie

import (
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// NodeStore persists trie nodes by content hash.
type NodeStore interface {
	Get(hash types.Hash) ([]byte, error)
	Put(hash types.Hash, data []byte) error
}

// dbNodeStore adapts a storage.DB (typically the Trie column) into a
// NodeStore.
type dbNodeStore struct {
	db storage.DB
}

// NewDBNodeStore wraps db as a NodeStore.
func NewDBNodeStore(db storage.DB) NodeStore {
	return &dbNodeStore{db: db}
}

func (s *dbNodeStore) Get(hash types.Hash) ([]byte, error) {
	return s.db.Get(hash[:])
}

func (s *dbNodeStore) Put(hash types.Hash, data []byte) error {
	return s.db.Put(hash[:], data)
}
