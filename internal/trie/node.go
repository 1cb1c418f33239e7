// Package trie implements a Merkle-Patricia trie over the world-state
// keyspace: contractId -> (codeHash, fields, outputRef). Nodes are
// content-addressed by blake3 hash and persisted through a NodeStore, the
// same content-addressed-blob idiom storage.PrefixDB already uses for
// every other column family.
package trie

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/pkg/codec"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

type nodeTag byte

const (
	tagLeaf nodeTag = iota
	tagExtension
	tagBranch
)

// node is the in-memory representation of one trie node. Every node can
// compute its own canonical hash and encoding.
type node interface {
	hash() types.Hash
	encode() []byte
}

// leafNode terminates a path with a value.
type leafNode struct {
	path  []byte // remaining nibbles
	value []byte
}

// extensionNode compresses a run of nibbles shared by every key below it.
type extensionNode struct {
	path  []byte
	child types.Hash
}

// branchNode has up to 16 children, one per next nibble, plus an
// optional value for a key that terminates exactly at this branch.
type branchNode struct {
	children [16]types.Hash
	value    []byte
}

func (n *leafNode) encode() []byte {
	w := codec.NewWriter(8 + len(n.path) + len(n.value))
	w.Tag(byte(tagLeaf))
	w.ByteVec(n.path)
	w.ByteVec(n.value)
	return w.Bytes()
}

func (n *leafNode) hash() types.Hash {
	return crypto.Hash(n.encode())
}

func (n *extensionNode) encode() []byte {
	w := codec.NewWriter(8 + len(n.path) + 32)
	w.Tag(byte(tagExtension))
	w.ByteVec(n.path)
	w.Fixed(n.child[:])
	return w.Bytes()
}

func (n *extensionNode) hash() types.Hash {
	return crypto.Hash(n.encode())
}

func (n *branchNode) encode() []byte {
	w := codec.NewWriter(8 + 16*32 + len(n.value))
	w.Tag(byte(tagBranch))
	for _, c := range n.children {
		w.Fixed(c[:])
	}
	w.ByteVec(n.value)
	return w.Bytes()
}

func (n *branchNode) hash() types.Hash {
	return crypto.Hash(n.encode())
}

func (n *branchNode) childCount() int {
	count := 0
	for _, c := range n.children {
		if !c.IsZero() {
			count++
		}
	}
	return count
}

// onlyChild returns the single nonzero child's nibble index, or -1 if the
// branch has zero or more than one child.
func (n *branchNode) onlyChild() int {
	idx, found := -1, 0
	for i, c := range n.children {
		if !c.IsZero() {
			idx = i
			found++
		}
	}
	if found != 1 {
		return -1
	}
	return idx
}

func decodeNode(data []byte) (node, error) {
	r := codec.NewReader(data)
	tag, err := r.Tag()
	if err != nil {
		return nil, err
	}
	switch nodeTag(tag) {
	case tagLeaf:
		path, err := r.ByteVec()
		if err != nil {
			return nil, err
		}
		value, err := r.ByteVec()
		if err != nil {
			return nil, err
		}
		return &leafNode{path: path, value: value}, nil
	case tagExtension:
		path, err := r.ByteVec()
		if err != nil {
			return nil, err
		}
		childBytes, err := r.Fixed(32)
		if err != nil {
			return nil, err
		}
		var child types.Hash
		copy(child[:], childBytes)
		return &extensionNode{path: path, child: child}, nil
	case tagBranch:
		var n branchNode
		for i := range n.children {
			cBytes, err := r.Fixed(32)
			if err != nil {
				return nil, err
			}
			copy(n.children[i][:], cBytes)
		}
		value, err := r.ByteVec()
		if err != nil {
			return nil, err
		}
		n.value = value
		return &n, nil
	default:
		return nil, fmt.Errorf("trie: unknown node tag %d", tag)
	}
}

// keyToNibbles expands a byte key into its nibble sequence, two nibbles
// per byte, most-significant first.
func keyToNibbles(key []byte) []byte {
	nibbles := make([]byte, len(key)*2)
	for i, b := range key {
		nibbles[i*2] = b >> 4
		nibbles[i*2+1] = b & 0x0f
	}
	return nibbles
}

// commonPrefixLen returns the length of the shared prefix of a and b.
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
