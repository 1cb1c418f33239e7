package trie

import (
	"bytes"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Trie is a Merkle-Patricia trie over an arbitrary byte keyspace, with an
// in-memory staging overlay: writes are visible to Get immediately but are
// only persisted to the backing NodeStore on Commit. This lets a caller
// speculatively apply a batch of contract-state writes (e.g. while
// validating one block against its best-deps world state) and discard
// them with Reset if validation fails, without ever touching disk.
type Trie struct {
	store  NodeStore
	root   types.Hash
	staged map[types.Hash][]byte
}

// New returns a Trie rooted at root (the zero hash for an empty trie),
// reading persisted nodes from store.
func New(store NodeStore, root types.Hash) *Trie {
	return &Trie{store: store, root: root, staged: make(map[types.Hash][]byte)}
}

// Root returns the current root hash, including any staged-but-uncommitted
// writes.
func (t *Trie) Root() types.Hash {
	return t.root
}

// Reset discards all staged writes and restores root to the given hash
// (typically the trie's root before the discarded writes began).
func (t *Trie) Reset(root types.Hash) {
	t.root = root
	t.staged = make(map[types.Hash][]byte)
}

// Commit flushes every staged node to the backing store and clears the
// overlay. The root is unchanged by Commit; it only persists what Put and
// Delete already computed.
func (t *Trie) Commit() (types.Hash, error) {
	for hash, data := range t.staged {
		if err := t.store.Put(hash, data); err != nil {
			return types.Hash{}, err
		}
	}
	t.staged = make(map[types.Hash][]byte)
	return t.root, nil
}

func (t *Trie) stage(n node) (types.Hash, error) {
	h := n.hash()
	t.staged[h] = n.encode()
	return h, nil
}

func (t *Trie) fetch(hash types.Hash) (node, error) {
	if hash.IsZero() {
		return nil, nil
	}
	if data, ok := t.staged[hash]; ok {
		return decodeNode(data)
	}
	data, err := t.store.Get(hash)
	if err != nil {
		return nil, err
	}
	return decodeNode(data)
}

// Get looks up key, returning (value, true, nil) if present.
func (t *Trie) Get(key []byte) ([]byte, bool, error) {
	return t.get(t.root, keyToNibbles(key))
}

func (t *Trie) get(hash types.Hash, path []byte) ([]byte, bool, error) {
	if hash.IsZero() {
		return nil, false, nil
	}
	n, err := t.fetch(hash)
	if err != nil {
		return nil, false, err
	}
	switch nd := n.(type) {
	case *leafNode:
		if bytes.Equal(nd.path, path) {
			return nd.value, true, nil
		}
		return nil, false, nil
	case *extensionNode:
		if len(path) < len(nd.path) || !bytes.Equal(path[:len(nd.path)], nd.path) {
			return nil, false, nil
		}
		return t.get(nd.child, path[len(nd.path):])
	case *branchNode:
		if len(path) == 0 {
			if nd.value == nil {
				return nil, false, nil
			}
			return nd.value, true, nil
		}
		return t.get(nd.children[path[0]], path[1:])
	default:
		return nil, false, nil
	}
}

// Put stores value at key, updating the root.
func (t *Trie) Put(key, value []byte) error {
	newRoot, err := t.insert(t.root, keyToNibbles(key), value)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) insert(hash types.Hash, path, value []byte) (types.Hash, error) {
	if hash.IsZero() {
		return t.stage(&leafNode{path: path, value: value})
	}
	n, err := t.fetch(hash)
	if err != nil {
		return types.Hash{}, err
	}
	switch nd := n.(type) {
	case *leafNode:
		return t.insertAtLeaf(nd, path, value)
	case *extensionNode:
		return t.insertAtExtension(nd, path, value)
	case *branchNode:
		return t.insertAtBranch(nd, path, value)
	default:
		return t.stage(&leafNode{path: path, value: value})
	}
}

func (t *Trie) insertAtLeaf(nd *leafNode, path, value []byte) (types.Hash, error) {
	cp := commonPrefixLen(nd.path, path)
	if cp == len(nd.path) && cp == len(path) {
		return t.stage(&leafNode{path: path, value: value})
	}

	branch := &branchNode{}
	if cp == len(nd.path) {
		branch.value = nd.value
	} else {
		childHash, err := t.stage(&leafNode{path: nd.path[cp+1:], value: nd.value})
		if err != nil {
			return types.Hash{}, err
		}
		branch.children[nd.path[cp]] = childHash
	}
	if cp == len(path) {
		branch.value = value
	} else {
		childHash, err := t.stage(&leafNode{path: path[cp+1:], value: value})
		if err != nil {
			return types.Hash{}, err
		}
		branch.children[path[cp]] = childHash
	}

	branchHash, err := t.stage(branch)
	if err != nil {
		return types.Hash{}, err
	}
	if cp == 0 {
		return branchHash, nil
	}
	return t.stage(&extensionNode{path: path[:cp], child: branchHash})
}

func (t *Trie) insertAtExtension(nd *extensionNode, path, value []byte) (types.Hash, error) {
	cp := commonPrefixLen(nd.path, path)
	if cp == len(nd.path) {
		childHash, err := t.insert(nd.child, path[cp:], value)
		if err != nil {
			return types.Hash{}, err
		}
		return t.stage(&extensionNode{path: nd.path, child: childHash})
	}

	branch := &branchNode{}
	if cp+1 == len(nd.path) {
		branch.children[nd.path[cp]] = nd.child
	} else {
		childHash, err := t.stage(&extensionNode{path: nd.path[cp+1:], child: nd.child})
		if err != nil {
			return types.Hash{}, err
		}
		branch.children[nd.path[cp]] = childHash
	}
	if cp == len(path) {
		branch.value = value
	} else {
		leafHash, err := t.stage(&leafNode{path: path[cp+1:], value: value})
		if err != nil {
			return types.Hash{}, err
		}
		branch.children[path[cp]] = leafHash
	}

	branchHash, err := t.stage(branch)
	if err != nil {
		return types.Hash{}, err
	}
	if cp == 0 {
		return branchHash, nil
	}
	return t.stage(&extensionNode{path: path[:cp], child: branchHash})
}

func (t *Trie) insertAtBranch(nd *branchNode, path, value []byte) (types.Hash, error) {
	if len(path) == 0 {
		newBranch := *nd
		newBranch.value = value
		return t.stage(&newBranch)
	}
	nibble := path[0]
	childHash, err := t.insert(nd.children[nibble], path[1:], value)
	if err != nil {
		return types.Hash{}, err
	}
	newBranch := *nd
	newBranch.children[nibble] = childHash
	return t.stage(&newBranch)
}

// Delete removes key, updating the root. Deleting an absent key is a no-op.
func (t *Trie) Delete(key []byte) error {
	newRoot, _, err := t.delete(t.root, keyToNibbles(key))
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) delete(hash types.Hash, path []byte) (types.Hash, bool, error) {
	if hash.IsZero() {
		return hash, false, nil
	}
	n, err := t.fetch(hash)
	if err != nil {
		return types.Hash{}, false, err
	}
	switch nd := n.(type) {
	case *leafNode:
		if bytes.Equal(nd.path, path) {
			return types.Hash{}, true, nil
		}
		return hash, false, nil
	case *extensionNode:
		if len(path) < len(nd.path) || !bytes.Equal(path[:len(nd.path)], nd.path) {
			return hash, false, nil
		}
		childHash, changed, err := t.delete(nd.child, path[len(nd.path):])
		if err != nil || !changed {
			return hash, changed, err
		}
		if childHash.IsZero() {
			return types.Hash{}, true, nil
		}
		merged, err := t.mergeExtension(nd.path, childHash)
		return merged, true, err
	case *branchNode:
		if len(path) == 0 {
			if nd.value == nil {
				return hash, false, nil
			}
			newBranch := *nd
			newBranch.value = nil
			h, err := t.collapseBranch(&newBranch)
			return h, true, err
		}
		nibble := path[0]
		childHash, changed, err := t.delete(nd.children[nibble], path[1:])
		if err != nil || !changed {
			return hash, changed, err
		}
		newBranch := *nd
		newBranch.children[nibble] = childHash
		h, err := t.collapseBranch(&newBranch)
		return h, true, err
	default:
		return hash, false, nil
	}
}

// mergeExtension builds the node reached by walking prefix then childHash,
// collapsing prefix into the child when the child is itself a leaf or
// extension so no node ever carries a redundant single-child extension.
func (t *Trie) mergeExtension(prefix []byte, childHash types.Hash) (types.Hash, error) {
	child, err := t.fetch(childHash)
	if err != nil {
		return types.Hash{}, err
	}
	switch cn := child.(type) {
	case *leafNode:
		return t.stage(&leafNode{path: concatNibbles(prefix, cn.path), value: cn.value})
	case *extensionNode:
		return t.stage(&extensionNode{path: concatNibbles(prefix, cn.path), child: cn.child})
	default:
		return t.stage(&extensionNode{path: prefix, child: childHash})
	}
}

// collapseBranch normalizes a branch after a child or its own value was
// removed: a branch with no value and exactly one child collapses into
// that child (merging the connecting nibble as a one-nibble extension), and
// a branch with no value and no children collapses to empty.
func (t *Trie) collapseBranch(nb *branchNode) (types.Hash, error) {
	if nb.value == nil {
		if idx := nb.onlyChild(); idx >= 0 {
			return t.mergeExtension([]byte{byte(idx)}, nb.children[idx])
		}
		if nb.childCount() == 0 {
			return types.Hash{}, nil
		}
	}
	return t.stage(nb)
}

func concatNibbles(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
