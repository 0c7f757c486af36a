package trie

import (
	"errors"
	"fmt"

	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/crypto"
)

var (
	// ErrNotFound is returned when a key is not present in the trie.
	ErrNotFound = errors.New("trie: key not found")

	// ErrMissingNode is returned when a referenced trie node cannot be
	// resolved from the database. Callers treat this as fatal corruption.
	ErrMissingNode = errors.New("trie: missing trie node")
)

// NodeReader resolves trie nodes by hash from a backing store.
type NodeReader interface {
	Node(hash types.Hash) ([]byte, error)
}

// NodeWriter receives committed trie nodes keyed by their keccak hash.
type NodeWriter interface {
	PutNode(hash types.Hash, enc []byte) error
}

// Trie is a Merkle-Patricia trie. The zero value (via New) is an empty
// trie; NewFromRoot lazily resolves nodes through the supplied reader.
type Trie struct {
	root node
	db   NodeReader
}

// New creates a new empty trie.
func New() *Trie {
	return &Trie{}
}

// NewFromRoot creates a trie rooted at the given hash, resolving nodes
// through db on demand. An EmptyRootHash (or zero) root yields an empty
// trie.
func NewFromRoot(root types.Hash, db NodeReader) (*Trie, error) {
	t := &Trie{db: db}
	if root == (types.Hash{}) || root == types.EmptyRootHash {
		return t, nil
	}
	t.root = hashNode(root.Bytes())
	return t, nil
}

// Get retrieves the value for key. Returns ErrNotFound if absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	value, newRoot, err := t.get(t.root, keybytesToHex(key), 0)
	if err != nil {
		return nil, err
	}
	t.root = newRoot
	if value == nil {
		return nil, ErrNotFound
	}
	return value, nil
}

func (t *Trie) get(n node, key []byte, pos int) ([]byte, node, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil, nil
	case valueNode:
		return []byte(n), n, nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || !keysEqual(n.Key, key[pos:pos+len(n.Key)]) {
			return nil, n, nil
		}
		value, child, err := t.get(n.Val, key, pos+len(n.Key))
		if err != nil {
			return nil, n, err
		}
		n.Val = child
		return value, n, nil
	case *fullNode:
		if pos >= len(key) {
			return nil, n, nil
		}
		if key[pos] == hexTerminator {
			value, child, err := t.get(n.Children[16], key, pos+1)
			if err != nil {
				return nil, n, err
			}
			n.Children[16] = child
			return value, n, nil
		}
		value, child, err := t.get(n.Children[key[pos]], key, pos+1)
		if err != nil {
			return nil, n, err
		}
		n.Children[key[pos]] = child
		return value, n, nil
	case hashNode:
		resolved, err := t.resolve(n)
		if err != nil {
			return nil, n, err
		}
		return t.get(resolved, key, pos)
	default:
		return nil, n, nil
	}
}

// Put inserts or updates a key-value pair. An empty value deletes the key.
func (t *Trie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	k := keybytesToHex(key)
	n, err := t.insert(t.root, k, valueNode(value))
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

func (t *Trie) insert(n node, key []byte, value node) (node, error) {
	if len(key) == 0 {
		return value, nil
	}

	switch n := n.(type) {
	case nil:
		return &shortNode{Key: key, Val: value}, nil

	case *shortNode:
		matchLen := prefixLen(key, n.Key)
		if matchLen == len(n.Key) {
			nn, err := t.insert(n.Val, key[matchLen:], value)
			if err != nil {
				return nil, err
			}
			return &shortNode{Key: n.Key, Val: nn}, nil
		}
		// Diverging keys: split into a branch.
		branch := &fullNode{}
		existing, err := t.insert(nil, n.Key[matchLen+1:], n.Val)
		if err != nil {
			return nil, err
		}
		if n.Key[matchLen] == hexTerminator {
			branch.Children[16] = n.Val
		} else {
			branch.Children[n.Key[matchLen]] = existing
		}
		inserted, err := t.insert(nil, key[matchLen+1:], value)
		if err != nil {
			return nil, err
		}
		if key[matchLen] == hexTerminator {
			branch.Children[16] = value
		} else {
			branch.Children[key[matchLen]] = inserted
		}
		if matchLen == 0 {
			return branch, nil
		}
		return &shortNode{Key: key[:matchLen], Val: branch}, nil

	case *fullNode:
		if key[0] == hexTerminator {
			cpy := n.copy()
			cpy.Children[16] = value
			return cpy, nil
		}
		child, err := t.insert(n.Children[key[0]], key[1:], value)
		if err != nil {
			return nil, err
		}
		cpy := n.copy()
		cpy.Children[key[0]] = child
		return cpy, nil

	case valueNode:
		// Reached a stored value with key nibbles remaining; move the
		// existing value into a branch terminator slot.
		branch := &fullNode{}
		branch.Children[16] = n
		return t.insert(branch, key, value)

	case hashNode:
		resolved, err := t.resolve(n)
		if err != nil {
			return nil, err
		}
		return t.insert(resolved, key, value)

	default:
		return nil, fmt.Errorf("trie: unknown node type %T", n)
	}
}

// Delete removes a key from the trie. Deleting an absent key is a no-op.
func (t *Trie) Delete(key []byte) error {
	n, err := t.delete(t.root, keybytesToHex(key))
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

func (t *Trie) delete(n node, key []byte) (node, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil

	case valueNode:
		if len(key) == 0 || (len(key) == 1 && key[0] == hexTerminator) {
			return nil, nil
		}
		return n, nil

	case *shortNode:
		matchLen := prefixLen(key, n.Key)
		if matchLen < len(n.Key) {
			return n, nil // not present
		}
		if matchLen == len(key) {
			return nil, nil // exact match, remove leaf
		}
		child, err := t.delete(n.Val, key[matchLen:])
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, nil
		}
		// Merge with a child short node to keep the trie canonical.
		if short, ok := child.(*shortNode); ok {
			merged := make([]byte, 0, len(n.Key)+len(short.Key))
			merged = append(merged, n.Key...)
			merged = append(merged, short.Key...)
			return &shortNode{Key: merged, Val: short.Val}, nil
		}
		return &shortNode{Key: n.Key, Val: child}, nil

	case *fullNode:
		var idx int
		if key[0] == hexTerminator {
			idx = 16
		} else {
			idx = int(key[0])
		}
		var (
			child node
			err   error
		)
		if idx == 16 {
			child = nil
		} else {
			child, err = t.delete(n.Children[idx], key[1:])
			if err != nil {
				return nil, err
			}
		}
		cpy := n.copy()
		cpy.Children[idx] = child

		// Count remaining children; collapse to a short node when only
		// one remains.
		remaining := -1
		for i := 0; i < 17; i++ {
			if cpy.Children[i] != nil {
				if remaining != -1 {
					return cpy, nil // two or more children, keep branch
				}
				remaining = i
			}
		}
		if remaining == -1 {
			return nil, nil
		}
		if remaining == 16 {
			return &shortNode{Key: []byte{hexTerminator}, Val: cpy.Children[16]}, nil
		}
		child = cpy.Children[remaining]
		if hn, ok := child.(hashNode); ok {
			resolved, err := t.resolve(hn)
			if err != nil {
				return nil, err
			}
			child = resolved
		}
		if short, ok := child.(*shortNode); ok {
			merged := append([]byte{byte(remaining)}, short.Key...)
			return &shortNode{Key: merged, Val: short.Val}, nil
		}
		return &shortNode{Key: []byte{byte(remaining)}, Val: child}, nil

	case hashNode:
		resolved, err := t.resolve(n)
		if err != nil {
			return nil, err
		}
		return t.delete(resolved, key)

	default:
		return nil, fmt.Errorf("trie: unknown node type %T", n)
	}
}

// Root returns the root hash of the trie without persisting nodes.
func (t *Trie) Root() types.Hash {
	if t.root == nil {
		return types.EmptyRootHash
	}
	return types.BytesToHash(hashRoot(t.root, nil))
}

// Commit computes the root hash and writes every reachable node encoding
// to the given writer (keccak(node_rlp) -> node_rlp). Returns the root.
func (t *Trie) Commit(w NodeWriter) (types.Hash, error) {
	if t.root == nil {
		return types.EmptyRootHash, nil
	}
	var werr error
	root := hashRoot(t.root, func(hash, enc []byte) {
		if werr == nil && w != nil {
			werr = w.PutNode(types.BytesToHash(hash), append([]byte(nil), enc...))
		}
	})
	if werr != nil {
		return types.Hash{}, werr
	}
	return types.BytesToHash(root), nil
}

// resolve loads a node body from the database and decodes it.
func (t *Trie) resolve(hn hashNode) (node, error) {
	if t.db == nil {
		return nil, fmt.Errorf("%w: %x", ErrMissingNode, []byte(hn))
	}
	enc, err := t.db.Node(types.BytesToHash(hn))
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %x", ErrMissingNode, []byte(hn))
	}
	return decodeNode(enc)
}

// SecureTrie wraps a Trie and hashes every key with keccak256, matching
// the account and storage trie key scheme.
type SecureTrie struct {
	trie *Trie
}

// NewSecure creates an empty secure trie.
func NewSecure() *SecureTrie {
	return &SecureTrie{trie: New()}
}

// NewSecureFromRoot creates a secure trie rooted at the given hash.
func NewSecureFromRoot(root types.Hash, db NodeReader) (*SecureTrie, error) {
	t, err := NewFromRoot(root, db)
	if err != nil {
		return nil, err
	}
	return &SecureTrie{trie: t}, nil
}

// Get retrieves the value stored under keccak256(key).
func (t *SecureTrie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(crypto.Keccak256(key))
}

// Put stores value under keccak256(key).
func (t *SecureTrie) Put(key, value []byte) error {
	return t.trie.Put(crypto.Keccak256(key), value)
}

// Delete removes the value stored under keccak256(key).
func (t *SecureTrie) Delete(key []byte) error {
	return t.trie.Delete(crypto.Keccak256(key))
}

// Root returns the root hash.
func (t *SecureTrie) Root() types.Hash {
	return t.trie.Root()
}

// Commit persists nodes and returns the root hash.
func (t *SecureTrie) Commit(w NodeWriter) (types.Hash, error) {
	return t.trie.Commit(w)
}
