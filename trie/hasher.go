package trie

import (
	"github.com/evmcore/evmcore/crypto"
	"github.com/evmcore/evmcore/rlp"
)

// nodeEncoded returns the RLP encoding of a node with child references
// collapsed: any child whose encoding is 32 bytes or longer is replaced
// by its keccak hash, per the Yellow Paper node composition rule.
func nodeEncoded(n node, collector func(hash, enc []byte)) []byte {
	switch n := n.(type) {
	case nil:
		return []byte{0x80}
	case valueNode:
		return rlp.EncodeBytes(n)
	case hashNode:
		return rlp.EncodeBytes(n)
	case *shortNode:
		var payload []byte
		payload = append(payload, rlp.EncodeBytes(hexToCompact(n.Key))...)
		if hasTerminator(n.Key) {
			// Leaf: value is a string.
			if v, ok := n.Val.(valueNode); ok {
				payload = append(payload, rlp.EncodeBytes(v)...)
			} else {
				payload = append(payload, 0x80)
			}
		} else {
			payload = append(payload, childRef(n.Val, collector)...)
		}
		return rlp.WrapList(payload)
	case *fullNode:
		var payload []byte
		for i := 0; i < 16; i++ {
			payload = append(payload, childRef(n.Children[i], collector)...)
		}
		if v, ok := n.Children[16].(valueNode); ok {
			payload = append(payload, rlp.EncodeBytes(v)...)
		} else {
			payload = append(payload, 0x80)
		}
		return rlp.WrapList(payload)
	default:
		return []byte{0x80}
	}
}

// childRef produces the in-parent reference for a child node: the child's
// encoding when shorter than 32 bytes, otherwise its hash. When a
// collector is supplied, every hashed node is reported to it so Commit
// can persist the node bodies.
func childRef(child node, collector func(hash, enc []byte)) []byte {
	switch child := child.(type) {
	case nil:
		return []byte{0x80}
	case hashNode:
		return rlp.EncodeBytes(child)
	default:
		enc := nodeEncoded(child, collector)
		if len(enc) < 32 {
			return enc
		}
		hash := crypto.Keccak256(enc)
		if collector != nil {
			collector(hash, enc)
		}
		return rlp.EncodeBytes(hash)
	}
}

// hashRoot returns the root hash of n: keccak of the encoding, with the
// sub-32-byte root case also hashed (the root is always hashed).
func hashRoot(n node, collector func(hash, enc []byte)) []byte {
	enc := nodeEncoded(n, collector)
	hash := crypto.Keccak256(enc)
	if collector != nil {
		collector(hash, enc)
	}
	return hash
}
