package trie

import (
	"errors"

	"github.com/evmcore/evmcore/rlp"
)

var errMalformedNode = errors.New("trie: malformed node encoding")

// decodeNode parses a node body back into its in-memory form. Child
// references are kept as hashNodes (resolved lazily); embedded sub-32-byte
// children are decoded in place.
func decodeNode(enc []byte) (node, error) {
	s := rlp.NewStreamBytes(enc)
	return decodeNodeStream(s)
}

func decodeNodeStream(s *rlp.Stream) (node, error) {
	if _, err := s.List(); err != nil {
		return nil, err
	}
	// Count the items by reading raw entries.
	var items []rlp.RawValue
	for s.MoreDataInList() {
		item, err := s.Raw()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}

	switch len(items) {
	case 2:
		return decodeShort(items[0], items[1])
	case 17:
		return decodeFull(items)
	default:
		return nil, errMalformedNode
	}
}

func decodeShort(keyItem, valItem rlp.RawValue) (node, error) {
	var compact []byte
	if err := rlp.DecodeBytes(keyItem, &compact); err != nil {
		return nil, err
	}
	key := compactToHex(compact)
	n := &shortNode{Key: key}
	if hasTerminator(key) {
		var val []byte
		if err := rlp.DecodeBytes(valItem, &val); err != nil {
			return nil, err
		}
		n.Val = valueNode(val)
		return n, nil
	}
	child, err := decodeRef(valItem)
	if err != nil {
		return nil, err
	}
	n.Val = child
	return n, nil
}

func decodeFull(items []rlp.RawValue) (node, error) {
	n := &fullNode{}
	for i := 0; i < 16; i++ {
		child, err := decodeRef(items[i])
		if err != nil {
			return nil, err
		}
		n.Children[i] = child
	}
	var val []byte
	if err := rlp.DecodeBytes(items[16], &val); err != nil {
		return nil, err
	}
	if len(val) > 0 {
		n.Children[16] = valueNode(val)
	}
	return n, nil
}

// decodeRef parses a child reference: an empty string is nil, a 32-byte
// string is a hash reference, and an embedded list is decoded inline.
func decodeRef(item rlp.RawValue) (node, error) {
	if len(item) == 0 {
		return nil, errMalformedNode
	}
	if item[0] >= 0xc0 {
		// Embedded node (encoding shorter than 32 bytes).
		return decodeNode(item)
	}
	var b []byte
	if err := rlp.DecodeBytes(item, &b); err != nil {
		return nil, err
	}
	switch len(b) {
	case 0:
		return nil, nil
	case 32:
		return hashNode(b), nil
	default:
		return nil, errMalformedNode
	}
}
