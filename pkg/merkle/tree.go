// Package merkle builds commitment roots over string values.
//
// Trees follow the OpenZeppelin StandardMerkleTree layout for a single
// "string" column: leaves are keccak256(keccak256(abi.encode(value))), pairs
// are hashed in sorted order and leaves are sorted by hash. A root built here
// matches one built by @openzeppelin/merkle-tree for the same values.
package merkle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/sha3"
)

// Hash is a 32-byte node hash.
type Hash [32]byte

// ErrEmpty is returned when building a tree without values.
var ErrEmpty = errors.New("merkle: no values")

func keccak(parts ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// abiEncodeString is the ABI encoding of a tuple holding one dynamic string.
func abiEncodeString(v string) []byte {
	padded := (len(v) + 31) / 32 * 32
	buf := make([]byte, 64+padded)
	binary.BigEndian.PutUint64(buf[24:32], 32)
	binary.BigEndian.PutUint64(buf[56:64], uint64(len(v)))
	copy(buf[64:], v)
	return buf
}

// LeafHash hashes a single value into a leaf.
func LeafHash(value string) Hash {
	inner := keccak(abiEncodeString(value))
	return keccak(inner[:])
}

func hashPair(a, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return keccak(a[:], b[:])
}

// Tree is a complete binary tree stored as an array; node i has children
// 2i+1 and 2i+2, and the root is node 0.
type Tree struct {
	nodes  []Hash
	values []string
	// treeIndex maps a value's position to its leaf node.
	treeIndex []int
}

// Build constructs a tree over values. Duplicates are allowed and produce
// distinct leaves.
func Build(values []string) (*Tree, error) {
	if len(values) == 0 {
		return nil, ErrEmpty
	}
	type leaf struct {
		hash  Hash
		value int
	}
	leaves := make([]leaf, len(values))
	for i, v := range values {
		leaves[i] = leaf{hash: LeafHash(v), value: i}
	}
	sort.SliceStable(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i].hash[:], leaves[j].hash[:]) < 0
	})

	n := len(leaves)
	t := &Tree{
		nodes:     make([]Hash, 2*n-1),
		values:    append([]string(nil), values...),
		treeIndex: make([]int, n),
	}
	for i, l := range leaves {
		idx := len(t.nodes) - 1 - i
		t.nodes[idx] = l.hash
		t.treeIndex[l.value] = idx
	}
	for i := len(t.nodes) - 1 - n; i >= 0; i-- {
		t.nodes[i] = hashPair(t.nodes[2*i+1], t.nodes[2*i+2])
	}
	return t, nil
}

// Root returns the tree root. It is the commitment that gets notarized.
func (t *Tree) Root() Hash { return t.nodes[0] }

// Len is the number of values in the tree.
func (t *Tree) Len() int { return len(t.values) }

// Value returns the i-th value in input order.
func (t *Tree) Value(i int) string { return t.values[i] }

// Proof returns the sibling path for the i-th value, leaf to root.
func (t *Tree) Proof(i int) ([]Hash, error) {
	if i < 0 || i >= len(t.values) {
		return nil, fmt.Errorf("merkle: index %d out of range [0,%d)", i, len(t.values))
	}
	var path []Hash
	for idx := t.treeIndex[i]; idx > 0; idx = (idx - 1) / 2 {
		sibling := idx + 1
		if idx%2 == 0 {
			sibling = idx - 1
		}
		path = append(path, t.nodes[sibling])
	}
	return path, nil
}

// Verify reports whether value is included under root by proof.
func Verify(root Hash, value string, proof []Hash) bool {
	h := LeafHash(value)
	for _, sib := range proof {
		h = hashPair(h, sib)
	}
	return h == root
}
