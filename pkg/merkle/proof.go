package merkle

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// InclusionProof is the portable form of a proof, with hex-encoded hashes.
type InclusionProof struct {
	Value string   `json:"value"`
	Leaf  string   `json:"leaf"`
	Root  string   `json:"root"`
	Path  []string `json:"path"`
}

// InclusionProof packages the proof for the i-th value.
func (t *Tree) InclusionProof(i int) (*InclusionProof, error) {
	path, err := t.Proof(i)
	if err != nil {
		return nil, err
	}
	leaf := LeafHash(t.values[i])
	root := t.Root()
	p := &InclusionProof{
		Value: t.values[i],
		Leaf:  hex.EncodeToString(leaf[:]),
		Root:  hex.EncodeToString(root[:]),
		Path:  make([]string, len(path)),
	}
	for j, h := range path {
		p.Path[j] = hex.EncodeToString(h[:])
	}
	return p, nil
}

// Verify checks the proof against a trusted root. An empty expectedRoot
// trusts the root carried in the proof.
func (p *InclusionProof) Verify(expectedRoot string) (bool, error) {
	rootHex := p.Root
	if expectedRoot != "" {
		if !strings.EqualFold(expectedRoot, p.Root) {
			return false, nil
		}
		rootHex = expectedRoot
	}
	root, err := parseHash(rootHex)
	if err != nil {
		return false, fmt.Errorf("root: %w", err)
	}
	path := make([]Hash, len(p.Path))
	for i, s := range p.Path {
		if path[i], err = parseHash(s); err != nil {
			return false, fmt.Errorf("path[%d]: %w", i, err)
		}
	}
	return Verify(root, p.Value, path), nil
}

func parseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("hash is %d bytes, expected %d", len(raw), len(h))
	}
	copy(h[:], raw)
	return h, nil
}
