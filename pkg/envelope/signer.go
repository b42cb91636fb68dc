package envelope

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// Signer holds an ed25519 keypair. Its public key doubles as a notary
// identity or a slot address.
type Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
}

func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Signer{privKey: priv, pubKey: pub}, nil
}

func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{privKey: priv, pubKey: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign returns the hex-encoded signature of data.
func (s *Signer) Sign(data []byte) string {
	return hex.EncodeToString(ed25519.Sign(s.privKey, data))
}

func (s *Signer) Identity() notary.Identity {
	var id notary.Identity
	copy(id[:], s.pubKey)
	return id
}

// Seed returns the 32-byte private seed.
func (s *Signer) Seed() []byte { return s.privKey.Seed() }

// SaveKeyFile writes the hex seed to path with owner-only permissions.
func (s *Signer) SaveKeyFile(path string) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(s.Seed())+"\n"), 0o600)
}

// LoadKeyFile reads a key written by SaveKeyFile.
func LoadKeyFile(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", path, err)
	}
	return NewSignerFromSeed(seed)
}
