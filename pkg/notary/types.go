// Package notary records fixed-size commitments in immutable, append-only
// ledger records. A submission is validated, checked against the configured
// authority, charged a fixed fee (unless the submitter is the authority) and
// persisted, all inside one atomic ledger transaction.
package notary

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the width of commitments, identities and slot addresses.
const KeySize = 32

// DefaultFee is one unit of native currency expressed in minor units.
const DefaultFee uint64 = 1_000_000_000

// Commitment is the opaque value being notarized, usually a hash.
type Commitment [KeySize]byte

// Identity is an authenticated principal (an ed25519 public key).
type Identity [KeySize]byte

// Address is the key of a storage slot.
type Address [KeySize]byte

func (c Commitment) String() string { return hex.EncodeToString(c[:]) }
func (i Identity) String() string   { return hex.EncodeToString(i[:]) }
func (a Address) String() string    { return hex.EncodeToString(a[:]) }

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool { return i == Identity{} }

// ParseIdentity decodes a hex-encoded identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if err := decodeKey(s, id[:]); err != nil {
		return Identity{}, fmt.Errorf("identity: %w", err)
	}
	return id, nil
}

// ParseCommitment decodes a hex-encoded 32-byte commitment.
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	if err := decodeKey(s, c[:]); err != nil {
		return Commitment{}, fmt.Errorf("commitment: %w", err)
	}
	return c, nil
}

// ParseAddress decodes a hex-encoded slot address.
func ParseAddress(s string) (Address, error) {
	var a Address
	if err := decodeKey(s, a[:]); err != nil {
		return Address{}, fmt.Errorf("address: %w", err)
	}
	return a, nil
}

func decodeKey(s string, dst []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

// Record is the persisted proof of existence.
type Record struct {
	Commitment Commitment
	Submitter  Identity
	// Timestamp is unix seconds taken from the ledger clock at commit time.
	Timestamp int64
}

// RecordHandle identifies a record by the slot that holds it.
type RecordHandle struct {
	Address Address
	Owner   Identity
	Record  Record
}

// Invocation carries the already-authenticated context of a submission.
type Invocation struct {
	Submitter        Identity
	ClaimedAuthority Identity
	Slot             Address
}

// Config is deployment-time configuration of the service.
type Config struct {
	Authority Identity
	Fee       uint64
}
