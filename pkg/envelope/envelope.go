// Package envelope authenticates proof submissions before they reach the
// notary core. A submission is a JSON payload signed by the submitter and
// co-signed by the holder of the fresh slot key, so nobody can claim a slot
// address they do not control.
package envelope

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// Domain prefixes the canonical payload before signing.
const Domain = "notary.invocation.v1:"

var (
	ErrMalformed    = errors.New("envelope: malformed invocation")
	ErrBadSignature = errors.New("envelope: signature verification failed")
)

// Payload is the signed content of a submission. Keys and the commitment are
// hex-encoded. The commitment is not length-checked here; that is the core's
// job.
type Payload struct {
	Commitment string `json:"commitment"`
	Authority  string `json:"authority"`
	Slot       string `json:"slot"`
	Submitter  string `json:"submitter"`
	Nonce      string `json:"nonce"`
}

// SignedInvocation is the wire form accepted by the API.
type SignedInvocation struct {
	Payload      Payload `json:"payload"`
	SubmitterSig string  `json:"submitter_sig"`
	SlotSig      string  `json:"slot_sig"`
}

// CanonicalBytes returns the RFC 8785 form of p with the domain prefix.
func (p Payload) CanonicalBytes() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("envelope: canonicalize payload: %w", err)
	}
	return append([]byte(Domain), canonical...), nil
}

// Sign builds a SignedInvocation with a fresh nonce. The slot address is the
// slot key's public key.
func Sign(commitment []byte, authority notary.Identity, submitter, slotKey *Signer) (*SignedInvocation, error) {
	p := Payload{
		Commitment: hex.EncodeToString(commitment),
		Authority:  authority.String(),
		Slot:       slotKey.Identity().String(),
		Submitter:  submitter.Identity().String(),
		Nonce:      uuid.NewString(),
	}
	msg, err := p.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	return &SignedInvocation{
		Payload:      p,
		SubmitterSig: submitter.Sign(msg),
		SlotSig:      slotKey.Sign(msg),
	}, nil
}

// Verify checks both signatures and returns the raw commitment bytes together
// with the authenticated invocation context.
func (s *SignedInvocation) Verify() ([]byte, notary.Invocation, error) {
	var inv notary.Invocation
	p := s.Payload

	commitment, err := hex.DecodeString(strings.TrimPrefix(p.Commitment, "0x"))
	if err != nil {
		return nil, inv, fmt.Errorf("%w: commitment: %v", ErrMalformed, err)
	}
	if inv.Submitter, err = notary.ParseIdentity(p.Submitter); err != nil {
		return nil, inv, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if inv.ClaimedAuthority, err = notary.ParseIdentity(p.Authority); err != nil {
		return nil, inv, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if inv.Slot, err = notary.ParseAddress(p.Slot); err != nil {
		return nil, inv, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Nonce == "" {
		return nil, inv, fmt.Errorf("%w: missing nonce", ErrMalformed)
	}

	msg, err := p.CanonicalBytes()
	if err != nil {
		return nil, inv, err
	}
	if err := verify(inv.Submitter[:], s.SubmitterSig, msg); err != nil {
		return nil, inv, fmt.Errorf("submitter: %w", err)
	}
	if err := verify(inv.Slot[:], s.SlotSig, msg); err != nil {
		return nil, inv, fmt.Errorf("slot key: %w", err)
	}
	return commitment, inv, nil
}

func verify(pub []byte, sigHex string, msg []byte) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: invalid signature encoding", ErrBadSignature)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return ErrBadSignature
	}
	return nil
}
