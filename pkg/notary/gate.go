package notary

import "crypto/subtle"

// Gate compares a claimed authority against the configured one. Signature
// verification of the caller happens in the ledger runtime, not here.
type Gate struct {
	Authority Identity
}

// Check fails with ErrInvalidAuthority unless claimed equals the configured
// authority byte for byte.
func (g Gate) Check(claimed Identity) error {
	if subtle.ConstantTimeCompare(claimed[:], g.Authority[:]) != 1 {
		return ErrInvalidAuthority.WithMessagef("claimed authority %s is not the configured authority", claimed)
	}
	return nil
}
