package notary

// Validator enforces the commitment size constraint.
type Validator struct{}

// ParseCommitment returns b as a Commitment. Representations longer than
// KeySize fail with ErrSizeExceeded, shorter ones with ErrSizeMismatch.
func (Validator) ParseCommitment(b []byte) (Commitment, error) {
	var c Commitment
	switch {
	case len(b) > KeySize:
		return c, ErrSizeExceeded.WithMessagef("commitment is %d bytes, maximum is %d", len(b), KeySize)
	case len(b) < KeySize:
		return c, ErrSizeMismatch.WithMessagef("commitment is %d bytes, expected %d", len(b), KeySize)
	}
	copy(c[:], b)
	return c, nil
}
