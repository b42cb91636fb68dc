package notary

import (
	"crypto/sha256"
	"encoding/binary"
)

// Record layout offsets. All fields are fixed width; integers are little-endian.
const (
	TagSize          = 8
	TimestampSize    = 8
	RecordSize       = TagSize + TimestampSize + KeySize + KeySize
	OffsetTag        = 0
	OffsetTime       = OffsetTag + TagSize
	OffsetSubmitter  = OffsetTime + TimestampSize
	OffsetCommitment = OffsetSubmitter + KeySize
)

// RecordTag prefixes every encoded record so slots of other kinds are never
// mistaken for records.
var RecordTag = func() [TagSize]byte {
	sum := sha256.Sum256([]byte("account:Record"))
	var tag [TagSize]byte
	copy(tag[:], sum[:TagSize])
	return tag
}()

// MarshalBinary encodes r into its fixed RecordSize layout.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	copy(buf[OffsetTag:], RecordTag[:])
	binary.LittleEndian.PutUint64(buf[OffsetTime:], uint64(r.Timestamp))
	copy(buf[OffsetSubmitter:], r.Submitter[:])
	copy(buf[OffsetCommitment:], r.Commitment[:])
	return buf, nil
}

// UnmarshalBinary decodes a slot's data. It rejects data of the wrong size or
// carrying a different type tag.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return ErrCorruptRecord.WithMessagef("record is %d bytes, expected %d", len(data), RecordSize)
	}
	if string(data[OffsetTag:OffsetTag+TagSize]) != string(RecordTag[:]) {
		return ErrCorruptRecord.WithMessage("type tag mismatch")
	}
	r.Timestamp = int64(binary.LittleEndian.Uint64(data[OffsetTime:]))
	copy(r.Submitter[:], data[OffsetSubmitter:OffsetSubmitter+KeySize])
	copy(r.Commitment[:], data[OffsetCommitment:OffsetCommitment+KeySize])
	return nil
}

// DecodeRecord is a convenience wrapper around UnmarshalBinary.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	err := r.UnmarshalBinary(data)
	return r, err
}
