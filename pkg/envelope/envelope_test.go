package envelope_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/gowebpki/jcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/notary/pkg/envelope"
	"github.com/Mindburn-Labs/notary/pkg/notary"
)

func keys(t *testing.T) (authority, submitter, slot *envelope.Signer) {
	t.Helper()
	var err error
	authority, err = envelope.NewSigner()
	require.NoError(t, err)
	submitter, err = envelope.NewSigner()
	require.NoError(t, err)
	slot, err = envelope.NewSigner()
	require.NoError(t, err)
	return
}

func TestSignVerify(t *testing.T) {
	authority, submitter, slot := keys(t)
	root := sha256.Sum256([]byte("merkle root"))

	si, err := envelope.Sign(root[:], authority.Identity(), submitter, slot)
	require.NoError(t, err)

	commitment, inv, err := si.Verify()
	require.NoError(t, err)
	assert.Equal(t, root[:], commitment)
	assert.Equal(t, submitter.Identity(), inv.Submitter)
	assert.Equal(t, authority.Identity(), inv.ClaimedAuthority)
	assert.Equal(t, notary.Address(slot.Identity()), inv.Slot)
}

func TestVerify_RejectsTampering(t *testing.T) {
	authority, submitter, slot := keys(t)
	root := sha256.Sum256([]byte("doc"))

	t.Run("commitment swapped", func(t *testing.T) {
		si, err := envelope.Sign(root[:], authority.Identity(), submitter, slot)
		require.NoError(t, err)
		other := sha256.Sum256([]byte("other"))
		si.Payload.Commitment = notary.Commitment(other).String()
		_, _, err = si.Verify()
		assert.ErrorIs(t, err, envelope.ErrBadSignature)
	})

	t.Run("slot signature missing", func(t *testing.T) {
		si, err := envelope.Sign(root[:], authority.Identity(), submitter, slot)
		require.NoError(t, err)
		si.SlotSig = ""
		_, _, err = si.Verify()
		assert.ErrorIs(t, err, envelope.ErrBadSignature)
	})

	t.Run("slot claimed without its key", func(t *testing.T) {
		si, err := envelope.Sign(root[:], authority.Identity(), submitter, submitter)
		require.NoError(t, err)
		si.Payload.Slot = slot.Identity().String()
		_, _, err = si.Verify()
		assert.ErrorIs(t, err, envelope.ErrBadSignature)
	})

	t.Run("malformed submitter", func(t *testing.T) {
		si, err := envelope.Sign(root[:], authority.Identity(), submitter, slot)
		require.NoError(t, err)
		si.Payload.Submitter = "xyz"
		_, _, err = si.Verify()
		assert.ErrorIs(t, err, envelope.ErrMalformed)
	})
}

func TestVerify_OversizedCommitmentPassesThrough(t *testing.T) {
	authority, submitter, slot := keys(t)
	big := bytes.Repeat([]byte{7}, 40)

	si, err := envelope.Sign(big, authority.Identity(), submitter, slot)
	require.NoError(t, err)
	commitment, _, err := si.Verify()
	require.NoError(t, err)
	assert.Len(t, commitment, 40)
}

func TestVerify_SignedTimestampDoesNotSurvive(t *testing.T) {
	authority, submitter, slot := keys(t)
	root := sha256.Sum256([]byte("backdated"))

	// Both keys sign a payload that carries a caller-chosen timestamp.
	payload := map[string]any{
		"commitment": hex.EncodeToString(root[:]),
		"authority":  authority.Identity().String(),
		"slot":       slot.Identity().String(),
		"submitter":  submitter.Identity().String(),
		"nonce":      "n-1",
		"timestamp":  1,
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	canonical, err := jcs.Transform(raw)
	require.NoError(t, err)
	msg := append([]byte(envelope.Domain), canonical...)

	wire, err := json.Marshal(map[string]any{
		"payload":       payload,
		"submitter_sig": submitter.Sign(msg),
		"slot_sig":      slot.Sign(msg),
	})
	require.NoError(t, err)

	var si envelope.SignedInvocation
	require.NoError(t, json.Unmarshal(wire, &si))
	own, err := si.Payload.CanonicalBytes()
	require.NoError(t, err)
	assert.NotContains(t, string(own), "timestamp")

	_, _, err = si.Verify()
	assert.ErrorIs(t, err, envelope.ErrBadSignature)
}

func TestCanonicalBytes_IsStable(t *testing.T) {
	p := envelope.Payload{Submitter: "b", Authority: "a", Slot: "c", Commitment: "d", Nonce: "n"}
	got, err := p.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t,
		envelope.Domain+`{"authority":"a","commitment":"d","nonce":"n","slot":"c","submitter":"b"}`,
		string(got))
}

func TestKeyFile_RoundTrip(t *testing.T) {
	s, err := envelope.NewSigner()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.key")
	require.NoError(t, s.SaveKeyFile(path))

	loaded, err := envelope.LoadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, s.Identity(), loaded.Identity())

	_, err = envelope.NewSignerFromSeed([]byte("short"))
	assert.Error(t, err)
}
