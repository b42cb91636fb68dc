//go:build property
// +build property

package notary_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/notary/pkg/ledger"
	"github.com/Mindburn-Labs/notary/pkg/notary"
)

func quietService(t *testing.T, l notary.Ledger, authority notary.Identity) *notary.Service {
	svc, err := notary.New(notary.Config{Authority: authority, Fee: notary.DefaultFee}, l,
		notary.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

// TestRecordRoundTrip verifies the fixed layout is lossless.
// Property: DecodeRecord(Marshal(r)) == r
func TestRecordRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("record encoding round-trips", prop.ForAll(
		func(c, s []byte, ts int64) bool {
			var rec notary.Record
			copy(rec.Commitment[:], c)
			copy(rec.Submitter[:], s)
			rec.Timestamp = ts
			data, err := rec.MarshalBinary()
			if err != nil || len(data) != notary.RecordSize {
				return false
			}
			got, err := notary.DecodeRecord(data)
			return err == nil && got == rec
		},
		gen.SliceOfN(32, gen.UInt8()),
		gen.SliceOfN(32, gen.UInt8()),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// TestCommitmentSizeGate verifies only 32-byte inputs pass validation.
// Property: SubmitProof fails with SizeExceeded iff len > 32
func TestCommitmentSizeGate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("oversized commitments never reach the ledger", prop.ForAll(
		func(n int) bool {
			authority := notary.Identity{1}
			l := ledger.NewMemory()
			svc := quietService(t, l, authority)
			_, err := svc.SubmitProof(context.Background(), make([]byte, n),
				notary.Invocation{Submitter: authority, ClaimedAuthority: authority, Slot: notary.Address{byte(n)}})
			switch {
			case n > notary.KeySize:
				return notary.ClassOf(err) == notary.ClassValidation
			case n < notary.KeySize:
				return notary.ClassOf(err) == notary.ClassValidation
			default:
				return err == nil
			}
		},
		gen.IntRange(0, 256),
	))

	properties.TestingRun(t)
}

// TestFeeConservation verifies fees move value without creating or destroying it.
// Property: sum(balances) is unchanged by any sequence of submissions
func TestFeeConservation(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("submissions conserve total balance", prop.ForAll(
		func(funding []uint64, payers []uint8) bool {
			ctx := context.Background()
			authority := notary.Identity{0xFF}
			l := ledger.NewMemory(ledger.WithClock(func() (time.Time, error) { return time.Unix(1, 0), nil }))
			svc := quietService(t, l, authority)

			users := make([]notary.Identity, len(funding))
			var total uint64
			for i, amount := range funding {
				users[i] = notary.Identity{byte(i), 0xAB}
				amount %= 5 * notary.DefaultFee
				if err := l.Credit(ctx, users[i], amount); err != nil {
					return false
				}
				total += amount
			}
			if len(users) == 0 {
				return true
			}

			for i, p := range payers {
				who := users[int(p)%len(users)]
				slot := notary.Address{byte(i), byte(i >> 8), 0xCD}
				_, _ = svc.SubmitProof(ctx, make([]byte, 32),
					notary.Invocation{Submitter: who, ClaimedAuthority: authority, Slot: slot})
			}

			sum, _ := l.Balance(ctx, authority)
			for _, u := range users {
				bal, _ := l.Balance(ctx, u)
				sum += bal
			}
			return sum == total
		},
		gen.SliceOfN(8, gen.UInt64()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
