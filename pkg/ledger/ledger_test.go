package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

func ident(b byte) notary.Identity {
	var id notary.Identity
	id[0] = b
	id[31] = b
	return id
}

func addr(b byte) notary.Address {
	var a notary.Address
	a[0] = b
	a[31] = ^b
	return a
}

// runtimes returns every backend that can run in this environment.
func runtimes(t *testing.T) map[string]Runtime {
	t.Helper()
	ctx := context.Background()

	out := map[string]Runtime{"memory": NewMemory()}

	lite, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })
	out["sqlite"] = lite

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	out["redis"] = NewRedis(rdb, "notary-test-"+uuid.NewString())
	return out
}

func TestRuntime_CreditAndTransfer(t *testing.T) {
	for name, rt := range runtimes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice, bob := ident(1), ident(2)

			require.NoError(t, rt.Credit(ctx, alice, 5_000))

			err := rt.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
				return tx.Transfer(ctx, alice, bob, 1_500)
			})
			require.NoError(t, err)

			bal, err := rt.Balance(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, uint64(3_500), bal)
			bal, err = rt.Balance(ctx, bob)
			require.NoError(t, err)
			assert.Equal(t, uint64(1_500), bal)
		})
	}
}

func TestRuntime_InsufficientFunds(t *testing.T) {
	for name, rt := range runtimes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice, bob := ident(3), ident(4)
			require.NoError(t, rt.Credit(ctx, alice, 10))

			err := rt.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
				return tx.Transfer(ctx, alice, bob, 11)
			})
			assert.ErrorIs(t, err, notary.ErrInsufficientFunds)

			bal, err := rt.Balance(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, uint64(10), bal)
			bal, err = rt.Balance(ctx, bob)
			require.NoError(t, err)
			assert.Zero(t, bal)
		})
	}
}

func TestRuntime_RollbackOnError(t *testing.T) {
	boom := errors.New("boom")
	for name, rt := range runtimes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice, bob := ident(5), ident(6)
			require.NoError(t, rt.Credit(ctx, alice, 100))

			err := rt.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
				if err := tx.Transfer(ctx, alice, bob, 40); err != nil {
					return err
				}
				if err := tx.CreateSlot(ctx, addr(6), bob, []byte("data")); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			bal, err := rt.Balance(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, uint64(100), bal)
			_, err = rt.Slot(ctx, addr(6))
			assert.ErrorIs(t, err, notary.ErrSlotNotFound)
		})
	}
}

func TestRuntime_SlotsAreWriteOnce(t *testing.T) {
	for name, rt := range runtimes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, owner := addr(7), ident(7)

			err := rt.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
				exists, err := tx.SlotExists(ctx, a)
				require.NoError(t, err)
				assert.False(t, exists)
				return tx.CreateSlot(ctx, a, owner, []byte("first"))
			})
			require.NoError(t, err)

			err = rt.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
				exists, err := tx.SlotExists(ctx, a)
				require.NoError(t, err)
				assert.True(t, exists)
				return tx.CreateSlot(ctx, a, ident(8), []byte("second"))
			})
			assert.ErrorIs(t, err, notary.ErrSlotOccupied)

			slot, err := rt.Slot(ctx, a)
			require.NoError(t, err)
			assert.Equal(t, owner, slot.Owner)
			assert.Equal(t, []byte("first"), slot.Data)
		})
	}
}

func TestRuntime_ClockIsCurrent(t *testing.T) {
	for name, rt := range runtimes(t) {
		t.Run(name, func(t *testing.T) {
			var ts int64
			err := rt.Atomic(context.Background(), func(ctx context.Context, tx notary.Tx) error {
				var err error
				ts, err = tx.Now(ctx)
				return err
			})
			require.NoError(t, err)
			assert.InDelta(t, time.Now().Unix(), ts, 60)
		})
	}
}

func TestRuntime_Scan(t *testing.T) {
	for name, rt := range runtimes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := rt.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
				if err := tx.CreateSlot(ctx, addr(10), ident(1), []byte{0xAA, 0x01, 0x02, 0x03}); err != nil {
					return err
				}
				if err := tx.CreateSlot(ctx, addr(11), ident(1), []byte{0xAA, 0x09, 0x02, 0x03}); err != nil {
					return err
				}
				return tx.CreateSlot(ctx, addr(12), ident(1), []byte{0xAA, 0x01})
			})
			require.NoError(t, err)

			got, err := rt.Scan(ctx, notary.Filter{
				DataSize: 4,
				Memcmp:   []notary.Memcmp{{Offset: 2, Bytes: []byte{0x02, 0x03}}},
			})
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, addr(10), got[0].Address)
			assert.Equal(t, addr(11), got[1].Address)

			got, err = rt.Scan(ctx, notary.Filter{
				Memcmp: []notary.Memcmp{{Offset: 1, Bytes: []byte{0x01}}},
			})
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, addr(10), got[0].Address)
			assert.Equal(t, addr(12), got[1].Address)
		})
	}
}

func TestRuntime_ConcurrentSubmissionsToDistinctSlots(t *testing.T) {
	for name, rt := range runtimes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			authority := ident(0xA0)
			svc, err := notary.New(notary.Config{Authority: authority, Fee: notary.DefaultFee}, rt,
				notary.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			require.NoError(t, err)

			const n = 20
			for i := 0; i < n; i++ {
				require.NoError(t, rt.Credit(ctx, ident(byte(0x40+i)), notary.DefaultFee))
			}

			var wg sync.WaitGroup
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					c := notary.Commitment(addr(byte(i)))
					_, errs[i] = svc.SubmitProof(ctx, c[:], notary.Invocation{
						Submitter:        ident(byte(0x40 + i)),
						ClaimedAuthority: authority,
						Slot:             addr(byte(0x80 + i)),
					})
				}(i)
			}
			wg.Wait()

			for i, err := range errs {
				assert.NoError(t, err, "submission %d", i)
			}
			bal, err := rt.Balance(ctx, authority)
			require.NoError(t, err)
			assert.Equal(t, uint64(n)*notary.DefaultFee, bal)
			for i := 0; i < n; i++ {
				bal, err := rt.Balance(ctx, ident(byte(0x40+i)))
				require.NoError(t, err)
				assert.Zero(t, bal, fmt.Sprintf("submitter %d", i))
			}
		})
	}
}

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, "")
}

func TestRedis_InterleavedCreditsToSameAccountBothApply(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)
	alice, bob, sink := ident(1), ident(2), ident(3)
	require.NoError(t, r.Credit(ctx, alice, 10))
	require.NoError(t, r.Credit(ctx, bob, 10))

	err := r.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
		if err := tx.Transfer(ctx, alice, sink, 4); err != nil {
			return err
		}
		// Another transaction commits to the same sink before this one does.
		if err := r.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
			if err := tx.Transfer(ctx, bob, sink, 6); err != nil {
				return err
			}
			return tx.CreateSlot(ctx, addr(2), bob, []byte("b"))
		}); err != nil {
			return err
		}
		return tx.CreateSlot(ctx, addr(1), alice, []byte("a"))
	})
	require.NoError(t, err)

	bal, err := r.Balance(ctx, sink)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), bal)
	bal, err = r.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), bal)
	bal, err = r.Balance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), bal)
}

func TestRedis_CommitRechecksSlotAndFunds(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)
	alice, sink := ident(1), ident(3)
	require.NoError(t, r.Credit(ctx, alice, 10))

	t.Run("slot taken before commit", func(t *testing.T) {
		err := r.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
			if err := tx.Transfer(ctx, alice, sink, 1); err != nil {
				return err
			}
			if err := tx.CreateSlot(ctx, addr(7), alice, []byte("mine")); err != nil {
				return err
			}
			return r.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
				return tx.CreateSlot(ctx, addr(7), sink, []byte("theirs"))
			})
		})
		assert.ErrorIs(t, err, notary.ErrSlotOccupied)

		slot, err := r.Slot(ctx, addr(7))
		require.NoError(t, err)
		assert.Equal(t, []byte("theirs"), slot.Data)
		bal, err := r.Balance(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), bal, "transfer must not apply")
	})

	t.Run("funds spent before commit", func(t *testing.T) {
		err := r.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
			if err := tx.Transfer(ctx, alice, sink, 8); err != nil {
				return err
			}
			return r.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
				return tx.Transfer(ctx, alice, sink, 5)
			})
		})
		assert.ErrorIs(t, err, notary.ErrInsufficientFunds)

		bal, err := r.Balance(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), bal)
	})
}

func TestMemory_NilClockKeepsDefault(t *testing.T) {
	m := NewMemory(WithClock(nil))
	var ts int64
	err := m.Atomic(context.Background(), func(ctx context.Context, tx notary.Tx) error {
		var err error
		ts, err = tx.Now(ctx)
		return err
	})
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Unix(), ts, 60)
}

func TestMemory_FailingClock(t *testing.T) {
	m := NewMemory(WithClock(func() (time.Time, error) {
		return time.Time{}, notary.ErrClock
	}))
	err := m.Atomic(context.Background(), func(ctx context.Context, tx notary.Tx) error {
		_, err := tx.Now(ctx)
		return err
	})
	assert.ErrorIs(t, err, notary.ErrClock)
}

func TestMemory_CancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := m.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemory_ConcurrentTransfers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	payer, sink := ident(20), ident(21)
	require.NoError(t, m.Credit(ctx, payer, 100))

	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := 0
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
				return tx.Transfer(ctx, payer, sink, 1)
			})
			if err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, failures)
	bal, _ := m.Balance(ctx, payer)
	assert.Zero(t, bal)
	bal, _ = m.Balance(ctx, sink)
	assert.Equal(t, uint64(100), bal)
}

func TestAddBalance_Overflow(t *testing.T) {
	_, err := addBalance(1<<63-1, 1)
	assert.ErrorIs(t, err, notary.ErrBalanceOverflow)

	v, err := addBalance(40, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}
