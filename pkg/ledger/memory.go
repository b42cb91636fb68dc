package ledger

import (
	"bytes"
	"context"
	"sync"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// Memory is an in-process ledger. Transactions are serialized by a single
// mutex, which makes them trivially serializable.
type Memory struct {
	mu       sync.Mutex
	balances map[notary.Identity]uint64
	slots    map[notary.Address]notary.Slot
	clock    Clock
}

// MemoryOption configures a Memory ledger.
type MemoryOption func(*Memory)

// WithClock replaces the ledger clock. A nil clock is ignored.
func WithClock(c Clock) MemoryOption {
	return func(m *Memory) {
		if c != nil {
			m.clock = c
		}
	}
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		balances: make(map[notary.Identity]uint64),
		slots:    make(map[notary.Address]notary.Slot),
		clock:    SystemClock,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type memoryTx struct {
	*overlay
	clock Clock
}

func (t *memoryTx) Now(ctx context.Context) (int64, error) {
	now, err := t.clock()
	if err != nil {
		return 0, err
	}
	return now.Unix(), nil
}

// Atomic runs fn under the ledger lock and commits its buffered writes only
// if fn succeeds.
func (m *Memory) Atomic(ctx context.Context, fn func(ctx context.Context, tx notary.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		overlay: newOverlay(
			func(_ context.Context, id notary.Identity) (uint64, error) { return m.balances[id], nil },
			func(_ context.Context, addr notary.Address) (bool, error) {
				_, ok := m.slots[addr]
				return ok, nil
			},
		),
		clock: m.clock,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.commit(tx.overlay)
	return nil
}

func (m *Memory) commit(o *overlay) {
	for id, bal := range o.balances {
		m.balances[id] = bal
	}
	for addr, slot := range o.slots {
		m.slots[addr] = slot
	}
}

// Credit adds amount to id's balance.
func (m *Memory) Credit(ctx context.Context, id notary.Identity, amount uint64) error {
	return m.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
		return tx.(*memoryTx).Credit(ctx, id, amount)
	})
}

func (m *Memory) Balance(ctx context.Context, id notary.Identity) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[id], nil
}

func (m *Memory) Slot(ctx context.Context, addr notary.Address) (notary.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[addr]
	if !ok {
		return notary.Slot{}, notary.ErrSlotNotFound
	}
	// return copy to avoid mutation outside lock
	slot.Data = bytes.Clone(slot.Data)
	return slot, nil
}

func (m *Memory) Scan(ctx context.Context, f notary.Filter) ([]notary.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notary.Slot
	for _, slot := range m.slots {
		if f.Match(slot.Data) {
			slot.Data = bytes.Clone(slot.Data)
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
