package notary

import (
	"context"
	"errors"
)

// Errors returned by ledger runtimes. The service maps them onto its own
// taxonomy; they never reach callers of SubmitProof unwrapped.
var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrBalanceOverflow   = errors.New("ledger: balance overflow")
	ErrSlotOccupied      = errors.New("ledger: slot already occupied")
	ErrSlotNotFound      = errors.New("ledger: slot not found")
	ErrClock             = errors.New("ledger: clock unavailable")
)

// Tx is the view of the ledger runtime inside one atomic transaction.
type Tx interface {
	// Now returns the ledger clock in unix seconds.
	Now(ctx context.Context) (int64, error)
	Balance(ctx context.Context, id Identity) (uint64, error)
	// Transfer moves amount from one balance to another or fails without effect.
	Transfer(ctx context.Context, from, to Identity, amount uint64) error
	SlotExists(ctx context.Context, addr Address) (bool, error)
	// CreateSlot allocates addr for owner and writes data. It must fail with
	// ErrSlotOccupied rather than overwrite.
	CreateSlot(ctx context.Context, addr Address, owner Identity, data []byte) error
}

// Slot is a finalized storage slot.
type Slot struct {
	Address Address
	Owner   Identity
	Data    []byte
}

// Memcmp matches slots whose data contains Bytes at Offset.
type Memcmp struct {
	Offset int
	Bytes  []byte
}

// Filter selects slots in a scan. Zero values match everything.
type Filter struct {
	DataSize int
	Memcmp   []Memcmp
}

// Match reports whether data satisfies f.
func (f Filter) Match(data []byte) bool {
	if f.DataSize > 0 && len(data) != f.DataSize {
		return false
	}
	for _, m := range f.Memcmp {
		end := m.Offset + len(m.Bytes)
		if m.Offset < 0 || end > len(data) {
			return false
		}
		if string(data[m.Offset:end]) != string(m.Bytes) {
			return false
		}
	}
	return true
}

// Ledger is the external runtime: atomic execution plus read access.
type Ledger interface {
	// Atomic runs fn in one transaction. Either every effect of fn commits or
	// none is observable. A non-nil error from fn aborts. A runtime that
	// re-checks preconditions at commit reports a lost race with
	// ErrSlotOccupied or ErrInsufficientFunds.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Slot(ctx context.Context, addr Address) (Slot, error)
	Scan(ctx context.Context, f Filter) ([]Slot, error)
	Balance(ctx context.Context, id Identity) (uint64, error)
}
