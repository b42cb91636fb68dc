package ledger

import (
	"bytes"
	"context"
	"sort"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// overlay buffers the writes of one transaction on top of a base reader.
// Nothing reaches the base until the owner commits it. Balance changes are
// kept both as resulting values and as per-identity debit/credit totals, so
// backends can commit either form.
type overlay struct {
	balances map[notary.Identity]uint64
	debits   map[notary.Identity]uint64
	credits  map[notary.Identity]uint64
	slots    map[notary.Address]notary.Slot

	loadBalance func(ctx context.Context, id notary.Identity) (uint64, error)
	slotExists  func(ctx context.Context, addr notary.Address) (bool, error)
}

func newOverlay(
	loadBalance func(ctx context.Context, id notary.Identity) (uint64, error),
	slotExists func(ctx context.Context, addr notary.Address) (bool, error),
) *overlay {
	return &overlay{
		balances:    make(map[notary.Identity]uint64),
		debits:      make(map[notary.Identity]uint64),
		credits:     make(map[notary.Identity]uint64),
		slots:       make(map[notary.Address]notary.Slot),
		loadBalance: loadBalance,
		slotExists:  slotExists,
	}
}

func (o *overlay) Balance(ctx context.Context, id notary.Identity) (uint64, error) {
	if b, ok := o.balances[id]; ok {
		return b, nil
	}
	return o.loadBalance(ctx, id)
}

func (o *overlay) Transfer(ctx context.Context, from, to notary.Identity, amount uint64) error {
	fromBal, err := o.Balance(ctx, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return notary.ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	toBal, err := o.Balance(ctx, to)
	if err != nil {
		return err
	}
	newTo, err := addBalance(toBal, amount)
	if err != nil {
		return err
	}
	o.balances[from] = fromBal - amount
	o.balances[to] = newTo
	o.debits[from] += amount
	o.credits[to] += amount
	return nil
}

func (o *overlay) Credit(ctx context.Context, id notary.Identity, amount uint64) error {
	bal, err := o.Balance(ctx, id)
	if err != nil {
		return err
	}
	next, err := addBalance(bal, amount)
	if err != nil {
		return err
	}
	o.balances[id] = next
	o.credits[id] += amount
	return nil
}

// touched returns every identity with a pending debit or credit, in a stable
// order.
func (o *overlay) touched() []notary.Identity {
	ids := make([]notary.Identity, 0, len(o.balances))
	for id := range o.balances {
		if o.debits[id] == 0 && o.credits[id] == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

func (o *overlay) SlotExists(ctx context.Context, addr notary.Address) (bool, error) {
	if _, ok := o.slots[addr]; ok {
		return true, nil
	}
	return o.slotExists(ctx, addr)
}

func (o *overlay) CreateSlot(ctx context.Context, addr notary.Address, owner notary.Identity, data []byte) error {
	exists, err := o.SlotExists(ctx, addr)
	if err != nil {
		return err
	}
	if exists {
		return notary.ErrSlotOccupied
	}
	o.slots[addr] = notary.Slot{Address: addr, Owner: owner, Data: bytes.Clone(data)}
	return nil
}

// sortSlots orders slots by address so scans are deterministic.
func sortSlots(slots []notary.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		return bytes.Compare(slots[i].Address[:], slots[j].Address[:]) < 0
	})
}
