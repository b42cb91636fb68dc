package notary

import (
	"context"
	"errors"
	"fmt"
)

// RecordStore allocates and writes records. Creation is strictly additive:
// there is no update or delete path.
type RecordStore struct{}

// EnsureVacant fails with ErrAlreadyExists if addr already holds a slot.
func (RecordStore) EnsureVacant(ctx context.Context, tx Tx, addr Address) error {
	exists, err := tx.SlotExists(ctx, addr)
	if err != nil {
		return fmt.Errorf("check slot %s: %w", addr, err)
	}
	if exists {
		return ErrAlreadyExists.WithMessagef("slot %s is already allocated", addr)
	}
	return nil
}

// Create allocates addr for owner and finalizes it with the encoded record.
func (s RecordStore) Create(ctx context.Context, tx Tx, addr Address, owner Identity, rec Record) error {
	if err := s.EnsureVacant(ctx, tx, addr); err != nil {
		return err
	}
	data, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := tx.CreateSlot(ctx, addr, owner, data); err != nil {
		if errors.Is(err, ErrSlotOccupied) {
			return ErrAlreadyExists.WithMessagef("slot %s is already allocated", addr).Wrap(err)
		}
		return fmt.Errorf("allocate slot %s: %w", addr, err)
	}
	return nil
}
