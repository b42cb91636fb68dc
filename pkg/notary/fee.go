package notary

import (
	"context"
	"errors"
)

// FeeExecutor moves the submission fee from submitter to authority through the
// ledger's native transfer primitive.
type FeeExecutor struct {
	Fee uint64
}

// Charge transfers the fee and returns the amount moved. The authority
// submitting for itself is exempt. Any rejection by the ledger surfaces as
// ErrTransferRejected.
func (f FeeExecutor) Charge(ctx context.Context, tx Tx, submitter, authority Identity) (uint64, error) {
	if submitter == authority || f.Fee == 0 {
		return 0, nil
	}
	if err := tx.Transfer(ctx, submitter, authority, f.Fee); err != nil {
		reason := "ledger rejected the transfer"
		if errors.Is(err, ErrInsufficientFunds) {
			reason = "submitter balance is below the fee"
		}
		return 0, ErrTransferRejected.WithMessagef("%s (fee %d)", reason, f.Fee).Wrap(err)
	}
	return f.Fee, nil
}
