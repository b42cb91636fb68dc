// Package ledger provides ledger runtimes for the notary service: atomic
// transactions over balances and write-once storage slots, a ledger clock,
// and read access for lookups.
//
// Three backends share the same semantics:
//   - Memory: a mutex-serialized in-process ledger for development and tests.
//   - SQL: database/sql over SQLite (modernc.org/sqlite) or PostgreSQL (lib/pq).
//   - Redis: buffered transactions committed by a single Lua script over go-redis.
package ledger

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// ErrConflict is returned when the database aborted a transaction because of
// a concurrent writer (a deadlock or a busy SQLite file). Nothing was
// committed; the caller may resubmit.
var ErrConflict = errors.New("ledger: transaction conflict")

// Clock supplies the ledger time. It may fail.
type Clock func() (time.Time, error)

// SystemClock reads the local wall clock.
func SystemClock() (time.Time, error) { return time.Now(), nil }

// Crediter mints native currency into an account. It backs genesis seeding
// and the admin airdrop endpoint.
type Crediter interface {
	Credit(ctx context.Context, id notary.Identity, amount uint64) error
}

// Runtime is a full ledger backend.
type Runtime interface {
	notary.Ledger
	Crediter
	Close() error
}

func addBalance(bal, amount uint64) (uint64, error) {
	if amount > math.MaxInt64 || bal > math.MaxInt64-amount {
		return 0, notary.ErrBalanceOverflow
	}
	return bal + amount, nil
}
