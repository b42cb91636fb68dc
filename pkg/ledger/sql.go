package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name      string
	Schema    string
	NowQuery  string
	TxOptions *sql.TxOptions

	rebind     func(query string) string
	lengthExpr string // %s = column
	substrExpr string // %s = column, %s = 1-based position, %s = length
	isConflict func(err error) bool
	isOverflow func(err error) bool
}

// SQLite is the embedded dialect. Writers are serialized by SQLite itself.
var SQLite = Dialect{
	Name: "sqlite",
	Schema: `
CREATE TABLE IF NOT EXISTS accounts (
	identity BLOB PRIMARY KEY,
	balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS slots (
	address BLOB PRIMARY KEY,
	owner BLOB NOT NULL,
	data BLOB NOT NULL
);
`,
	NowQuery:   `SELECT CAST(strftime('%s', 'now') AS INTEGER)`,
	rebind:     func(q string) string { return q },
	lengthExpr: "length(%s)",
	substrExpr: "substr(%s, %s, %s)",
	isConflict: func(err error) bool { return strings.Contains(err.Error(), "SQLITE_BUSY") },
	isOverflow: func(error) bool { return false },
}

// Postgres is the server dialect. Transactions run at READ COMMITTED: balance
// writes are relative and guarded in their WHERE clauses, and slot inserts
// rely on the primary key, so concurrent submissions to distinct slots never
// abort each other.
var Postgres = Dialect{
	Name: "postgres",
	Schema: `
CREATE TABLE IF NOT EXISTS accounts (
	identity BYTEA PRIMARY KEY,
	balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS slots (
	address BYTEA PRIMARY KEY,
	owner BYTEA NOT NULL,
	data BYTEA NOT NULL
);
CREATE INDEX IF NOT EXISTS slots_owner_idx ON slots (owner);
`,
	NowQuery:   `SELECT CAST(EXTRACT(EPOCH FROM now()) AS BIGINT)`,
	TxOptions:  &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	rebind:     rebindDollar,
	lengthExpr: "octet_length(%s)",
	substrExpr: "substring(%s from %s for %s)",
	isConflict: func(err error) bool {
		return hasPQCode(err, "40001", "40P01")
	},
	isOverflow: func(err error) bool {
		return hasPQCode(err, "22003")
	},
}

// hasPQCode reports whether err carries one of the given SQLSTATE codes.
func hasPQCode(err error, codes ...string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	for _, c := range codes {
		if string(pqErr.Code) == c {
			return true
		}
	}
	return false
}

// rebindDollar rewrites ? placeholders into $1, $2, ...
func rebindDollar(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQL implements the ledger over database/sql.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQL wraps an open database. Call Init before use on a fresh database.
func NewSQL(db *sql.DB, d Dialect) *SQL {
	return &SQL{db: db, dialect: d}
}

// OpenSQLite opens (or creates) a SQLite ledger at path. ":memory:" is
// accepted for ephemeral ledgers.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection serializes transactions and keeps :memory: alive.
	db.SetMaxOpenConns(1)
	s := NewSQL(db, SQLite)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init sqlite ledger: %w", err)
	}
	return s, nil
}

// OpenPostgres connects to PostgreSQL and ensures the schema exists.
func OpenPostgres(ctx context.Context, url string) (*SQL, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	s := NewSQL(db, Postgres)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init postgres ledger: %w", err)
	}
	return s, nil
}

// Init creates the ledger tables if they do not exist.
func (s *SQL) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Schema)
	return err
}

// DB exposes the underlying handle.
func (s *SQL) DB() *sql.DB { return s.db }

func (s *SQL) q(query string) string { return s.dialect.rebind(query) }

// Atomic runs fn inside one database transaction.
func (s *SQL) Atomic(ctx context.Context, fn func(ctx context.Context, tx notary.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ctx, &sqlTx{s: s, tx: tx}); err != nil {
		_ = tx.Rollback()
		if s.dialect.isConflict(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if s.dialect.isConflict(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Credit adds amount to id's balance.
func (s *SQL) Credit(ctx context.Context, id notary.Identity, amount uint64) error {
	return s.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
		return tx.(*sqlTx).credit(ctx, id, amount)
	})
}

func (s *SQL) Balance(ctx context.Context, id notary.Identity) (uint64, error) {
	return queryBalance(ctx, s.db, s.q(`SELECT balance FROM accounts WHERE identity = ?`), id)
}

func (s *SQL) Slot(ctx context.Context, addr notary.Address) (notary.Slot, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT address, owner, data FROM slots WHERE address = ?`), addr[:])
	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return notary.Slot{}, notary.ErrSlotNotFound
	}
	return slot, err
}

func (s *SQL) Scan(ctx context.Context, f notary.Filter) ([]notary.Slot, error) {
	var (
		conds []string
		args  []any
	)
	if f.DataSize > 0 {
		conds = append(conds, fmt.Sprintf(s.dialect.lengthExpr, "data")+" = ?")
		args = append(args, f.DataSize)
	}
	for _, m := range f.Memcmp {
		conds = append(conds, fmt.Sprintf(s.dialect.substrExpr, "data", "?", "?")+" = ?")
		args = append(args, m.Offset+1, len(m.Bytes), m.Bytes)
	}
	query := `SELECT address, owner, data FROM slots`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY address"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]notary.Slot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		// substr semantics vary by driver; re-check in Go.
		if f.Match(slot.Data) {
			result = append(result, slot)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Close closes the database.
func (s *SQL) Close() error { return s.db.Close() }

type sqlTx struct {
	s  *SQL
	tx *sql.Tx
}

func (t *sqlTx) Now(ctx context.Context) (int64, error) {
	var ts int64
	if err := t.tx.QueryRowContext(ctx, t.s.dialect.NowQuery).Scan(&ts); err != nil {
		return 0, fmt.Errorf("%w: %v", notary.ErrClock, err)
	}
	return ts, nil
}

func (t *sqlTx) Balance(ctx context.Context, id notary.Identity) (uint64, error) {
	return queryBalance(ctx, t.tx, t.s.q(`SELECT balance FROM accounts WHERE identity = ?`), id)
}

func (t *sqlTx) Transfer(ctx context.Context, from, to notary.Identity, amount uint64) error {
	if amount > math.MaxInt64 {
		return notary.ErrBalanceOverflow
	}
	if from == to {
		bal, err := t.Balance(ctx, from)
		if err != nil {
			return err
		}
		if bal < amount {
			return notary.ErrInsufficientFunds
		}
		return nil
	}
	res, err := t.tx.ExecContext(ctx,
		t.s.q(`UPDATE accounts SET balance = balance - ? WHERE identity = ? AND balance >= ?`),
		int64(amount), from[:], int64(amount))
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return notary.ErrInsufficientFunds
	}
	return t.credit(ctx, to, amount)
}

// credit adds amount to id's balance relative to the committed value, so
// concurrent credits to the same account all apply.
func (t *sqlTx) credit(ctx context.Context, id notary.Identity, amount uint64) error {
	bal, err := t.Balance(ctx, id)
	if err != nil {
		return err
	}
	if _, err := addBalance(bal, amount); err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, t.s.q(`
		INSERT INTO accounts (identity, balance) VALUES (?, ?)
		ON CONFLICT (identity) DO UPDATE SET balance = accounts.balance + excluded.balance
	`), id[:], int64(amount))
	if err != nil {
		if t.s.dialect.isOverflow(err) {
			return notary.ErrBalanceOverflow
		}
		return fmt.Errorf("credit: %w", err)
	}
	return nil
}

func (t *sqlTx) SlotExists(ctx context.Context, addr notary.Address) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, t.s.q(`SELECT 1 FROM slots WHERE address = ?`), addr[:]).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *sqlTx) CreateSlot(ctx context.Context, addr notary.Address, owner notary.Identity, data []byte) error {
	res, err := t.tx.ExecContext(ctx, t.s.q(`
		INSERT INTO slots (address, owner, data) VALUES (?, ?, ?)
		ON CONFLICT (address) DO NOTHING
	`), addr[:], owner[:], data)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return notary.ErrSlotOccupied
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryBalance(ctx context.Context, q queryRower, query string, id notary.Identity) (uint64, error) {
	var bal int64
	err := q.QueryRowContext(ctx, query, id[:]).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return uint64(bal), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (notary.Slot, error) {
	var addr, owner, data []byte
	if err := row.Scan(&addr, &owner, &data); err != nil {
		return notary.Slot{}, err
	}
	if len(addr) != notary.KeySize || len(owner) != notary.KeySize {
		return notary.Slot{}, fmt.Errorf("slot key has invalid width")
	}
	var slot notary.Slot
	copy(slot.Address[:], addr)
	copy(slot.Owner[:], owner)
	slot.Data = data
	return slot, nil
}
