package notary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
)

// Tracker instruments an operation from start to finish. The returned
// function must be called with the operation's outcome.
type Tracker interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}

type nopTracker struct{}

func (nopTracker) TrackOperation(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracker sets the operation tracker (spans and RED metrics).
func WithTracker(t Tracker) Option {
	return func(s *Service) {
		if t != nil {
			s.tracker = t
		}
	}
}

// Service executes proof submissions against a ledger runtime.
type Service struct {
	cfg       Config
	ledger    Ledger
	validator Validator
	gate      Gate
	fees      FeeExecutor
	store     RecordStore
	logger    *slog.Logger
	tracker   Tracker
}

// New creates a Service. The authority must be set.
func New(cfg Config, ledger Ledger, opts ...Option) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("notary: ledger is required")
	}
	if cfg.Authority.IsZero() {
		return nil, errors.New("notary: authority is required")
	}
	s := &Service{
		cfg:     cfg,
		ledger:  ledger,
		gate:    Gate{Authority: cfg.Authority},
		fees:    FeeExecutor{Fee: cfg.Fee},
		logger:  slog.Default().With("component", "notary"),
		tracker: nopTracker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// SubmitProof records commitment in the slot named by inv. Validation and the
// authority check run before the ledger transaction is opened; fee transfer
// and slot allocation commit together or not at all.
func (s *Service) SubmitProof(ctx context.Context, commitment []byte, inv Invocation) (handle *RecordHandle, err error) {
	ctx, done := s.tracker.TrackOperation(ctx, "notary.submit_proof",
		attribute.String("notary.slot", inv.Slot.String()),
		attribute.Bool("notary.self_submit", inv.Submitter == s.cfg.Authority),
	)
	defer func() {
		done(err)
		if err != nil {
			s.logger.WarnContext(ctx, "proof rejected",
				"slot", inv.Slot.String(),
				"submitter", inv.Submitter.String(),
				"class", ClassOf(err),
				"error", err,
			)
		}
	}()

	c, err := s.validator.ParseCommitment(commitment)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Check(inv.ClaimedAuthority); err != nil {
		return nil, err
	}

	var (
		rec     Record
		charged uint64
	)
	err = s.ledger.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		ts, err := tx.Now(ctx)
		if err != nil {
			return ErrClockUnavailable.Wrap(err)
		}
		// A doomed allocation must not cost the submitter anything.
		if err := s.store.EnsureVacant(ctx, tx, inv.Slot); err != nil {
			return err
		}
		charged, err = s.fees.Charge(ctx, tx, inv.Submitter, s.cfg.Authority)
		if err != nil {
			return err
		}
		rec = Record{Commitment: c, Submitter: inv.Submitter, Timestamp: ts}
		return s.store.Create(ctx, tx, inv.Slot, inv.Submitter, rec)
	})
	if err != nil {
		return nil, classifyCommit(err, inv.Slot)
	}

	s.logger.InfoContext(ctx, "proof recorded",
		"slot", inv.Slot.String(),
		"submitter", inv.Submitter.String(),
		"commitment", c.String(),
		"timestamp", rec.Timestamp,
		"fee", charged,
	)
	return &RecordHandle{Address: inv.Slot, Owner: inv.Submitter, Record: rec}, nil
}

// GetRecord reads the record held by addr.
func (s *Service) GetRecord(ctx context.Context, addr Address) (*RecordHandle, error) {
	slot, err := s.ledger.Slot(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrNotFound.WithMessagef("no record at %s", addr)
		}
		return nil, fmt.Errorf("notary: read slot %s: %w", addr, err)
	}
	rec, err := DecodeRecord(slot.Data)
	if err != nil {
		return nil, err
	}
	return &RecordHandle{Address: slot.Address, Owner: slot.Owner, Record: rec}, nil
}

// FindByCommitment returns every record notarizing c.
func (s *Service) FindByCommitment(ctx context.Context, c Commitment) ([]RecordHandle, error) {
	return s.find(ctx, Memcmp{Offset: OffsetCommitment, Bytes: c[:]})
}

// FindBySubmitter returns every record submitted by id.
func (s *Service) FindBySubmitter(ctx context.Context, id Identity) ([]RecordHandle, error) {
	return s.find(ctx, Memcmp{Offset: OffsetSubmitter, Bytes: id[:]})
}

// Records returns every record held by the ledger.
func (s *Service) Records(ctx context.Context) ([]RecordHandle, error) {
	return s.find(ctx)
}

func (s *Service) find(ctx context.Context, extra ...Memcmp) ([]RecordHandle, error) {
	slots, err := s.ledger.Scan(ctx, Filter{
		DataSize: RecordSize,
		Memcmp:   append([]Memcmp{{Offset: OffsetTag, Bytes: RecordTag[:]}}, extra...),
	})
	if err != nil {
		return nil, fmt.Errorf("notary: scan: %w", err)
	}
	out := make([]RecordHandle, 0, len(slots))
	for _, slot := range slots {
		rec, err := DecodeRecord(slot.Data)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable slot", "slot", slot.Address.String(), "error", err)
			continue
		}
		out = append(out, RecordHandle{Address: slot.Address, Owner: slot.Owner, Record: rec})
	}
	return out, nil
}

// Balance returns the ledger balance of id.
func (s *Service) Balance(ctx context.Context, id Identity) (uint64, error) {
	return s.ledger.Balance(ctx, id)
}

// classifyCommit maps a failed transaction onto the error taxonomy. Runtimes
// that re-check preconditions at commit report them with their own
// sentinels.
func classifyCommit(err error, slot Address) error {
	var nerr *Error
	switch {
	case errors.As(err, &nerr):
		return err
	case errors.Is(err, ErrSlotOccupied):
		return ErrAlreadyExists.WithMessagef("slot %s is already allocated", slot).Wrap(err)
	case errors.Is(err, ErrInsufficientFunds):
		return ErrTransferRejected.WithMessage("submitter balance is below the fee").Wrap(err)
	case errors.Is(err, ErrBalanceOverflow):
		return ErrTransferRejected.WithMessage("ledger rejected the transfer").Wrap(err)
	default:
		return fmt.Errorf("notary: ledger transaction: %w", err)
	}
}
