package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// RecordSource lists records to export. *notary.Service satisfies it.
type RecordSource interface {
	Records(ctx context.Context) ([]notary.RecordHandle, error)
}

// Key is the blob key of the record held at addr.
func Key(addr notary.Address) string {
	return "records/" + addr.String() + ".bin"
}

// Result summarizes one export run.
type Result struct {
	Written int
	Skipped int
}

// Exporter copies records into a BlobStore in their 80-byte ledger encoding.
type Exporter struct {
	store  BlobStore
	logger *slog.Logger
}

func NewExporter(store BlobStore, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default().With("component", "archive")
	}
	return &Exporter{store: store, logger: logger}
}

// Export writes every record from src. Records already archived are left
// untouched, so repeated runs only add new ones.
func (e *Exporter) Export(ctx context.Context, src RecordSource) (Result, error) {
	var res Result
	records, err := src.Records(ctx)
	if err != nil {
		return res, fmt.Errorf("archive: list records: %w", err)
	}
	for _, h := range records {
		data, err := h.Record.MarshalBinary()
		if err != nil {
			return res, err
		}
		written, err := e.store.Put(ctx, Key(h.Address), data)
		if err != nil {
			return res, fmt.Errorf("archive: export %s: %w", h.Address, err)
		}
		if written {
			res.Written++
		} else {
			res.Skipped++
		}
	}
	e.logger.InfoContext(ctx, "export complete", "written", res.Written, "skipped", res.Skipped)
	return res, nil
}

// Load reads an archived record back.
func Load(ctx context.Context, store BlobStore, addr notary.Address) (notary.Record, error) {
	data, err := store.Get(ctx, Key(addr))
	if err != nil {
		return notary.Record{}, err
	}
	return notary.DecodeRecord(data)
}
