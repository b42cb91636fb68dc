package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/notary/pkg/archive"
	"github.com/Mindburn-Labs/notary/pkg/config"
	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// runGenesisCmd seeds the configured ledger from a genesis file. Run it once
// per persistent ledger.
func runGenesisCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("genesis", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	file := cmd.String("file", "", "Genesis YAML (default NOTARY_GENESIS_FILE)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	path := *file
	if path == "" {
		path = cfg.GenesisFile
	}
	if path == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file or NOTARY_GENESIS_FILE is required")
		return 2
	}
	if cfg.Ledger.Kind == config.LedgerMemory {
		_, _ = fmt.Fprintln(stderr, "Error: the memory ledger is seeded by `notary serve` itself")
		return 2
	}

	ctx := context.Background()
	rt, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = rt.Close() }()
	if err := applyGenesis(ctx, path, rt); err != nil {
		return fail(stderr, err)
	}
	_, _ = fmt.Fprintf(stdout, "genesis applied to %s ledger\n", cfg.Ledger.Kind)
	return 0
}

func archiveConfig(cfg config.ArchiveConfig) archive.Config {
	return archive.Config{
		Kind:     archive.Kind(cfg.Kind),
		Dir:      cfg.Dir,
		Bucket:   cfg.Bucket,
		Region:   cfg.Region,
		Endpoint: cfg.Endpoint,
		Prefix:   cfg.Prefix,
	}
}

// runExportCmd archives every record in the configured ledger.
//
// Exit codes:
//
//	0 = export completed
//	1 = runtime error
//	2 = usage or configuration error
func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	dir := cmd.String("dir", "", "Local archive directory (overrides NOTARY_ARCHIVE_DIR)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if *dir != "" {
		cfg.Archive.Kind = string(archive.KindLocal)
		cfg.Archive.Dir = *dir
	}
	svcCfg, err := cfg.Service()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	logger := cfg.NewLogger(stderr)
	rt, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = rt.Close() }()

	svc, err := notary.New(svcCfg, rt, notary.WithLogger(logger))
	if err != nil {
		return fail(stderr, err)
	}
	store, err := archive.Open(ctx, archiveConfig(cfg.Archive))
	if err != nil {
		return fail(stderr, err)
	}
	if c, ok := store.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	res, err := archive.NewExporter(store, logger.With("component", "archive")).Export(ctx, svc)
	if err != nil {
		return fail(stderr, err)
	}
	_, _ = fmt.Fprintf(stdout, "exported %d records (%d already archived)\n", res.Written, res.Skipped)
	return 0
}
