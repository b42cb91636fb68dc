package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/client"
	"github.com/Mindburn-Labs/notary/pkg/envelope"
	"github.com/Mindburn-Labs/notary/pkg/merkle"
	"github.com/Mindburn-Labs/notary/pkg/notary"
)

const defaultServer = "http://localhost:8080"

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// clientFlags registers the connection flags shared by client commands.
func clientFlags(cmd *flag.FlagSet) (server *string, timeout *time.Duration) {
	server = cmd.String("server", envOr("NOTARY_SERVER", defaultServer), "Notary API base URL (env NOTARY_SERVER)")
	timeout = cmd.Duration("timeout", 30*time.Second, "Request timeout")
	return server, timeout
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(stderr io.Writer, err error) int {
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func runSubmitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("submit", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	server, timeout := clientFlags(cmd)
	keyFile := cmd.String("key", "", "Submitter key seed file (REQUIRED)")
	commitHex := cmd.String("commitment", "", "Hex commitment; omit to notarize the Merkle root of the arguments")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *keyFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --key is required")
		return 2
	}

	var commitment []byte
	switch {
	case *commitHex != "" && cmd.NArg() > 0:
		_, _ = fmt.Fprintln(stderr, "Error: pass either --commitment or values, not both")
		return 2
	case *commitHex != "":
		raw, err := hex.DecodeString(*commitHex)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: --commitment: %v\n", err)
			return 2
		}
		commitment = raw
	case cmd.NArg() > 0:
		tree, err := merkle.Build(cmd.Args())
		if err != nil {
			return fail(stderr, err)
		}
		root := tree.Root()
		commitment = root[:]
	default:
		_, _ = fmt.Fprintln(stderr, "Error: nothing to notarize")
		return 2
	}

	signer, err := envelope.LoadKeyFile(*keyFile)
	if err != nil {
		return fail(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	rec, err := client.New(*server).Notarize(ctx, commitment, signer)
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, rec)
	return 0
}

func runGetCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("get", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	server, timeout := clientFlags(cmd)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: notary get [flags] <address>")
		return 2
	}
	addr, err := notary.ParseAddress(cmd.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	rec, err := client.New(*server).Get(ctx, addr)
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, rec)
	return 0
}

func runFindCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("find", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	server, timeout := clientFlags(cmd)
	byCommitment := cmd.String("commitment", "", "Hex commitment to look up")
	bySubmitter := cmd.String("submitter", "", "Hex submitter identity to look up")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if (*byCommitment == "") == (*bySubmitter == "") {
		_, _ = fmt.Fprintln(stderr, "Error: specify exactly one of --commitment or --submitter")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c := client.New(*server)

	var (
		recs any
		err  error
	)
	if *byCommitment != "" {
		commitment, perr := notary.ParseCommitment(*byCommitment)
		if perr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", perr)
			return 2
		}
		recs, err = c.FindByCommitment(ctx, commitment)
	} else {
		id, perr := notary.ParseIdentity(*bySubmitter)
		if perr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", perr)
			return 2
		}
		recs, err = c.FindBySubmitter(ctx, id)
	}
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, recs)
	return 0
}

func runBalanceCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("balance", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	server, timeout := clientFlags(cmd)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: notary balance [flags] <identity>")
		return 2
	}
	id, err := notary.ParseIdentity(cmd.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	bal, err := client.New(*server).Balance(ctx, id)
	if err != nil {
		return fail(stderr, err)
	}
	_, _ = fmt.Fprintln(stdout, bal)
	return 0
}

func runAirdropCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("airdrop", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	server, timeout := clientFlags(cmd)
	token := cmd.String("token", os.Getenv("NOTARY_ADMIN_TOKEN"), "Admin bearer token (env NOTARY_ADMIN_TOKEN)")
	amount := cmd.Uint64("amount", notary.DefaultFee, "Minor units to credit")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: notary airdrop [flags] <identity>")
		return 2
	}
	id, err := notary.ParseIdentity(cmd.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	bal, err := client.New(*server, client.WithToken(*token)).Airdrop(ctx, id, *amount)
	if err != nil {
		return fail(stderr, err)
	}
	_, _ = fmt.Fprintln(stdout, bal)
	return 0
}
