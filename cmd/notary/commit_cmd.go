package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/notary/pkg/merkle"
)

// runCommitCmd prints the Merkle root of its arguments, or with --proof the
// inclusion proof of one of them.
func runCommitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("commit", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	proof := cmd.Int("proof", -1, "Print the inclusion proof for the value at this index")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: notary commit [--proof N] <value>...")
		return 2
	}

	tree, err := merkle.Build(cmd.Args())
	if err != nil {
		return fail(stderr, err)
	}
	if *proof < 0 {
		root := tree.Root()
		_, _ = fmt.Fprintln(stdout, hex.EncodeToString(root[:]))
		return 0
	}
	p, err := tree.InclusionProof(*proof)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	printJSON(stdout, p)
	return 0
}
