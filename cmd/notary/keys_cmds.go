package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/auth"
	"github.com/Mindburn-Labs/notary/pkg/envelope"
)

func runKeygenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	out := cmd.String("out", "notary.key", "Seed file to write")
	force := cmd.Bool("force", false, "Overwrite an existing file")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		_, _ = fmt.Fprintf(stderr, "Error: %s exists (use --force to overwrite)\n", *out)
		return 2
	}

	s, err := envelope.NewSigner()
	if err != nil {
		return fail(stderr, err)
	}
	if err := s.SaveKeyFile(*out); err != nil {
		return fail(stderr, err)
	}
	_, _ = fmt.Fprintln(stdout, s.Identity())
	return 0
}

func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("token", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	subject := cmd.String("subject", "operator", "Token subject")
	ttl := cmd.Duration("ttl", time.Hour, "Token lifetime")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	secret := os.Getenv("NOTARY_ADMIN_JWT_SECRET")
	if secret == "" {
		_, _ = fmt.Fprintln(stderr, "Error: NOTARY_ADMIN_JWT_SECRET is not set")
		return 2
	}

	tok, err := auth.IssueToken(secret, *subject, []string{auth.RoleAdmin}, *ttl)
	if err != nil {
		return fail(stderr, err)
	}
	_, _ = fmt.Fprintln(stdout, tok)
	return 0
}
