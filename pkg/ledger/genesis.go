package ledger

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// Genesis is the initial balance allocation applied when a ledger starts.
//
//	accounts:
//	  - identity: 9f1c...e2
//	    balance: 5000000000
type Genesis struct {
	Accounts []GenesisAccount `yaml:"accounts"`
}

// GenesisAccount funds one identity.
type GenesisAccount struct {
	Identity string `yaml:"identity"`
	Balance  uint64 `yaml:"balance"`
}

// LoadGenesis reads a genesis file from disk.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return ParseGenesis(data)
}

// ParseGenesis decodes and validates a YAML genesis document.
func ParseGenesis(data []byte) (*Genesis, error) {
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	for i, acct := range g.Accounts {
		if _, err := notary.ParseIdentity(acct.Identity); err != nil {
			return nil, fmt.Errorf("genesis account %d: %w", i, err)
		}
	}
	return &g, nil
}

// Apply credits every account. It is not idempotent; apply it once per
// fresh ledger.
func (g *Genesis) Apply(ctx context.Context, c Crediter) error {
	for i, acct := range g.Accounts {
		id, err := notary.ParseIdentity(acct.Identity)
		if err != nil {
			return fmt.Errorf("genesis account %d: %w", i, err)
		}
		if acct.Balance == 0 {
			continue
		}
		if err := c.Credit(ctx, id, acct.Balance); err != nil {
			return fmt.Errorf("genesis account %s: %w", id, err)
		}
	}
	return nil
}
