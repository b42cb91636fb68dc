// Package client provides a typed Go client for the notary HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/api"
	"github.com/Mindburn-Labs/notary/pkg/envelope"
	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	Status int
	Title  string
	Detail string
	// Code is the notary error code, when the failure came from the core.
	Code string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notary api %d: %s (%s)", e.Status, e.Detail, e.Code)
	}
	return fmt.Sprintf("notary api %d: %s: %s", e.Status, e.Title, e.Detail)
}

// Is lets callers match API failures against notary error values.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*notary.Error)
	return ok && e.Code != "" && t.Code == e.Code
}

// Client is a typed client for the notary API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New creates a new Client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token used for admin calls.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, headers ...string) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var problem api.ProblemDetail
		if err := json.NewDecoder(resp.Body).Decode(&problem); err == nil {
			return &APIError{Status: resp.StatusCode, Title: problem.Title, Detail: problem.Detail, Code: problem.Code}
		}
		return &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode), Detail: "unreadable error body"}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Config calls GET /v1/config.
func (c *Client) Config(ctx context.Context) (*api.ConfigView, error) {
	var out api.ConfigView
	if err := c.do(ctx, http.MethodGet, "/v1/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit calls POST /v1/proofs. The invocation's nonce doubles as the
// idempotency key so a retried request replays the original response.
func (c *Client) Submit(ctx context.Context, si *envelope.SignedInvocation) (*api.RecordView, error) {
	var out api.RecordView
	if err := c.do(ctx, http.MethodPost, "/v1/proofs", si, &out, "Idempotency-Key", si.Payload.Nonce); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notarize signs commitment with a fresh slot key and submits it.
func (c *Client) Notarize(ctx context.Context, commitment []byte, submitter *envelope.Signer) (*api.RecordView, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	authority, err := notary.ParseIdentity(cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("server authority: %w", err)
	}
	slot, err := envelope.NewSigner()
	if err != nil {
		return nil, err
	}
	si, err := envelope.Sign(commitment, authority, submitter, slot)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, si)
}

// Get calls GET /v1/proofs/{address}.
func (c *Client) Get(ctx context.Context, addr notary.Address) (*api.RecordView, error) {
	var out api.RecordView
	if err := c.do(ctx, http.MethodGet, "/v1/proofs/"+addr.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByCommitment calls GET /v1/proofs?commitment=.
func (c *Client) FindByCommitment(ctx context.Context, commitment notary.Commitment) ([]api.RecordView, error) {
	return c.find(ctx, "commitment", commitment.String())
}

// FindBySubmitter calls GET /v1/proofs?submitter=.
func (c *Client) FindBySubmitter(ctx context.Context, id notary.Identity) ([]api.RecordView, error) {
	return c.find(ctx, "submitter", id.String())
}

func (c *Client) find(ctx context.Context, key, value string) ([]api.RecordView, error) {
	var out api.RecordList
	q := url.Values{key: {value}}
	if err := c.do(ctx, http.MethodGet, "/v1/proofs?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Balance calls GET /v1/accounts/{identity}/balance.
func (c *Client) Balance(ctx context.Context, id notary.Identity) (uint64, error) {
	var out api.BalanceView
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+id.String()+"/balance", nil, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

// Airdrop calls POST /v1/admin/airdrop and returns the new balance. It needs
// an admin token.
func (c *Client) Airdrop(ctx context.Context, id notary.Identity, amount uint64) (uint64, error) {
	var out api.BalanceView
	req := api.AirdropRequest{Identity: id.String(), Amount: amount}
	if err := c.do(ctx, http.MethodPost, "/v1/admin/airdrop", req, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}
