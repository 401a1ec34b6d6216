// Package aggregator is the HTTP client for the custody aggregator API.
// It backs every remote collaborator in the engine: address status and
// name resolution for the builder, emulation and submission for the
// gate, status lookup for the tracker, plus the read-only market
// endpoints.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
	"github.com/ggonzalez94/custody-cli/internal/gate"
	"github.com/ggonzalez94/custody-cli/internal/httpx"
	"github.com/ggonzalez94/custody-cli/internal/id"
	"github.com/ggonzalez94/custody-cli/internal/op"
	"github.com/ggonzalez94/custody-cli/internal/tracker"
)

// Client talks to one aggregator deployment. Reads retry with backoff;
// submissions never do.
type Client struct {
	baseURL  string
	apiKey   string
	http     *httpx.Client
	submitHC *httpx.Client
}

func New(baseURL, apiKey string, timeout time.Duration, retries int) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     httpx.New(timeout, retries),
		submitHC: httpx.NoRetry(timeout),
	}
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

type accountResponse struct {
	Address  string `json:"address"`
	Status   string `json:"status"`
	Balance  string `json:"balance"`
	Deployed bool   `json:"deployed"`
}

// AddressStatus implements the builder's deployment lookup. Statuses the
// aggregator does not recognize come back as unknown, which the bounce
// policy treats the same as uninitialized.
func (c *Client) AddressStatus(ctx context.Context, address string) (id.AddressStatus, error) {
	var resp accountResponse
	_, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, c.endpoint("/v1/accounts/"+url.PathEscape(address)), nil, c.headers(), &resp)
	if err != nil {
		return id.AddressUnknown, err
	}
	switch resp.Status {
	case "active":
		return id.AddressActive, nil
	case "uninitialized":
		return id.AddressUninitialized, nil
	default:
		return id.AddressUnknown, nil
	}
}

// WalletState fetches the sending wallet's deployment and balance for
// the builder.
func (c *Client) WalletState(ctx context.Context, address string) (op.WalletState, error) {
	var resp accountResponse
	_, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, c.endpoint("/v1/accounts/"+url.PathEscape(address)), nil, c.headers(), &resp)
	if err != nil {
		return op.WalletState{}, err
	}
	state := op.WalletState{Address: address, Deployed: resp.Deployed}
	if resp.Balance != "" {
		balance, ok := new(big.Int).SetString(resp.Balance, 10)
		if !ok {
			return op.WalletState{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("aggregator returned unparseable balance %q", resp.Balance))
		}
		state.Balance = balance
	}
	return state, nil
}

// ResolveName resolves a domain reference to its wallet address.
func (c *Client) ResolveName(ctx context.Context, name string) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	_, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, c.endpoint("/v1/names/"+url.PathEscape(name)), nil, c.headers(), &resp)
	if err != nil {
		return "", err
	}
	if resp.Address == "" {
		return "", clierr.New(clierr.CodeNotFound, fmt.Sprintf("domain %s has no registered address", name))
	}
	return resp.Address, nil
}

// Emulate dry-runs an envelope server-side.
func (c *Client) Emulate(ctx context.Context, envelope op.MessageEnvelope) (gate.EmulationReport, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return gate.EmulationReport{}, clierr.Wrap(clierr.CodeInternal, "encode envelope", err)
	}
	var report gate.EmulationReport
	_, err = httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.endpoint("/v1/emulate"), body, c.headers(), &report)
	if err != nil {
		return gate.EmulationReport{}, err
	}
	return report, nil
}

// Submit broadcasts a signed envelope. Single attempt: the idempotency
// key travels in a header so the server can drop an accidental
// duplicate, but the client never replays on its own.
func (c *Client) Submit(ctx context.Context, signed op.SignedEnvelope) (string, error) {
	body, err := json.Marshal(signed)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode signed envelope", err)
	}
	headers := map[string]string{"Idempotency-Key": signed.IdempotencyKey}
	for k, v := range c.headers() {
		headers[k] = v
	}
	var resp struct {
		QueryID string `json:"query_id"`
	}
	_, err = httpx.DoBodyJSON(ctx, c.submitHC, http.MethodPost, c.endpoint("/v1/messages"), body, headers, &resp)
	if err != nil {
		return "", err
	}
	return resp.QueryID, nil
}

// OperationStatus implements the tracker's remote lookup.
func (c *Client) OperationStatus(ctx context.Context, queryID string) (tracker.Status, *tracker.Result, error) {
	var resp struct {
		Status      string `json:"status"`
		TxHash      string `json:"tx_hash"`
		FeeUnits    string `json:"fee_units"`
		Description string `json:"description"`
	}
	_, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, c.endpoint("/v1/operations/"+url.PathEscape(queryID)), nil, c.headers(), &resp)
	if err != nil {
		if clierr.Is(err, clierr.CodeRemoteRejected) {
			// The aggregator has not indexed the token yet; keep polling.
			return tracker.StatusPending, nil, nil
		}
		return tracker.StatusPending, nil, err
	}

	var result *tracker.Result
	if resp.TxHash != "" || resp.FeeUnits != "" || resp.Description != "" {
		result = &tracker.Result{TxHash: resp.TxHash, FeeUnits: resp.FeeUnits, Description: resp.Description}
	}
	switch resp.Status {
	case "pending":
		return tracker.StatusPending, result, nil
	case "broadcast":
		return tracker.StatusBroadcast, result, nil
	case "confirmed":
		return tracker.StatusConfirmed, result, nil
	case "failed":
		return tracker.StatusFailed, result, nil
	case "expired":
		return tracker.StatusExpired, result, nil
	default:
		return tracker.StatusPending, result, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("aggregator returned unknown operation status %q", resp.Status))
	}
}

// Pool is a liquidity pool listing.
type Pool struct {
	Address string `json:"address"`
	TokenA  string `json:"token_a"`
	TokenB  string `json:"token_b"`
	TVL     string `json:"tvl,omitempty"`
	Volume  string `json:"volume_24h,omitempty"`
}

func (c *Client) Pools(ctx context.Context, token string, limit int) ([]Pool, error) {
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var resp struct {
		Pools []Pool `json:"pools"`
	}
	_, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, c.endpoint("/v1/pools?"+q.Encode()), nil, c.headers(), &resp)
	if err != nil {
		return nil, err
	}
	return resp.Pools, nil
}

// Token is a token listing from the aggregator's registry.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	Verified bool   `json:"verified"`
}

func (c *Client) Tokens(ctx context.Context, query string, limit int) ([]Token, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var resp struct {
		Tokens []Token `json:"tokens"`
	}
	_, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, c.endpoint("/v1/tokens?"+q.Encode()), nil, c.headers(), &resp)
	if err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// Quote is an indicative swap price, no commitment.
type Quote struct {
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	Route     string `json:"route,omitempty"`
	PriceImp  string `json:"price_impact,omitempty"`
}

func (c *Client) Quote(ctx context.Context, tokenIn, tokenOut, amountIn string) (Quote, error) {
	q := url.Values{}
	q.Set("token_in", tokenIn)
	q.Set("token_out", tokenOut)
	q.Set("amount_in", amountIn)
	var quote Quote
	_, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, c.endpoint("/v1/quote?"+q.Encode()), nil, c.headers(), &quote)
	if err != nil {
		return Quote{}, err
	}
	return quote, nil
}
