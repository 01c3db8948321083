// Package swap quotes and executes token swaps through the Jupiter
// aggregator API.
package swap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SOLMint is the wrapped SOL mint address used as the quote currency.
const SOLMint = "So11111111111111111111111111111111111111112"

// DefaultSlippageBps is the slippage tolerance applied to every quote.
const DefaultSlippageBps = 50

const (
	defaultQuoteURL = "https://quote-api.jup.ag/v6"
	defaultTimeout  = 15 * time.Second
)

// ErrNoRoute indicates the aggregator found no route for the pair.
// Callers must not retry the same parameters; the route table will not
// change between immediate retries.
var ErrNoRoute = errors.New("no swap route available")

// Quote is the aggregator's answer for a single swap direction.
type Quote struct {
	InputMint   string
	OutputMint  string
	InAmount    uint64
	OutAmount   uint64
	SlippageBps int

	// raw is the untouched quote body, passed back verbatim when
	// building the swap transaction.
	raw json.RawMessage
}

// Client calls the Jupiter v6 quote and swap endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the aggregator endpoint, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a Jupiter API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultQuoteURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type quoteResponse struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	Error      string `json:"error"`
	ErrorCode  string `json:"errorCode"`
}

// GetQuote asks for the best route swapping amount (raw base units) of
// inputMint into outputMint.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read quote response: %w", err)
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}

	if parsed.Error != "" || resp.StatusCode != http.StatusOK {
		if isNoRoute(resp.StatusCode, parsed) {
			return nil, fmt.Errorf("%s -> %s: %w", inputMint, outputMint, ErrNoRoute)
		}
		return nil, fmt.Errorf("quote failed (status %d): %s", resp.StatusCode, parsed.Error)
	}

	inAmount, err := strconv.ParseUint(parsed.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse inAmount %q: %w", parsed.InAmount, err)
	}
	outAmount, err := strconv.ParseUint(parsed.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse outAmount %q: %w", parsed.OutAmount, err)
	}

	return &Quote{
		InputMint:   parsed.InputMint,
		OutputMint:  parsed.OutputMint,
		InAmount:    inAmount,
		OutAmount:   outAmount,
		SlippageBps: slippageBps,
		raw:         body,
	}, nil
}

// isNoRoute distinguishes "no route for this pair" from transport and
// server failures. Jupiter signals it with a 400 and an error message
// mentioning the route.
func isNoRoute(status int, resp quoteResponse) bool {
	if resp.ErrorCode == "COULD_NOT_FIND_ANY_ROUTE" {
		return true
	}
	if status == http.StatusBadRequest || status == http.StatusOK {
		msg := strings.ToLower(resp.Error)
		return strings.Contains(msg, "no route") || strings.Contains(msg, "route")
	}
	return false
}

// BuildSwapTransaction exchanges a quote for an unsigned, base64-encoded
// transaction with userPublicKey as the fee payer.
func (c *Client) BuildSwapTransaction(ctx context.Context, quote *Quote, userPublicKey string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"quoteResponse":             json.RawMessage(quote.raw),
		"userPublicKey":             userPublicKey,
		"wrapAndUnwrapSol":          true,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": "auto",
	})
	if err != nil {
		return "", fmt.Errorf("marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("create swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("swap request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read swap response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("swap build failed (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal swap response: %w", err)
	}
	if parsed.SwapTransaction == "" {
		return "", fmt.Errorf("swap response missing transaction")
	}

	return parsed.SwapTransaction, nil
}
