package qualify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultSNSURL     = "https://sns-api.bonfida.com"
	defaultSNSTimeout = 10 * time.Second
)

// SNSClient looks up Solana Name Service domains owned by a wallet.
type SNSClient struct {
	baseURL string
	http    *http.Client
}

// SNSOption configures SNSClient.
type SNSOption func(*SNSClient)

// WithSNSBaseURL overrides the API endpoint, used by tests.
func WithSNSBaseURL(u string) SNSOption {
	return func(c *SNSClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithSNSHTTPClient sets a custom http.Client.
func WithSNSHTTPClient(h *http.Client) SNSOption {
	return func(c *SNSClient) {
		c.http = h
	}
}

// NewSNSClient creates a name service client.
func NewSNSClient(opts ...SNSOption) *SNSClient {
	c := &SNSClient{
		baseURL: defaultSNSURL,
		http:    &http.Client{Timeout: defaultSNSTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Domains returns the domain names owned by the wallet, without the
// .sol suffix. An owner with no domains yields an empty slice.
func (c *SNSClient) Domains(ctx context.Context, owner string) ([]string, error) {
	endpoint := c.baseURL + "/owners/" + url.PathEscape(owner) + "/domains"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create domains request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("domains request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read domains response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("domains lookup for %s returned status %d", owner, resp.StatusCode)
	}

	var parsed struct {
		Result []string `json:"result"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal domains response: %w", err)
	}
	return parsed.Result, nil
}

// HasDomain reports whether the wallet owns at least one domain.
func (c *SNSClient) HasDomain(ctx context.Context, owner string) (bool, error) {
	domains, err := c.Domains(ctx, owner)
	if err != nil {
		return false, err
	}
	return len(domains) > 0, nil
}
