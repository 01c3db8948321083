// Package qualify finds newly listed SOL pairs and decides which are
// worth buying by checking whether any large holder owns a domain name.
package qualify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/swap"
)

const (
	defaultFeedURL     = "https://api-v3.raydium.io"
	defaultFeedTimeout = 15 * time.Second
	defaultPageSize    = 100
)

// PoolFeed lists recently opened pools from the Raydium v3 API.
type PoolFeed struct {
	baseURL  string
	http     *http.Client
	pageSize int
}

// FeedOption configures PoolFeed.
type FeedOption func(*PoolFeed)

// WithFeedBaseURL overrides the API endpoint, used by tests.
func WithFeedBaseURL(u string) FeedOption {
	return func(f *PoolFeed) {
		f.baseURL = strings.TrimRight(u, "/")
	}
}

// WithFeedHTTPClient sets a custom http.Client.
func WithFeedHTTPClient(h *http.Client) FeedOption {
	return func(f *PoolFeed) {
		f.http = h
	}
}

// NewPoolFeed creates a pool feed client.
func NewPoolFeed(opts ...FeedOption) *PoolFeed {
	f := &PoolFeed{
		baseURL:  defaultFeedURL,
		http:     &http.Client{Timeout: defaultFeedTimeout},
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type feedMint struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type feedPool struct {
	ID       string   `json:"id"`
	MintA    feedMint `json:"mintA"`
	MintB    feedMint `json:"mintB"`
	TVL      float64  `json:"tvl"`
	OpenTime string   `json:"openTime"`
	Day      struct {
		Volume float64 `json:"volume"`
	} `json:"day"`
}

type feedResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Data []feedPool `json:"data"`
	} `json:"data"`
}

// FetchNewSOLPairs returns the newest standard pools that trade against
// SOL, newest first. Pools not involving SOL are dropped.
func (f *PoolFeed) FetchNewSOLPairs(ctx context.Context) ([]domain.PairInfo, error) {
	q := url.Values{}
	q.Set("poolType", "standard")
	q.Set("poolSortField", "default")
	q.Set("sortType", "desc")
	q.Set("pageSize", strconv.Itoa(f.pageSize))
	q.Set("page", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/pools/info/list?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var parsed feedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal feed response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("feed reported failure")
	}

	var pairs []domain.PairInfo
	for _, pool := range parsed.Data.Data {
		var token feedMint
		switch swap.SOLMint {
		case pool.MintA.Address:
			token = pool.MintB
		case pool.MintB.Address:
			token = pool.MintA
		default:
			continue
		}

		openTime, _ := strconv.ParseInt(pool.OpenTime, 10, 64)
		pairs = append(pairs, domain.PairInfo{
			PoolID:    pool.ID,
			Mint:      token.Address,
			Symbol:    token.Symbol,
			Decimals:  token.Decimals,
			Liquidity: pool.TVL,
			Volume24h: pool.Day.Volume,
			OpenTime:  openTime,
		})
	}
	return pairs, nil
}
