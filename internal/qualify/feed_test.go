package qualify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"solana-sniper-bot/internal/swap"
)

func TestPoolFeed_FetchNewSOLPairs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pools/info/list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"success": true,
			"data": {
				"data": [
					{
						"id": "pool1",
						"mintA": {"address": "` + swap.SOLMint + `", "symbol": "WSOL", "decimals": 9},
						"mintB": {"address": "MintX", "symbol": "XTK", "decimals": 6},
						"tvl": 12500.5,
						"openTime": "1704067200",
						"day": {"volume": 9000}
					},
					{
						"id": "pool2",
						"mintA": {"address": "MintY", "symbol": "YTK", "decimals": 8},
						"mintB": {"address": "` + swap.SOLMint + `", "symbol": "WSOL", "decimals": 9},
						"tvl": 300,
						"openTime": "0",
						"day": {"volume": 10}
					},
					{
						"id": "pool3",
						"mintA": {"address": "MintU", "symbol": "UTK", "decimals": 6},
						"mintB": {"address": "MintV", "symbol": "VTK", "decimals": 6},
						"tvl": 999,
						"openTime": "0",
						"day": {"volume": 5}
					}
				]
			}
		}`))
	}))
	defer server.Close()

	feed := NewPoolFeed(WithFeedBaseURL(server.URL))
	pairs, err := feed.FetchNewSOLPairs(context.Background())
	if err != nil {
		t.Fatalf("FetchNewSOLPairs: %v", err)
	}

	// pool3 has no SOL side and must be dropped.
	if len(pairs) != 2 {
		t.Fatalf("expected 2 SOL pairs, got %d", len(pairs))
	}

	first := pairs[0]
	if first.PoolID != "pool1" || first.Mint != "MintX" || first.Symbol != "XTK" {
		t.Errorf("unexpected first pair: %+v", first)
	}
	if first.Decimals != 6 || first.Liquidity != 12500.5 || first.Volume24h != 9000 {
		t.Errorf("unexpected first pair details: %+v", first)
	}
	if first.OpenTime != 1704067200 {
		t.Errorf("unexpected open time: %d", first.OpenTime)
	}

	// The token side is picked whichever side SOL is on.
	if pairs[1].Mint != "MintY" || pairs[1].Decimals != 8 {
		t.Errorf("unexpected second pair: %+v", pairs[1])
	}
}

func TestPoolFeed_FailureResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false}`))
	}))
	defer server.Close()

	feed := NewPoolFeed(WithFeedBaseURL(server.URL))
	if _, err := feed.FetchNewSOLPairs(context.Background()); err == nil {
		t.Error("expected error for unsuccessful response")
	}
}
