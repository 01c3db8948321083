package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"solana-sniper-bot/internal/observability"
)

// rpcHandler builds a JSON-RPC test server returning canned results per method.
func rpcHandler(t *testing.T, results map[string]string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		result, ok := results[req.Method]
		if !ok {
			t.Errorf("unexpected method %s", req.Method)
			return
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  json.RawMessage(result),
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestHTTPClient_GetTransactionTokenBalances(t *testing.T) {
	txResult := `{
		"slot": 12345,
		"blockTime": 1704067200,
		"meta": {
			"err": null,
			"logMessages": ["Program log: Instruction: Transfer"],
			"preTokenBalances": [
				{"accountIndex": 1, "mint": "MintX", "owner": "OwnerA",
				 "uiTokenAmount": {"uiAmount": 1000.5, "decimals": 6}}
			],
			"postTokenBalances": [
				{"accountIndex": 1, "mint": "MintX", "owner": "OwnerA",
				 "uiTokenAmount": {"uiAmount": null, "decimals": 6}}
			]
		},
		"transaction": {"message": {"accountKeys": ["k1", "k2"]}}
	}`

	server := httptest.NewServer(rpcHandler(t, map[string]string{
		"getTransaction": txResult,
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "sig1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx == nil {
		t.Fatal("expected transaction, got nil")
	}

	if tx.Meta.Failed() {
		t.Error("transaction should not be failed")
	}
	if len(tx.Meta.PreTokenBalances) != 1 {
		t.Fatalf("expected 1 pre balance, got %d", len(tx.Meta.PreTokenBalances))
	}

	pre := tx.Meta.PreTokenBalances[0]
	if pre.Mint != "MintX" || pre.Owner != "OwnerA" || pre.UIAmount != 1000.5 {
		t.Errorf("unexpected pre balance: %+v", pre)
	}

	// Null uiAmount (emptied account) decodes as zero.
	post := tx.Meta.PostTokenBalances[0]
	if post.UIAmount != 0 {
		t.Errorf("expected zero post balance, got %v", post.UIAmount)
	}
}

func TestHTTPClient_GetTransactionNotFound(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]string{
		"getTransaction": `null`,
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil for missing transaction, got %+v", tx)
	}
}

func TestHTTPClient_RetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": json.RawMessage(`"sig99"`),
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(3))
	client.retryDelay = 10 * time.Millisecond

	sig, err := client.SendTransaction(context.Background(), "dGVzdA==")
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "sig99" {
		t.Errorf("expected sig99, got %s", sig)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID,
			"error": map[string]interface{}{"code": -32602, "message": "invalid params"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.GetTransaction(context.Background(), "bad")
	if err == nil {
		t.Fatal("expected RPC error")
	}
	if calls.Load() != 1 {
		t.Errorf("RPC errors must not retry: got %d attempts", calls.Load())
	}
}

func TestHTTPClient_GetTokenLargestAccounts(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]string{
		"getTokenLargestAccounts": `{
			"value": [
				{"address": "acc1", "amount": "1000000", "decimals": 6, "uiAmount": 1.0},
				{"address": "acc2", "amount": "500000", "decimals": 6, "uiAmount": 0.5}
			]
		}`,
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	accounts, err := client.GetTokenLargestAccounts(context.Background(), "MintX")
	if err != nil {
		t.Fatalf("GetTokenLargestAccounts: %v", err)
	}

	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Address != "acc1" || accounts[0].UIAmount != 1.0 {
		t.Errorf("unexpected first account: %+v", accounts[0])
	}
}

func TestHTTPClient_GetTokenAccountOwner(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]string{
		"getAccountInfo": `{
			"value": {
				"data": {"parsed": {"info": {"owner": "WalletXYZ"}}}
			}
		}`,
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	owner, err := client.GetTokenAccountOwner(context.Background(), "acc1")
	if err != nil {
		t.Fatalf("GetTokenAccountOwner: %v", err)
	}
	if owner != "WalletXYZ" {
		t.Errorf("expected WalletXYZ, got %s", owner)
	}
}

func TestHTTPClient_ConfirmTransaction(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		// Pending on the first poll, confirmed on the second.
		status := `{"value": [null]}`
		if calls.Add(1) >= 2 {
			status = `{"value": [{"confirmationStatus": "confirmed", "err": null}]}`
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": json.RawMessage(status),
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	confirmed, err := client.ConfirmTransaction(ctx, "sig1")
	if err != nil {
		t.Fatalf("ConfirmTransaction: %v", err)
	}
	if !confirmed {
		t.Error("expected confirmed")
	}
	if calls.Load() < 2 {
		t.Errorf("expected at least 2 polls, got %d", calls.Load())
	}
}

func TestHTTPClient_RecordsCallLatency(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]string{
		"getTokenLargestAccounts": `{"value": []}`,
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	if _, err := client.GetTokenLargestAccounts(context.Background(), "MintX"); err != nil {
		t.Fatalf("GetTokenLargestAccounts: %v", err)
	}

	n := testutil.CollectAndCount(observability.DefaultMetrics.RPCCallLatency,
		"sniper_solana_rpc_call_latency_seconds")
	if n == 0 {
		t.Error("expected a latency observation for the RPC call")
	}
}
