package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"solana-sniper-bot/internal/domain"
)

type nopHandler struct{}

func (nopHandler) HandleSellTrigger(ctx context.Context, sell domain.SellEvent) error {
	return nil
}

func TestMonitor_StopsWhenContextCanceled(t *testing.T) {
	serverSawClose := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		reqID, _ := readSubscribe(t, conn)
		confirmSubscribe(t, conn, reqID, 7)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(serverSawClose)
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(wsURL, staticWatchSource("MintX"), NewSellTriggerDetector(&stubRPC{}, nil), nopHandler{}, nil, fastConfig())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !m.Status().Connected {
		time.Sleep(5 * time.Millisecond)
	}
	if !m.Status().Connected {
		t.Fatal("monitor never connected")
	}

	cancel()

	select {
	case <-serverSawClose:
	case <-time.After(2 * time.Second):
		t.Fatal("connection stayed open after the start context was canceled")
	}
}

func TestMonitor_DoubleStartFails(t *testing.T) {
	m := New("ws://127.0.0.1:1", staticWatchSource(), NewSellTriggerDetector(&stubRPC{}, nil), nopHandler{}, nil, fastConfig())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start should fail while running")
	}
}
