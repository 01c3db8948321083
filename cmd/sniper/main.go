// Package main runs the sniper: it qualifies newly listed SOL pairs by
// their holders' domain ownership, buys them, watches on-chain activity
// for holder exits, and liquidates each position in two halves.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/exits"
	"solana-sniper-bot/internal/monitor"
	"solana-sniper-bot/internal/observability"
	"solana-sniper-bot/internal/qualify"
	"solana-sniper-bot/internal/solana"
	"solana-sniper-bot/internal/storage"
	chstore "solana-sniper-bot/internal/storage/clickhouse"
	"solana-sniper-bot/internal/storage/memory"
	"solana-sniper-bot/internal/storage/migrations"
	pgstore "solana-sniper-bot/internal/storage/postgres"
	"solana-sniper-bot/internal/swap"
	"solana-sniper-bot/internal/wallet"
)

// Server wires all components behind the HTTP control surface.
type Server struct {
	logger *log.Logger
	// ctx is the process lifetime; restarts via the control surface must
	// not inherit a request context.
	ctx context.Context

	positions storage.PositionStore
	tradeLog  storage.TradeLogStore

	monitor    *monitor.Monitor
	qualifier  *qualify.Qualifier
	controller *exits.Controller
	opener     *qualify.PositionOpener
	holders    *qualify.HolderInspector
	sns        *qualify.SNSClient

	wallet    string
	startedAt time.Time
}

func main() {
	// .env values become defaults; real env vars win.
	godotenv.Load()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional, disables trade archive when empty)")
	walletKey := flag.String("wallet-key", os.Getenv("WALLET_SECRET_KEY"), "Base58 wallet secret key")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	buyLamports := flag.Uint64("buy-lamports", 100_000_000, "SOL spent per buy, in lamports")
	feedInterval := flag.Duration("feed-interval", qualify.DefaultPollInterval, "Pool feed poll interval")
	priceInterval := flag.Duration("price-interval", exits.DefaultPollInterval, "Price poll interval after the first sell")
	maxWatch := flag.Duration("max-watch", 0, "Bound on each price watch (0 = watch until target)")
	autoStart := flag.Bool("auto-start", true, "Start the qualifier and monitor on boot")
	httpAddr := flag.String("http-addr", ":8080", "Control and metrics HTTP address")

	flag.Parse()

	logger := log.New(os.Stdout, "[sniper] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if *walletKey == "" {
		logger.Fatal("--wallet-key is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signer, err := wallet.FromBase58Secret(*walletKey)
	if err != nil {
		logger.Fatalf("Failed to load wallet: %v", err)
	}
	logger.Printf("Wallet: %s", signer.PublicKey())

	positions, tradeLog, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	quotes := swap.NewClient()
	executor := swap.NewExecutor(quotes, rpc, signer, log.New(os.Stdout, "[swap] ", log.LstdFlags))

	server := &Server{
		logger:    logger,
		ctx:       ctx,
		positions: positions,
		tradeLog:  tradeLog,
		holders:   qualify.NewHolderInspector(rpc),
		sns:       qualify.NewSNSClient(),
		wallet:    signer.PublicKey(),
		startedAt: time.Now(),
	}

	// Watch set: every position still holding tokens.
	watchSource := func(ctx context.Context) ([]string, error) {
		mints := make(map[string]bool)
		for _, filter := range []storage.PositionFilter{storage.FirstSellPending, storage.SecondSellPending} {
			open, err := positions.ListOpen(ctx, filter)
			if err != nil {
				return nil, err
			}
			for _, pos := range open {
				mints[pos.Mint] = true
			}
		}
		list := make([]string, 0, len(mints))
		for mint := range mints {
			list = append(list, mint)
		}
		return list, nil
	}

	exitOpts := []exits.ControllerOption{exits.WithPollInterval(*priceInterval)}
	if *maxWatch > 0 {
		exitOpts = append(exitOpts, exits.WithMaxWatchDuration(*maxWatch))
	}
	server.controller = exits.NewController(positions, tradeLog, executor,
		exits.QuoterPrice(quotes), &lazyUnwatcher{server: server},
		log.New(os.Stdout, "[exits] ", log.LstdFlags), exitOpts...)

	detector := monitor.NewSellTriggerDetector(rpc, log.New(os.Stdout, "[monitor] ", log.LstdFlags))
	server.monitor = monitor.New(*wsEndpoint, watchSource, detector, server.controller,
		log.New(os.Stdout, "[monitor] ", log.LstdFlags), nil)

	server.opener = qualify.NewPositionOpener(executor, positions, tradeLog,
		&lazyWatcher{server: server}, *buyLamports,
		log.New(os.Stdout, "[qualify] ", log.LstdFlags))
	server.qualifier = qualify.NewQualifier(qualify.NewPoolFeed(), server.holders, server.sns,
		server.opener, log.New(os.Stdout, "[qualify] ", log.LstdFlags),
		qualify.WithInterval(*feedInterval))

	if err := server.controller.Start(ctx); err != nil {
		logger.Fatalf("Failed to start exit controller: %v", err)
	}

	if *autoStart {
		if err := server.monitor.Start(ctx); err != nil {
			logger.Fatalf("Failed to start monitor: %v", err)
		}
		if err := server.qualifier.Start(ctx); err != nil {
			logger.Fatalf("Failed to start qualifier: %v", err)
		}
	}

	go server.startHTTPServer(*httpAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf("Received signal %v, shutting down...", sig)

	cancel()
	server.qualifier.Stop()
	server.monitor.Stop()
	server.controller.Stop()

	logger.Println("Shutdown complete")
}

// lazyWatcher defers to the server's monitor, which is constructed
// after the opener that needs it.
type lazyWatcher struct{ server *Server }

func (l *lazyWatcher) Watch(ctx context.Context, mint string) error {
	return l.server.monitor.Watch(ctx, mint)
}

type lazyUnwatcher struct{ server *Server }

func (l *lazyUnwatcher) Unwatch(ctx context.Context, mint string) error {
	return l.server.monitor.Unwatch(ctx, mint)
}

// createStores builds the position store and the optional trade archive.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.PositionStore, storage.TradeLogStore, func(), error) {
	if useMemory {
		return memory.NewPositionStore(), memory.NewTradeLogStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	positions := pgstore.NewPositionStore(pool)

	if clickhouseDSN == "" {
		return positions, nil, pool.Close, nil
	}

	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, chConn); err != nil {
		chConn.Close()
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return positions, chstore.NewTradeLogStore(chConn), cleanup, nil
}

// startHTTPServer serves health, metrics, and the control surface.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	mux.HandleFunc("/monitor/start", s.requirePOST(func(w http.ResponseWriter, r *http.Request) {
		if err := s.monitor.Start(s.ctx); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, map[string]string{"status": "started"})
	}))
	mux.HandleFunc("/monitor/stop", s.requirePOST(func(w http.ResponseWriter, r *http.Request) {
		s.monitor.Stop()
		writeJSON(w, map[string]string{"status": "stopped"})
	}))
	mux.HandleFunc("/monitor/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.monitor.Status())
	})

	mux.HandleFunc("/qualifier/start", s.requirePOST(func(w http.ResponseWriter, r *http.Request) {
		if err := s.qualifier.Start(s.ctx); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, map[string]string{"status": "started"})
	}))
	mux.HandleFunc("/qualifier/stop", s.requirePOST(func(w http.ResponseWriter, r *http.Request) {
		s.qualifier.Stop()
		writeJSON(w, map[string]string{"status": "stopped"})
	}))
	mux.HandleFunc("/qualifier/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.qualifier.Status())
	})

	mux.HandleFunc("/buy", s.requirePOST(s.handleBuy))
	mux.HandleFunc("/holders/", s.handleHolders)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

func (s *Server) requirePOST(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status    string         `json:"status"`
	Uptime    string         `json:"uptime"`
	Wallet    string         `json:"wallet"`
	Monitor   monitor.Status `json:"monitor"`
	Qualifier qualify.Status `json:"qualifier"`
	Exits     map[string]int `json:"exits"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.startedAt).String(),
		Wallet:    s.wallet,
		Monitor:   s.monitor.Status(),
		Qualifier: s.qualifier.Status(),
		Exits:     map[string]int{"activeWatchers": s.controller.ActiveWatchers()},
	})
}

// handleBuy opens a position manually, bypassing qualification. An
// amountSol field overrides the configured per-buy spend.
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mint      string  `json:"mint"`
		Symbol    string  `json:"symbol"`
		Decimals  int     `json:"decimals"`
		AmountSol float64 `json:"amountSol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Mint == "" {
		http.Error(w, "mint is required", http.StatusBadRequest)
		return
	}
	if req.Decimals <= 0 {
		http.Error(w, "decimals is required", http.StatusBadRequest)
		return
	}
	if req.AmountSol < 0 {
		http.Error(w, "amountSol must be positive", http.StatusBadRequest)
		return
	}

	pair := domain.PairInfo{Mint: req.Mint, Symbol: req.Symbol, Decimals: req.Decimals}
	var err error
	if req.AmountSol > 0 {
		err = s.opener.BuyWithSpend(r.Context(), pair, swap.ToBaseUnits(req.AmountSol, 9))
	} else {
		err = s.opener.Buy(r.Context(), pair)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"status": "bought", "mint": req.Mint})
}

// handleHolders serves GET /holders/{mint}: the top holders with their
// domain names, for manual qualification checks.
func (s *Server) handleHolders(w http.ResponseWriter, r *http.Request) {
	mint := strings.TrimPrefix(r.URL.Path, "/holders/")
	if mint == "" || strings.Contains(mint, "/") {
		http.Error(w, "expected /holders/{mint}", http.StatusBadRequest)
		return
	}

	reports, err := s.holders.InspectHolders(r.Context(), mint, s.sns)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, reports)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
