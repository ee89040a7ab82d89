// Package main runs the creator-fee lottery service: an HTTP trigger
// endpoint that claims creator fees once per cycle and distributes them
// to one token holder selected by verifiable randomness.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fee-lottery/internal/api"
	"fee-lottery/internal/claim"
	"fee-lottery/internal/cycle"
	"fee-lottery/internal/observability"
	"fee-lottery/internal/orchestrator"
	"fee-lottery/internal/payout"
	"fee-lottery/internal/selector"
	"fee-lottery/internal/solana"
	"fee-lottery/internal/storage"
	chstore "fee-lottery/internal/storage/clickhouse"
	"fee-lottery/internal/storage/memory"
	"fee-lottery/internal/storage/migrations"
	pgstore "fee-lottery/internal/storage/postgres"
	"fee-lottery/internal/vrf"
	"fee-lottery/internal/wallet"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (optional, used for transfer confirmation)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional analytics sink)")
	tokenMint := flag.String("token-mint", os.Getenv("TOKEN_MINT"), "Token mint whose holders enter the lottery")
	excludedAddress := flag.String("excluded-address", os.Getenv("DEV_WALLET"), "Holder address excluded from selection")
	jackpotAddress := flag.String("jackpot-address", os.Getenv("JACKPOT_ADDRESS"), "Jackpot pool address (optional; empty sends 100% to the winner)")
	listenAddr := flag.String("listen-addr", ":8080", "API HTTP address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	cycleLength := flag.Duration("cycle-length", cycle.DefaultLength, "Distribution cycle length")
	feeBuffer := flag.Uint64("fee-buffer", 5_000_000, "Lamports retained for transaction fees")
	minThreshold := flag.Uint64("min-threshold", orchestrator.DefaultMinThreshold, "Minimum claimed lamports worth distributing")
	winnerShareBps := flag.Uint64("winner-share-bps", payout.DefaultWinnerShareBps, "Winner's share in basis points when a jackpot is configured")
	settleWait := flag.Duration("settle-wait", orchestrator.DefaultSettleWait, "Wait between claim submission and the balance-delta read")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Secrets are env-only, never flags.
	walletSecret := os.Getenv("WALLET_SECRET")
	cronSecret := os.Getenv("CRON_SECRET")

	// Validate required configuration before touching any external service.
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *tokenMint == "" {
		logger.Fatal("--token-mint is required")
	}
	if walletSecret == "" {
		logger.Fatal("WALLET_SECRET environment variable is required")
	}
	if cronSecret == "" {
		logger.Fatal("CRON_SECRET environment variable is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	keypair, err := wallet.KeypairFromBase58(walletSecret)
	if err != nil {
		logger.Fatalf("Invalid WALLET_SECRET: %v", err)
	}
	if _, err := wallet.DecodePublicKey(*tokenMint); err != nil {
		logger.Fatalf("Invalid --token-mint: %v", err)
	}

	var jackpotKey *wallet.PublicKey
	if *jackpotAddress != "" {
		pub, err := wallet.DecodePublicKey(*jackpotAddress)
		if err != nil {
			logger.Fatalf("Invalid --jackpot-address: %v", err)
		}
		if !pub.IsOnCurve() {
			logger.Fatalf("--jackpot-address is not an on-curve wallet address")
		}
		jackpotKey = &pub
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	winners, events, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Solana plumbing
	rpc := solana.NewHTTPClient(*rpcEndpoint)

	var watcher solana.SignatureWatcher
	if *wsEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, *wsEndpoint, nil)
		if err != nil {
			logger.Printf("WebSocket unavailable (%v), falling back to RPC status polling", err)
		} else {
			watcher = ws
			defer ws.Close()
		}
	}

	metrics := observability.NewMetrics("")

	// Components
	vrfSource, err := vrf.New(rpc, keypair, vrf.DefaultConfig(),
		log.New(os.Stdout, "[vrf] ", log.LstdFlags|log.Lshortfile))
	if err != nil {
		logger.Fatalf("Failed to create VRF source: %v", err)
	}

	holderSelector := selector.New(rpc, vrfSource, selector.Config{
		Mint:            *tokenMint,
		ExcludedAddress: *excludedAddress,
	}, log.New(os.Stdout, "[selector] ", log.LstdFlags|log.Lshortfile))

	claimer := claim.New(rpc, keypair, claim.Config{},
		log.New(os.Stdout, "[claim] ", log.LstdFlags|log.Lshortfile))

	payer := payout.New(rpc, watcher, keypair, payout.Config{
		FeeBuffer:      *feeBuffer,
		WinnerShareBps: *winnerShareBps,
		JackpotAddress: jackpotKey,
	}, log.New(os.Stdout, "[payout] ", log.LstdFlags|log.Lshortfile))

	distributor := orchestrator.New(orchestrator.Options{
		Clock:            cycle.NewClock(*cycleLength),
		Balances:         rpc,
		Claimer:          claimer,
		Selector:         holderSelector,
		Payer:            payer,
		Winners:          winners,
		Events:           events,
		Metrics:          metrics,
		OperatingAddress: keypair.PublicKey().Base58(),
		JackpotAddress:   *jackpotAddress,
		MinThreshold:     *minThreshold,
		SettleWait:       *settleWait,
		Logger:           log.New(os.Stdout, "[distributor] ", log.LstdFlags|log.Lshortfile),
	})

	apiServer := api.New(api.Options{
		Runner:        distributor,
		Winners:       winners,
		Clock:         cycle.NewClock(*cycleLength),
		TriggerSecret: cronSecret,
		Metrics:       metrics,
		Logger:        log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lshortfile),
	})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	// Metrics listener
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		logger.Printf("Starting metrics server on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Printf("Metrics server error: %v", err)
		}
	}()

	// API listener
	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: apiServer.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Printf("Lottery server listening on %s (wallet %s, mint %s, cycle %s)",
		*listenAddr, keypair.PublicKey().Base58(), *tokenMint, *cycleLength)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores picks the storage backends and runs migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (storage.WinnerStore, storage.CycleEventSink, func(), error) {
	if useMemory {
		return memory.NewWinnerStore(), nil, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	// ClickHouse is optional; the audit ledger never depends on it.
	var events storage.CycleEventSink
	var chConn *chstore.Conn
	if clickhouseDSN != "" {
		chConn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		events = chstore.NewCycleEventStore(chConn)
		logger.Println("ClickHouse analytics sink enabled")
	}

	cleanup := func() {
		if chConn != nil {
			chConn.Close()
		}
		pool.Close()
	}
	return pgstore.NewWinnerStore(pool), events, cleanup, nil
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
