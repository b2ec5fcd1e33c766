// Package main runs the ledger service: the signed HTTP API over one asset's
// protocol state, with optional oracle and Solana balance collaborators.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"dynamic-pricing-ledger/internal/api"
	"dynamic-pricing-ledger/internal/audit"
	"dynamic-pricing-ledger/internal/auth"
	"dynamic-pricing-ledger/internal/config"
	"dynamic-pricing-ledger/internal/logging"
	"dynamic-pricing-ledger/internal/observability"
	"dynamic-pricing-ledger/internal/oracle"
	"dynamic-pricing-ledger/internal/protocol"
	"dynamic-pricing-ledger/internal/settlement"
	"dynamic-pricing-ledger/internal/solana"
	"dynamic-pricing-ledger/internal/storage"
	chstore "dynamic-pricing-ledger/internal/storage/clickhouse"
	"dynamic-pricing-ledger/internal/storage/memory"
	"dynamic-pricing-ledger/internal/storage/migrations"
	pgstore "dynamic-pricing-ledger/internal/storage/postgres"
)

// Server holds all components of the ledger service.
type Server struct {
	cfg    *config.Config
	logOut io.Writer
	logger *log.Logger

	// Stores
	stores *allStores

	// Collaborators
	feed     *oracle.WSFeed
	balances protocol.BalanceSource
	chain    api.Chain

	// Components
	protocol *protocol.Protocol
	auditor  *audit.Auditor
	http     *http.Server

	// State
	mu           sync.Mutex
	auditRunning bool
}

// allStores holds the storage implementations selected by storage.mode.
type allStores struct {
	state     storage.StateStore
	journal   storage.EventStore
	transfers protocol.Transferer
	outbox    *settlement.Outbox    // nil in memory mode
	bank      *settlement.Bank      // nil in postgres mode
	nonces    auth.NoncePersistence // nil in memory mode
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage regardless of storage.mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *useMemory {
		cfg.Storage.Mode = config.ModeMemory
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Setup logger
	logOut := logging.Output(cfg.Logging)
	logger := logging.New(logOut, "server")
	logger.Printf("Ledger for asset %s, storage mode %s", cfg.Ledger.Asset, cfg.Storage.Mode)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, cfg, logging.New(logOut, "migrations"))
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	server := &Server{
		cfg:    cfg,
		logOut: logOut,
		logger: logger,
		stores: stores,
	}
	if err := server.setup(ctx); err != nil {
		logger.Fatalf("Failed to set up server: %v", err)
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(cfg.Server.ShutdownTimeout):
			logger.Printf("Graceful shutdown timed out after %s, forcing exit", cfg.Server.ShutdownTimeout)
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Run the server
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores builds the state, journal and settlement backends.
func createStores(ctx context.Context, cfg *config.Config, migrationLog *log.Logger) (*allStores, func(), error) {
	if cfg.Storage.Mode == config.ModeMemory {
		bank := settlement.NewBank()
		return &allStores{
			state:     memory.NewStateStore(),
			journal:   memory.NewEventStore(),
			transfers: bank,
			bank:      bank,
		}, func() {}, nil
	}

	// Connect to PostgreSQL
	pgPool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pgPool, migrationLog); err != nil {
		pgPool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// Connect to ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN, migrationLog)
	if err != nil {
		pgPool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	outbox := settlement.NewOutbox(pgstore.NewTransferStore(pgPool))
	cleanup := func() {
		chConn.Close()
		pgPool.Close()
	}
	return &allStores{
		state:     pgstore.NewStateStore(pgPool),
		journal:   chstore.NewEventStore(chConn),
		transfers: outbox,
		outbox:    outbox,
		nonces:    pgstore.NewNonceStore(pgPool),
	}, cleanup, nil
}

// setup connects collaborators and builds the protocol and HTTP handler.
func (s *Server) setup(ctx context.Context) error {
	params, err := s.cfg.Params()
	if err != nil {
		return err
	}

	switch {
	case s.cfg.Solana.Enabled:
		client := solana.NewHTTPClient(s.cfg.Solana.RPCURL,
			solana.WithTimeout(s.cfg.Solana.Timeout),
			solana.WithMaxRetries(s.cfg.Solana.MaxRetries),
			solana.WithCommitment(s.cfg.Solana.Commitment),
		)
		s.balances = client
		s.chain = client
		s.logger.Printf("Balances read from Solana RPC %s (%s)", s.cfg.Solana.RPCURL, s.cfg.Solana.Commitment)
	case s.stores.bank != nil:
		s.balances = s.stores.bank
	default:
		s.logger.Println("No balance source configured, buys will fail with TransferFailed")
	}

	opts := protocol.Options{
		State:     s.stores.state,
		Journal:   s.stores.journal,
		Balances:  s.balances,
		Transfers: s.stores.transfers,
		Logger:    logging.New(s.logOut, "protocol"),
	}

	if s.cfg.Oracle.Enabled {
		publisher, err := s.cfg.Oracle.PublisherIdentity()
		if err != nil {
			return err
		}
		s.feed, err = oracle.NewWSFeed(ctx, s.cfg.Oracle.Endpoint, publisher, []string{s.cfg.Oracle.FeedID}, nil, logging.New(s.logOut, "oracle"))
		if err != nil {
			return fmt.Errorf("connect oracle: %w", err)
		}
		opts.Oracle = s.feed
		s.logger.Printf("Oracle feed %s subscribed at %s", s.cfg.Oracle.FeedID, s.cfg.Oracle.Endpoint)
	}

	s.protocol, err = protocol.New(params, opts)
	if err != nil {
		return err
	}

	s.auditor = audit.New(s.stores.state, s.stores.journal, params, nil)

	verifier := auth.NewVerifier(s.cfg.Server.MaxClockSkew, nil)
	if s.stores.nonces != nil {
		verifier.WithNoncePersistence(s.stores.nonces)
	}

	apiCfg := api.Config{
		Protocol: s.protocol,
		Verifier: verifier,
		Chain:    s.chain,
		Logger:   logging.New(s.logOut, "api"),
	}
	if s.stores.outbox != nil {
		apiCfg.Settlement = s.stores.outbox
	}

	s.http = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           api.New(apiCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Starting HTTP server on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if s.cfg.Server.AuditInterval > 0 {
		go s.runAuditScheduler(ctx)
	}

	select {
	case err, ok := <-errCh:
		s.closeFeed()
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Printf("HTTP shutdown error: %v", err)
	}
	s.closeFeed()
	return ctx.Err()
}

// runAuditScheduler audits ledger state on schedule.
func (s *Server) runAuditScheduler(ctx context.Context) {
	s.logger.Printf("Starting audit scheduler (interval: %v)...", s.cfg.Server.AuditInterval)

	ticker := time.NewTicker(s.cfg.Server.AuditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAudit(ctx)
		}
	}
}

// runAudit runs one state audit and logs every failed check.
func (s *Server) runAudit(ctx context.Context) {
	s.mu.Lock()
	if s.auditRunning {
		s.mu.Unlock()
		s.logger.Println("Audit already running, skipping...")
		return
	}
	s.auditRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.auditRunning = false
		s.mu.Unlock()
	}()

	start := time.Now()
	report, err := s.auditor.Run(ctx)
	if err != nil {
		s.logger.Printf("Audit error: %v", err)
		observability.RecordAuditRun("error", 0)
		return
	}

	failures := report.Failures()
	if len(failures) == 0 {
		s.logger.Printf("Audit passed in %v: %d checks, %d positions", time.Since(start), len(report.Checks), report.Positions)
		observability.RecordAuditRun("pass", 0)
		return
	}
	for _, c := range failures {
		s.logger.Printf("Audit check failed: %s (expected %s, actual %s)", c.Name, c.Expected, c.Actual)
	}
	observability.RecordAuditRun("fail", len(failures))
}

func (s *Server) closeFeed() {
	if s.feed == nil {
		return
	}
	if err := s.feed.Close(); err != nil {
		s.logger.Printf("Oracle close error: %v", err)
	}
}

// loadEnvFile loads environment variables from .env file.
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
