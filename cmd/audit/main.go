package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"dynamic-pricing-ledger/internal/audit"
	"dynamic-pricing-ledger/internal/config"
	chstore "dynamic-pricing-ledger/internal/storage/clickhouse"
	pgstore "dynamic-pricing-ledger/internal/storage/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file (env LEDGER_* overrides apply)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides storage.postgres_dsn)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides storage.clickhouse_dsn)")
	skipJournal := flag.Bool("skip-journal", false, "Audit state cells only, without replaying the event journal")
	output := flag.String("output", "", "Write the Markdown report to this file instead of stdout")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Storage.ClickHouseDSN = *clickhouseDSN
	}

	// Validate flags
	if cfg.Storage.PostgresDSN == "" || (!*skipJournal && cfg.Storage.ClickHouseDSN == "") {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn and --clickhouse-dsn are required")
		fmt.Fprintln(os.Stderr, "Use --skip-journal to audit state cells without ClickHouse")
		os.Exit(1)
	}

	params, err := cfg.Params()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := params.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid ledger config: %v\n", err)
		os.Exit(1)
	}

	// Connect to PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	var auditor *audit.Auditor
	if *skipJournal {
		auditor = audit.New(pgstore.NewStateStore(pool), nil, params, nil)
	} else {
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to clickhouse: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()
		auditor = audit.New(pgstore.NewStateStore(pool), chstore.NewEventStore(conn), params, nil)
	}

	report, err := auditor.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running audit: %v\n", err)
		os.Exit(1)
	}

	md := audit.RenderMarkdown(report)
	if *output == "" {
		fmt.Print(md)
	} else {
		if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*output, []byte(md), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Audit report written to %s\n", *output)
	}

	if !report.Passed() {
		os.Exit(1)
	}
}
