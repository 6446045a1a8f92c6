// Package main is the entry point for the duck-explore HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"duck-explore/internal/app"
	"duck-explore/internal/config"
	internaldb "duck-explore/internal/db"
	"duck-explore/internal/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	duck, err := engine.OpenDuckDB(ctx, cfg.DuckDBPath)
	if err != nil {
		return err
	}
	defer duck.Close() //nolint:errcheck

	// writeDB: single-connection pool for serialized writes.
	// readDB:  4-connection pool for concurrent reads.
	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.MetaDBPath, 4)
	if err != nil {
		return fmt.Errorf("open metastore: %w", err)
	}
	defer writeDB.Close() //nolint:errcheck
	defer readDB.Close()  //nolint:errcheck

	if err := internaldb.RunMigrations(ctx, writeDB); err != nil {
		return fmt.Errorf("migrate metastore: %w", err)
	}

	a, err := app.New(ctx, app.Deps{
		Cfg:     cfg,
		DuckDB:  duck,
		WriteDB: writeDB,
		ReadDB:  readDB,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	logger.Info("starting duck-explore",
		"env", cfg.Env,
		"meta_db", cfg.MetaDBPath,
		"ui", exploreURL(cfg.ListenAddr),
	)
	return a.Run(ctx)
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exploreURL is the explore page address printed at startup. Wildcard and
// empty hosts are shown as localhost.
func exploreURL(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	host, port, err := net.SplitHostPort(addr)
	switch {
	case addr == "":
		host, port = "localhost", "8080"
	case err != nil:
		return "http://" + addr + "/ui/explore"
	case host == "" || net.ParseIP(host).IsUnspecified():
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/ui/explore"
}
