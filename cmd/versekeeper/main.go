// Command versekeeper runs the verse memorization scheduler, either as an
// HTTP API server or as an MCP stdio server for LLM clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/versekeeper/versekeeper/internal/api"
	"github.com/versekeeper/versekeeper/internal/scheduler"
	"github.com/versekeeper/versekeeper/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "versekeeper: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; flags and the process environment still apply.
	_ = godotenv.Load()

	var (
		addr    = flag.String("addr", envOr("VERSEKEEPER_ADDR", ":8080"), "HTTP listen address")
		backend = flag.String("storage", envOr("VERSEKEEPER_STORAGE", "sqlite"), "storage backend: sqlite or file")
		dataDir = flag.String("data-dir", envOr("VERSEKEEPER_DATA_DIR", "./data"), "data directory (or :memory: for sqlite)")
		tokens  = flag.String("tokens", os.Getenv("VERSEKEEPER_TOKENS"), "comma-separated token:owner pairs for HTTP auth")
		owner   = flag.String("owner", envOr("VERSEKEEPER_OWNER", "local"), "owner id for MCP mode")
		mcpMode = flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
		debug   = flag.Bool("debug", os.Getenv("VERSEKEEPER_DEBUG") != "", "enable debug logging")
	)
	flag.Parse()

	logger, err := newLogger(*debug, *mcpMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	store, err := openStore(*backend, *dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := scheduler.New(store, logger)

	if *mcpMode {
		logger.Info("starting MCP stdio server", zap.String("owner", *owner))
		s := api.NewMCPServer(api.MCPDeps{Service: svc, Owner: *owner})
		return server.ServeStdio(s)
	}

	tokenMap, err := parseTokens(*tokens)
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Deps{Service: svc, Tokens: tokenMap, Logger: logger})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server",
			zap.String("addr", *addr),
			zap.String("storage", *backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func openStore(backend, dataDir string) (storage.Store, error) {
	switch backend {
	case "sqlite":
		store, err := storage.OpenSQLite(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	case "file":
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		store := storage.NewFileStore(dataDir + "/versekeeper.json")
		if err := store.Load(); err != nil {
			return nil, fmt.Errorf("failed to load file store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q, want sqlite or file", backend)
	}
}

// newLogger writes to stderr so MCP stdio traffic on stdout stays clean.
func newLogger(debug, mcpMode bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if mcpMode && !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseTokens parses "token:owner,token:owner" pairs.
func parseTokens(s string) (map[string]string, error) {
	if s == "" {
		return nil, errors.New("no auth tokens configured: set -tokens or VERSEKEEPER_TOKENS")
	}
	tokens := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		token, owner, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || owner == "" {
			return nil, fmt.Errorf("malformed token pair %q, want token:owner", pair)
		}
		tokens[token] = owner
	}
	return tokens, nil
}
