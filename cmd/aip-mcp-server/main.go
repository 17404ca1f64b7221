// aip-mcp-server exposes aip-core's checkpoint issuance and certificate
// verification as MCP tools over HTTP, so an agent harness can call
// aip_issue_checkpoint / aip_verify_certificate without linking against the
// aip package directly.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mnemom/aip-core"
	"github.com/mnemom/aip-core/internal/config"
	"github.com/mnemom/aip-core/internal/keyderive"
	"github.com/mnemom/aip-core/internal/mcptools"
	"github.com/mnemom/aip-core/internal/signing"
	"github.com/mnemom/aip-core/internal/store/postgres"
	"github.com/mnemom/aip-core/internal/store/sqlite"
	"github.com/mnemom/aip-core/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Config) error {
	logger.Info("aip-mcp-server starting", "version", version, "store_backend", cfg.StoreBackend)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	opts := []aip.Option{aip.WithLogger(logger)}

	if cfg.MasterSecret != "" {
		master, err := signing.DecodeHex(cfg.MasterSecret)
		if err != nil {
			return fmt.Errorf("decode AIP_MASTER_SECRET: %w", err)
		}
		keys, err := keyderive.NewKeyStore(master, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("derive signing key: %w", err)
		}
		opts = append(opts, aip.WithKeyStore(keys))
	} else {
		seed, err := loadSigningSeed(cfg.SigningKeyPath)
		if err != nil {
			return fmt.Errorf("signing key: %w", err)
		}
		opts = append(opts, aip.WithSigningKeySeed(seed))
	}

	switch cfg.StoreBackend {
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite store: %w", err)
		}
		defer store.Close()
		opts = append(opts, aip.WithChainStore(store), aip.WithLeafStore(store))
	case "postgres":
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres store: %w", err)
		}
		defer store.Close()
		opts = append(opts, aip.WithChainStore(store), aip.WithLeafStore(store))
	case "memory":
		// Issuer defaults to in-memory stores when none are supplied.
	}

	issuer, err := aip.New(opts...)
	if err != nil {
		return fmt.Errorf("issuer: %w", err)
	}

	mcpSrv := mcptools.New(issueAdapter(issuer), verifyAdapter, logger, version)

	httpSrv := &http.Server{
		Addr:    addr(),
		Handler: mcpserver.NewStreamableHTTPServer(mcpSrv.MCPServer()),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("aip-mcp-server shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("aip-mcp-server stopped")
	return nil
}

func addr() string {
	if v := os.Getenv("AIP_MCP_ADDR"); v != "" {
		return v
	}
	return ":8090"
}

func parseLogLevel(raw string) slog.Level {
	switch config.ParseLogLevel(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadSigningSeed(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w (run cmd/aip-genkey first)", path, err)
	}
	seed, err := signing.DecodeHex(string(bytesTrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return seed, nil
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

// issueAdapter converts the MCP tool's untyped argument map into an
// aip.CheckpointRequest and calls the issuer, so internal/mcptools never
// needs to import the aip package directly.
func issueAdapter(issuer *aip.Issuer) mcptools.IssueFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		req := aip.CheckpointRequest{
			SessionKey: stringArg(args, "session_key"),
			Subject: aip.Subject{
				CheckpointID: stringArg(args, "checkpoint_id"),
				AgentID:      stringArg(args, "agent_id"),
				CardID:       stringArg(args, "card_id"),
			},
			Verdict:            stringArg(args, "verdict"),
			Confidence:         floatArg(args, "confidence"),
			ReasoningSummary:   stringArg(args, "reasoning_summary"),
			AnalysisModel:      stringArg(args, "analysis_model"),
			ThinkingBlockHash:  stringArg(args, "thinking_block_hash"),
			IncludeMerkleProof: boolArg(args, "include_merkle_proof"),
		}
		return issuer.IssueCheckpoint(ctx, req)
	}
}

// verifyAdapter re-marshals the unmarshaled certificate value back into JSON
// and decodes it into an aip.Certificate before delegating to aip.Verify.
func verifyAdapter(cert any, public ed25519.PublicKey) (any, error) {
	raw, err := json.Marshal(cert)
	if err != nil {
		return nil, fmt.Errorf("re-marshal certificate: %w", err)
	}
	var typed aip.Certificate
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}
	return aip.Verify(typed, public), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}
