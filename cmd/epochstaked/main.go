package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"epochstake/config"
	"epochstake/core/events"
	"epochstake/core/state"
	"epochstake/integrations/history"
	"epochstake/integrations/webhooks"
	"epochstake/native/epochstake"
	"epochstake/observability"
	"epochstake/observability/logging"
	telemetry "epochstake/observability/otel"
	"epochstake/rpc"
	"epochstake/rpc/middleware"
	"epochstake/storage"
)

const serviceName = "epochstaked"

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml or .yaml)")
	listen := flag.String("listen", "", "Override the configured listen address")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*listen) != "" {
		cfg.ListenAddress = strings.TrimSpace(*listen)
	}

	logger, logCloser := logging.SetupWithFile(serviceName, cfg.Env, logging.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   true,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("epochstaked exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Asset:          cfg.Asset,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        cfg.Telemetry.Headers,
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	n, err := newNode(cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	return n.server.Start(ctx, cfg.ListenAddress)
}

// node owns every long-lived component of the daemon.
type node struct {
	db       storage.Database
	history  *history.Store
	webhooks *webhooks.Dispatcher
	engine   *epochstake.Engine
	bus      *events.Bus
	server   *rpc.Server
}

func openDatabase(dataDir string, logger *slog.Logger) (storage.Database, error) {
	if strings.TrimSpace(dataDir) == "" {
		logger.Warn("no data directory configured; state is kept in memory")
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func newNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	n := &node{}
	ok := false
	defer func() {
		if !ok {
			n.Close()
		}
	}()

	db, err := openDatabase(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}
	n.db = db
	manager := state.NewManager(db)
	if err := manager.EnsureStateVersion(); err != nil {
		return nil, err
	}

	historyDB, err := history.Open(cfg.HistoryDSN)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	n.history, err = history.NewStore(historyDB)
	if err != nil {
		return nil, err
	}
	n.history.SetLogger(logger)

	n.bus = events.NewBus(observability.Staking(), n.history)
	if url := strings.TrimSpace(cfg.Webhook.URL); url != "" {
		opts := []webhooks.Option{
			webhooks.WithLogger(logger),
			webhooks.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
		}
		if len(cfg.Webhook.Topics) > 0 {
			opts = append(opts, webhooks.WithTopics(cfg.Webhook.Topics...))
		}
		n.webhooks, err = webhooks.NewDispatcher(url, []byte(cfg.Webhook.SigningSecret()), opts...)
		if err != nil {
			return nil, err
		}
		n.bus.Attach(n.webhooks)
	}

	n.engine = epochstake.NewEngine()
	n.engine.SetStore(state.NewStakingStore(manager))
	n.engine.SetEmitter(n.bus)
	n.engine.SetLogger(logger)
	if err := ensurePool(n.engine, cfg.Asset); err != nil {
		return nil, err
	}

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret: cfg.Auth.Secret(),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
		Burst:             cfg.RateLimit.Burst,
	})
	n.server, err = rpc.NewServer(rpc.ServerConfig{
		Engine:        n.engine,
		History:       n.history,
		Bus:           n.bus,
		Authenticator: auth,
		RateLimiter:   limiter,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return n, nil
}

// ensurePool binds the pool to the configured asset on first start. A pool
// bound to another asset is a configuration error.
func ensurePool(engine *epochstake.Engine, asset string) error {
	pool, err := engine.Pool()
	switch {
	case err == nil:
		if pool.Asset != asset {
			return fmt.Errorf("pool is bound to %s but config asset is %s", pool.Asset, asset)
		}
		return nil
	case errors.Is(err, epochstake.ErrPoolNotInitialized):
		if _, err := engine.InitializePool(asset); err != nil {
			return fmt.Errorf("initialize pool: %w", err)
		}
		return nil
	default:
		return err
	}
}

// Close releases resources in reverse order of acquisition.
func (n *node) Close() {
	if n == nil {
		return
	}
	if n.webhooks != nil {
		n.webhooks.Close()
	}
	if n.history != nil {
		_ = n.history.Close()
	}
	if n.db != nil {
		n.db.Close()
	}
}
