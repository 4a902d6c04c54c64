// Command bridge runs one bridging flow end to end: quote, order, status
// tracking, and persistence of the completed transaction.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoport/bridge/internal/bridge"
	"github.com/cryptoport/bridge/internal/infra/config"
	"github.com/cryptoport/bridge/internal/infra/exchange"
	"github.com/cryptoport/bridge/internal/infra/persistence/migrations"
	"github.com/cryptoport/bridge/internal/infra/persistence/postgres"
	"github.com/cryptoport/bridge/internal/observability"
	"github.com/cryptoport/bridge/internal/order"
	"github.com/cryptoport/bridge/internal/quote"
	"github.com/cryptoport/bridge/internal/schema"
	"github.com/cryptoport/bridge/internal/telemetry"
)

const (
	defaultConfigPath     = "config/bridge.yaml"
	defaultMigrationsPath = "db/migrations"
	telemetryShutdown     = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath     = flag.String("config", defaultConfigPath, "Path to the YAML configuration file")
		from        = flag.String("from", "", "Deposit currency code (e.g. BTC)")
		to          = flag.String("to", "", "Destination currency code (e.g. ETH)")
		amount      = flag.String("amount", "", "Deposit amount")
		destination = flag.String("dest", "", "Destination wallet address")
		orderType   = flag.String("type", string(schema.OrderTypeFixed), "Order type (fixed|float)")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(ctx, *cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewStdLogger(observability.ParseLevel(cfg.LogLevel))
	observability.SetLogger(logger)

	metrics, shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer shutdownTelemetry()

	if cfg.Database.RunMigrations {
		if err := migrations.Apply(ctx, cfg.Database.DSN, defaultMigrationsPath, nil); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	client := exchange.NewClient(exchange.Options{
		BaseURL:     cfg.Exchange.BaseURL,
		APIKey:      cfg.Exchange.APIKey,
		Timeout:     cfg.Exchange.Timeout,
		MaxAttempts: cfg.Exchange.MaxAttempts,
		Logger:      logger,
	})

	runtime := observability.NewRuntimeMetrics()
	reconciler := order.NewReconciler(postgres.NewTransactionStore(pool), nil, logger, metrics, runtime)

	session := bridge.NewSession(ctx, bridge.SessionOptions{
		Client:          client,
		Reconciler:      reconciler,
		Logger:          logger,
		Metrics:         metrics,
		Runtime:         runtime,
		Debounce:        cfg.Poll.TerminalDebounce,
		RefreshCooldown: cfg.Quote.RefreshCooldown,
		EventBuffer:     cfg.Poll.EventBuffer,
	})
	defer session.Close()

	if *from == "" || *to == "" || *amount == "" || *destination == "" {
		return fmt.Errorf("flags -from, -to, -amount, and -dest are required")
	}

	quoted, err := session.Recalculate(ctx, quote.Inputs{
		FromCurrency: *from,
		ToCurrency:   *to,
		Amount:       *amount,
		OrderType:    schema.OrderType(*orderType),
	})
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	logger.Info("quote received",
		observability.F("rate", quoted.Rate.String()),
		observability.F("receive", quoted.ReceiveAmount.String()),
		observability.F("valid_for", quoted.Remaining(time.Now()).String()))

	placed, err := session.PlaceOrder(ctx, *destination)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	logger.Info("order placed, send your deposit",
		observability.F("order_id", placed.OrderID),
		observability.F("deposit_address", placed.DepositAddress),
		observability.F("deposit_amount", placed.DepositAmount))

	return watch(ctx, session, logger)
}

// watch drains the session event stream until the order settles or the
// process is signalled.
func watch(ctx context.Context, session *bridge.Session, logger observability.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-session.Events():
			if !ok {
				return nil
			}
			if event.Kind != bridge.EventStatusChanged || event.Order == nil {
				continue
			}
			logger.Info("order status",
				observability.F("order_id", event.Order.OrderID),
				observability.F("status", event.Order.CurrentStatus))
			if event.Order.CurrentStatus.Terminal() {
				logger.Info("order settled",
					observability.F("status", event.Order.CurrentStatus),
					observability.F("saved", event.Order.Saved))
				return nil
			}
		}
	}
}

func loadConfig(ctx context.Context, path string) (config.AppConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.FromEnv()
		}
		return config.AppConfig{}, err
	}
	return config.Load(ctx, path)
}

func initTelemetry(ctx context.Context, cfg config.AppConfig) (*telemetry.BridgeMetrics, func(), error) {
	if !cfg.Telemetry.EnableMetrics {
		return nil, func() {}, nil
	}
	tcfg := telemetry.DefaultConfig()
	tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	tcfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	tcfg.ServiceName = cfg.Telemetry.ServiceName
	tcfg.Environment = string(cfg.Environment)

	provider, err := telemetry.NewProvider(ctx, tcfg)
	if err != nil {
		return nil, nil, err
	}
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdown)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}

	metrics, err := telemetry.NewBridgeMetrics(provider.Meter("bridge"))
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	return metrics, shutdown, nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	return pgxpool.NewWithConfig(ctx, poolCfg)
}
