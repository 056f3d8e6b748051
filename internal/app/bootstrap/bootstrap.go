package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	votingengine "sntportal/contexts/governance/voting-engine"
	badgerstore "sntportal/contexts/governance/voting-engine/adapters/badger"
	"sntportal/contexts/governance/voting-engine/adapters/memory"
	"sntportal/contexts/governance/voting-engine/adapters/notify"
	postgresadapter "sntportal/contexts/governance/voting-engine/adapters/postgres"
	prometheusmetrics "sntportal/contexts/governance/voting-engine/adapters/prometheus"
	"sntportal/contexts/governance/voting-engine/adapters/roster"
	"sntportal/contexts/governance/voting-engine/ports"
	contractsv1 "sntportal/contracts/gen/events/v1"
	"sntportal/internal/platform/config"
	"sntportal/internal/platform/db"
	"sntportal/internal/platform/httpserver"
	"sntportal/internal/platform/messaging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const logModule = "internal/app/bootstrap"

type APIApp struct {
	server   *httpserver.Server
	embedded *WorkerApp
	closer   func() error
	logger   *slog.Logger
}

type WorkerApp struct {
	module       votingengine.Module
	bus          *messaging.Bus
	reconcile    bool
	relay        bool
	pollInterval time.Duration
	closer       func() error
	logger       *slog.Logger
}

// storage is one opened store exposing every storage port.
type storage struct {
	votings     ports.VotingRepository
	ledger      ports.VoteLedger
	receipts    ports.NotificationReceiptStore
	idempotency ports.IdempotencyStore
	outbox      ports.OutboxWriter
	outboxRead  ports.OutboxRepository
	clock       ports.Clock
	ids         ports.IDGenerator
	// shared reports whether another process may open the same store.
	shared bool
	close  func() error
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case config.StorePostgres, config.StoreSQLite:
		var (
			handle *db.SQL
			err    error
		)
		if strings.EqualFold(cfg.StoreDriver, config.StorePostgres) {
			handle, err = db.ConnectPostgres(ctx, cfg.PostgresDSN)
		} else {
			handle, err = db.OpenSQLite(cfg.SQLitePath)
		}
		if err != nil {
			return storage{}, err
		}
		repo := postgresadapter.NewRepository(handle.DB, logger)
		if err := repo.Migrate(ctx); err != nil {
			_ = handle.Close()
			return storage{}, fmt.Errorf("migrate %s store: %w", handle.Driver, err)
		}
		return storage{
			votings:     repo,
			ledger:      repo,
			receipts:    repo,
			idempotency: repo,
			outbox:      repo,
			outboxRead:  repo,
			clock:       postgresadapter.SystemClock{},
			ids:         postgresadapter.UUIDGenerator{},
			shared:      handle.Driver == "postgres",
			close:       handle.Close,
		}, nil
	case config.StoreBadger:
		kv, err := db.OpenBadger(cfg.BadgerDir, logger)
		if err != nil {
			return storage{}, err
		}
		store := badgerstore.NewStore(kv, logger)
		return storage{
			votings:     store,
			ledger:      store,
			receipts:    store,
			idempotency: store,
			outbox:      store,
			outboxRead:  store,
			clock:       postgresadapter.SystemClock{},
			ids:         postgresadapter.UUIDGenerator{},
			close:       kv.Close,
		}, nil
	default:
		store := memory.NewStore(nil)
		return storage{
			votings:     store,
			ledger:      store,
			receipts:    store,
			idempotency: store,
			outbox:      store,
			outboxRead:  store,
			clock:       store,
			ids:         store,
			close:       func() error { return nil },
		}, nil
	}
}

// buildModule wires the voting engine over an opened store. The returned
// handler serves /metrics and is nil when metrics are disabled.
func buildModule(
	store storage,
	bus *messaging.Bus,
	cfg config.Config,
	logger *slog.Logger,
) (votingengine.Module, http.Handler) {
	deps := votingengine.Dependencies{
		Votings:        store.votings,
		Ledger:         store.ledger,
		Receipts:       store.receipts,
		Idempotency:    store.idempotency,
		Outbox:         store.outbox,
		OutboxReader:   store.outboxRead,
		Publisher:      bus,
		Clock:          store.clock,
		IDGen:          store.ids,
		IdempotencyTTL: cfg.IdempotencyTTL,
		NotifyTimeout:  cfg.NotifyTimeout,
		SweepBatchSize: cfg.SweepBatchSize,
		OutboxBatch:    cfg.OutboxBatchSize,
		Logger:         logger,
	}
	if strings.TrimSpace(cfg.RosterURL) != "" && strings.TrimSpace(cfg.NotifyURL) != "" {
		deps.Roster = roster.NewClient(cfg.RosterURL)
		deps.Transport = notify.NewClient(cfg.NotifyURL)
	} else {
		logger.Warn("completion notices disabled",
			"event", "bootstrap_notifications_disabled",
			"module", logModule,
			"layer", "platform",
		)
	}

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		deps.Metrics = prometheusmetrics.New(registry)
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	return votingengine.NewModule(deps), metricsHandler
}

func BuildAPI(ctx context.Context, cfg config.Config, logger *slog.Logger) (*APIApp, error) {
	logger = logger.With("service", cfg.ServiceName, "process", "api")
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	bus := messaging.NewBus(0, logger)
	module, metricsHandler := buildModule(store, bus, cfg, logger)

	app := &APIApp{
		server: httpserver.New(module, metricsHandler, logger, normalizeAddr(cfg.HTTPPort)),
		closer: store.close,
		logger: logger,
	}
	// Embedded stores cannot be shared with a separate worker process.
	if !store.shared {
		app.embedded = newWorkerApp(module, bus, cfg, nil, logger)
	}
	return app, nil
}

func BuildWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*WorkerApp, error) {
	logger = logger.With("service", cfg.ServiceName, "process", "worker")
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	bus := messaging.NewBus(0, logger)
	module, _ := buildModule(store, bus, cfg, logger)
	return newWorkerApp(module, bus, cfg, store.close, logger), nil
}

func newWorkerApp(
	module votingengine.Module,
	bus *messaging.Bus,
	cfg config.Config,
	closer func() error,
	logger *slog.Logger,
) *WorkerApp {
	return &WorkerApp{
		module:       module,
		bus:          bus,
		reconcile:    cfg.EnableReconciler,
		relay:        cfg.EnableOutboxRelay && module.Relay.Publisher != nil,
		pollInterval: cfg.ReconcileInterval,
		closer:       closer,
		logger:       logger,
	}
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", logModule,
		"layer", "platform",
		"embedded_workers", a.embedded != nil,
	)
	if a.embedded == nil {
		return a.server.Run(ctx)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })
	g.Go(func() error { return a.embedded.Run(gctx) })
	return g.Wait()
}

func (a *APIApp) Close() error {
	if a.closer != nil {
		return a.closer()
	}
	return nil
}

// Run drives the reconciler and outbox relay on the poll interval until ctx
// is cancelled. Cycle failures are logged by the workers and retried on the
// next tick.
func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", logModule,
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"reconciler", w.reconcile,
		"outbox_relay", w.relay,
	)

	// Request paths only close ballots; the completion notice goes out here
	// as soon as the relay publishes voting.completed.
	w.bus.Subscribe(ctx, contractsv1.EventVotingCompleted, "voting-completion-notices", w.module.Dispatcher.Handle)

	g, gctx := errgroup.WithContext(ctx)
	if w.reconcile {
		g.Go(func() error {
			return w.loop(gctx, "reconciler", w.module.Reconciler.RunOnce)
		})
	}
	if w.relay {
		g.Go(func() error {
			return w.loop(gctx, "outbox_relay", w.module.Relay.RunOnce)
		})
	}
	err := g.Wait()
	w.bus.Wait()
	return err
}

func (w *WorkerApp) loop(ctx context.Context, name string, runOnce func(context.Context) error) error {
	interval := w.pollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("worker cycle failed",
				"event", "bootstrap_worker_cycle_failed",
				"module", logModule,
				"layer", "platform",
				"worker", name,
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.closer != nil {
		return w.closer()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.Contains(value, ":") {
		return value
	}
	return ":" + value
}
