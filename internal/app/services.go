package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sqlite"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Services holds the domain services built for the configured storage
// driver together with the resources they own.
type Services struct {
	Ledger      *accounting.Service
	Accounts    *accounts.Service
	Procurement *procurement.Service
	// KeyCleaner prunes idempotency keys; nil unless the driver stores them
	// in a table.
	KeyCleaner *shared.IdempotencyStore
	Redis      *redis.Client

	health  func(ctx context.Context) error
	closers []func() error
}

// OpenServices connects storage for cfg.DBDriver and builds the services.
// Redis is optional: when it is unreachable the ledger cache is disabled.
func OpenServices(ctx context.Context, cfg *Config, logger *slog.Logger, registerer prometheus.Registerer) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{health: func(context.Context) error { return nil }}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, ledger cache disabled", slog.Any("error", err))
	} else {
		s.Redis = redisClient
		s.closers = append(s.closers, redisClient.Close)
	}

	ledgerCfg := accounting.ServiceConfig{
		Currency: cfg.LedgerCurrency,
		Metrics:  observability.NewLedgerMetrics(registerer),
		Logger:   logger,
	}
	procurementCfg := procurement.ServiceConfig{Metrics: ledgerCfg.Metrics, Logger: logger}
	if s.Redis != nil {
		ledgerCfg.Cache = accounting.NewCache(s.Redis, cfg.LedgerCacheTTL)
		ledgerCfg.Idempotency = shared.NewRedisIdempotency(s.Redis, 0)
	}

	switch cfg.DBDriver {
	case DriverPostgres:
		if cfg.MigrateOnStart {
			if err := db.Migrate(cfg.PGDSN); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("app: migrate: %w", err)
			}
		}
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		s.health = pool.Ping
		s.KeyCleaner = shared.NewIdempotencyStore(pool)
		ledgerCfg.Idempotency = s.KeyCleaner
		procurementCfg.Approvals = shared.NewApprovalRecorder(pool, logger)
		audit := shared.NewAuditLogger(pool)
		s.Ledger = accounting.NewService(accounting.NewRepository(pool), audit, ledgerCfg)
		s.Accounts = accounts.NewService(accounts.NewRepository(pool))
		s.Procurement = procurement.NewService(procurement.NewRepository(pool), shared.NewAssignmentStore(pool), audit, procurementCfg)
		return s, nil
	case DriverSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		s.health = store.Ping
		s.Ledger = accounting.NewService(store, shared.NewLogAuditor(logger), ledgerCfg)
	case DriverMemory:
		s.Ledger = accounting.NewService(accounting.NewMemoryRepository(), shared.NewLogAuditor(logger), ledgerCfg)
	default:
		_ = s.Close()
		return nil, fmt.Errorf("app: unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	s.Accounts = accounts.NewService(accounts.NewMemoryRepository())
	procurementCfg.Approvals = shared.NewMemoryApprovals()
	s.Procurement = procurement.NewService(procurement.NewMemoryRepository(), shared.NewMemoryAssignments(), shared.NewLogAuditor(logger), procurementCfg)
	return s, nil
}

// Health reports whether the primary storage is reachable.
func (s *Services) Health(ctx context.Context) error {
	if s == nil || s.health == nil {
		return nil
	}
	return s.health(ctx)
}

// Close releases every resource in reverse acquisition order.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
