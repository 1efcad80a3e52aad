package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LedgerService is the part of accounting.Service the ledger jobs drive.
type LedgerService interface {
	Pairs(ctx context.Context) ([]ledger.Pair, error)
	Verify(ctx context.Context, pair ledger.Pair) (accounting.IntegrityReport, error)
	Recalculate(ctx context.Context, pair ledger.Pair) (accounting.Recalculation, error)
}

// SweepResult summarises one integrity sweep.
type SweepResult struct {
	Pairs        int `json:"pairs"`
	Inconsistent int `json:"inconsistent"`
	Mismatches   int `json:"mismatches"`
	Repaired     int `json:"repaired"`
}

// LedgerJobs handles the ledger recalculation and integrity tasks.
type LedgerJobs struct {
	Service     LedgerService
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Parallelism int
	clock       func() time.Time
}

// NewLedgerJobs constructs the ledger job handlers.
func NewLedgerJobs(service LedgerService, logger *slog.Logger, metrics *jobmetrics.Metrics, parallelism int) *LedgerJobs {
	return &LedgerJobs{
		Service:     service,
		Logger:      logger,
		Metrics:     metrics,
		Parallelism: parallelism,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleRecalculate processes TaskLedgerRecalculate.
func (j *LedgerJobs) HandleRecalculate(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("ledger recalculate: service not configured")
	}
	var payload RecalculatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerRecalculate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log(TaskLedgerRecalculate).With(
		slog.Int64("chart_account_id", payload.ChartAccountID),
		slog.Int64("organization_id", payload.OrganizationID),
	)
	result, err := j.Service.Recalculate(ctx, payload.Pair())
	if errors.Is(err, accounting.ErrInvalidInput) {
		resultErr = fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		logger.Warn("invalid recalculation payload", slog.Any("error", err))
		return resultErr
	}
	if err != nil {
		resultErr = err
		logger.Error("recalculate failed", slog.Any("error", err))
		return resultErr
	}
	logger.Info("recalculated ledger balances", slog.Int("entries", result.Entries), slog.Int("updated", result.Updated))
	return resultErr
}

// HandleIntegrity processes TaskLedgerIntegrity.
func (j *LedgerJobs) HandleIntegrity(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("ledger integrity: service not configured")
	}
	var payload IntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	result, err := j.Sweep(ctx, payload)
	logger := j.log(TaskLedgerIntegrity)
	if err != nil {
		resultErr = err
		logger.Error("integrity sweep failed", slog.Any("error", err))
		return resultErr
	}
	logger.Info("completed integrity sweep",
		slog.Int("pairs", result.Pairs),
		slog.Int("inconsistent", result.Inconsistent),
		slog.Int("mismatches", result.Mismatches),
		slog.Int("repaired", result.Repaired),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

// Sweep verifies every requested pair concurrently, bounded by Parallelism,
// and recalculates the inconsistent ones when payload.Repair is set.
func (j *LedgerJobs) Sweep(ctx context.Context, payload IntegrityPayload) (SweepResult, error) {
	var pairs []ledger.Pair
	if payload.Pair != nil {
		pairs = []ledger.Pair{*payload.Pair}
	} else {
		listed, err := j.Service.Pairs(ctx)
		if err != nil {
			return SweepResult{}, err
		}
		pairs = listed
	}

	var mu sync.Mutex
	result := SweepResult{Pairs: len(pairs)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.parallelism())
	for _, pair := range pairs {
		g.Go(func() error {
			report, err := j.Service.Verify(gctx, pair)
			if err != nil {
				return fmt.Errorf("verify %d/%d: %w", pair.ChartAccountID, pair.OrganizationID, err)
			}
			if report.Consistent() {
				return nil
			}
			j.log(TaskLedgerIntegrity).Warn("ledger balances out of sync",
				slog.Int64("chart_account_id", pair.ChartAccountID),
				slog.Int64("organization_id", pair.OrganizationID),
				slog.Int("mismatches", len(report.Mismatches)),
			)
			j.metrics().AddMismatches(pair.OrganizationID, len(report.Mismatches))
			repaired := false
			if payload.Repair {
				if _, err := j.Service.Recalculate(gctx, pair); err != nil {
					return fmt.Errorf("repair %d/%d: %w", pair.ChartAccountID, pair.OrganizationID, err)
				}
				repaired = true
				j.metrics().AddRepair(pair.OrganizationID)
			}
			mu.Lock()
			defer mu.Unlock()
			result.Inconsistent++
			result.Mismatches += len(report.Mismatches)
			if repaired {
				result.Repaired++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (j *LedgerJobs) parallelism() int {
	if j.Parallelism > 0 {
		return j.Parallelism
	}
	return 1
}

func (j *LedgerJobs) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LedgerJobs) log(job string) *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func (j *LedgerJobs) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *LedgerJobs) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
