package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/workflow"
)

const idempotencyModule = "ledger.entry"

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	// WithTx runs fn in a read-write transaction; any error rolls back.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// WithReadTx runs fn against a consistent read-only snapshot.
	WithReadTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort de-duplicates replayed write requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Currency    string
	Cache       *Cache
	Idempotency IdempotencyPort
	Metrics     *observability.LedgerMetrics
	Logger      *slog.Logger
}

// Service builds ledgers and keeps stored running balances consistent.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	cache     *Cache
	idem      IdempotencyPort
	metrics   *observability.LedgerMetrics
	logger    *slog.Logger
	assembler *ledger.Assembler
	gate      *workflow.Gate[ledger.EntryStatus, ledger.Entry]
	validate  *validator.Validate
	builds    singleflight.Group
	now       func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	currency := cfg.Currency
	if currency == "" {
		currency = "BRL"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		audit:     audit,
		cache:     cfg.Cache,
		idem:      cfg.Idempotency,
		metrics:   cfg.Metrics,
		logger:    logger,
		assembler: ledger.NewAssembler(currency),
		gate:      ledger.NewEntryGate(),
		validate:  validator.New(),
		now:       time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.gate.WithNow(now)
	}
}

// BuildLedger assembles the ledger view for the filters inside one read-only
// snapshot. Results are cached until the next ledger write.
func (s *Service) BuildLedger(ctx context.Context, f ledger.Filters) ([]ledger.Row, error) {
	if err := s.validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if f.Currency != "" {
		code, err := ledger.NormalizeCurrency(f.Currency)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		f.Currency = code
	}
	f = f.Normalized()

	start := s.now()
	key, err := s.cache.BuildKey(ctx, ledgerCacheKey(f)...)
	if err != nil {
		s.logger.Warn("ledger cache key", slog.Any("error", err))
		key = ""
	}

	var res buildResult
	if key == "" {
		res.rows, err = s.build(ctx, f)
	} else {
		res, err, _ = singleflightBuild(ctx, &s.builds, key, func(ctx context.Context) (buildResult, error) {
			rows, hit, err := s.cache.fetchRows(ctx, key, func(ctx context.Context) ([]ledger.Row, error) {
				return s.build(ctx, f)
			})
			return buildResult{rows: rows, hit: hit}, err
		})
	}
	s.metrics.ObserveBuild(res.hit, len(res.rows), s.now().Sub(start), err)
	if err != nil {
		return nil, err
	}
	return slices.Clone(res.rows), nil
}

func (s *Service) build(ctx context.Context, f ledger.Filters) ([]ledger.Row, error) {
	var rows []ledger.Row
	err := s.repo.WithReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		built, err := s.assembler.Build(ctx, tx, f)
		if err != nil {
			return err
		}
		rows = built
		return nil
	})
	return rows, err
}

// RecordEntry persists a new entry and recalculates its pair in the same
// transaction. If recalculation fails the insert is rolled back.
func (s *Service) RecordEntry(ctx context.Context, input RecordEntryInput) (ledger.Entry, error) {
	if err := s.validate.Struct(input); err != nil {
		return ledger.Entry{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	entry, err := ledger.NewEntry(input.params(), s.now())
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	pair, _ := ledger.PairOf(entry)

	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ledger.Entry{}, ErrDuplicateRequest
			}
			return ledger.Entry{}, err
		}
	}

	var stored ledger.Entry
	var recalc Recalculation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockPair(ctx, pair); err != nil {
			return err
		}
		inserted, err := tx.Insert(ctx, entry)
		if err != nil {
			return err
		}
		result, balances, err := recalculate(ctx, tx, pair)
		if err != nil {
			return err
		}
		if balance, ok := balances[inserted.ID]; ok {
			inserted.Balance = balance
		}
		stored, recalc = inserted, result
		return nil
	})
	s.metrics.ObserveRecalculation("insert", recalc.Updated, err)
	if err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, input.IdempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", input.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		return ledger.Entry{}, err
	}

	s.invalidate(ctx)
	s.record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "ledger.entry.record",
		Entity:   "accounting_entry",
		EntityID: strconv.FormatInt(stored.ID, 10),
		Meta: map[string]any{
			"uuid":             stored.UUID.String(),
			"chart_account_id": pair.ChartAccountID,
			"organization_id":  pair.OrganizationID,
			"debit":            stored.Debit.StringFixed(ledger.MinorScale),
			"credit":           stored.Credit.StringFixed(ledger.MinorScale),
			"rewritten":        recalc.Updated,
		},
	})
	return stored, nil
}

// ChangeEntryStatus moves an entry along EntryTransitions and recalculates its
// pair, since only active entries contribute to balances.
func (s *Service) ChangeEntryStatus(ctx context.Context, input ChangeStatusInput) (ledger.Entry, error) {
	if err := s.validate.Struct(input); err != nil {
		return ledger.Entry{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var updated ledger.Entry
	var previous ledger.EntryStatus
	var recalc Recalculation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntry(ctx, input.EntryID)
		if err != nil {
			return err
		}
		pair, ok := ledger.PairOf(current)
		if !ok {
			return ErrSystemEntry
		}
		// Pair lock first, row second: the same order RecordEntry uses.
		if err := tx.LockPair(ctx, pair); err != nil {
			return err
		}
		current, err = tx.GetEntryForUpdate(ctx, input.EntryID)
		if err != nil {
			return err
		}
		next, err := s.gate.Attempt(ctx, current, input.To)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.now().UTC()
		if err := tx.UpdateStatus(ctx, next.ID, next.Status, next.UpdatedAt); err != nil {
			return err
		}
		result, balances, err := recalculate(ctx, tx, pair)
		if err != nil {
			return err
		}
		if balance, ok := balances[next.ID]; ok {
			next.Balance = balance
		}
		previous, updated, recalc = current.Status, next, result
		return nil
	})
	if errors.Is(err, workflow.ErrIllegalTransition) {
		s.metrics.IllegalTransition("accounting_entry")
		return ledger.Entry{}, err
	}
	s.metrics.ObserveRecalculation("status", recalc.Updated, err)
	if err != nil {
		return ledger.Entry{}, err
	}

	s.invalidate(ctx)
	s.record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "ledger.entry.status",
		Entity:   "accounting_entry",
		EntityID: strconv.FormatInt(updated.ID, 10),
		Meta: map[string]any{
			"from":   string(previous),
			"to":     string(updated.Status),
			"reason": input.Reason,
		},
	})
	return updated, nil
}

// AvailableEntryTransitions lists the statuses an entry may move to.
func (s *Service) AvailableEntryTransitions(status ledger.EntryStatus) []workflow.Option[ledger.EntryStatus] {
	return ledger.EntryTransitions.Available(status)
}

// Recalculate rewrites the stored running balances of a pair. It is
// idempotent: a second run over unchanged entries rewrites nothing.
func (s *Service) Recalculate(ctx context.Context, pair ledger.Pair) (Recalculation, error) {
	if err := s.validate.Struct(pair); err != nil {
		return Recalculation{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var result Recalculation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockPair(ctx, pair); err != nil {
			return err
		}
		res, _, err := recalculate(ctx, tx, pair)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	s.metrics.ObserveRecalculation("manual", result.Updated, err)
	if err != nil {
		return Recalculation{}, err
	}
	if result.Updated > 0 {
		s.invalidate(ctx)
	}
	return result, nil
}

// Verify compares stored balances of a pair with a fresh fold without writing.
func (s *Service) Verify(ctx context.Context, pair ledger.Pair) (IntegrityReport, error) {
	if err := s.validate.Struct(pair); err != nil {
		return IntegrityReport{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	report := IntegrityReport{Pair: pair, Mismatches: []BalanceMismatch{}}
	err := s.repo.WithReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entries, err := tx.FetchOrdered(ctx, ledger.EntryFilter{Scope: ledger.ScopeOf(pair)})
		if err != nil {
			return err
		}
		folded, _, err := ledger.Accumulate(decimal.Zero, entries)
		if err != nil {
			return err
		}
		report.Checked = len(folded)
		for i, entry := range folded {
			if !entry.Balance.Equal(entries[i].Balance) {
				report.Mismatches = append(report.Mismatches, BalanceMismatch{
					EntryID:  entry.ID,
					Stored:   entries[i].Balance,
					Expected: entry.Balance,
				})
			}
		}
		return nil
	})
	if err != nil {
		return IntegrityReport{}, err
	}
	return report, nil
}

// Pairs lists every (chart account, organization) pair with entries.
func (s *Service) Pairs(ctx context.Context) ([]ledger.Pair, error) {
	var pairs []ledger.Pair
	err := s.repo.WithReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		listed, err := tx.ListPairs(ctx)
		if err != nil {
			return err
		}
		pairs = listed
		return nil
	})
	return pairs, err
}

// recalculate folds the pair's active entries from zero and persists every
// balance that changed. The caller must hold the pair lock.
func recalculate(ctx context.Context, tx TxRepository, pair ledger.Pair) (Recalculation, map[int64]decimal.Decimal, error) {
	entries, err := tx.FetchOrdered(ctx, ledger.EntryFilter{Scope: ledger.ScopeOf(pair)})
	if err != nil {
		return Recalculation{}, nil, err
	}
	folded, final, err := ledger.Accumulate(decimal.Zero, entries)
	if err != nil {
		return Recalculation{}, nil, err
	}
	result := Recalculation{Pair: pair, Entries: len(folded), Balance: final}
	balances := make(map[int64]decimal.Decimal, len(folded))
	for i, entry := range folded {
		balances[entry.ID] = entry.Balance
		if entry.Balance.Equal(entries[i].Balance) {
			continue
		}
		if err := tx.UpdateBalance(ctx, entry.ID, entry.Balance); err != nil {
			return Recalculation{}, nil, err
		}
		result.Updated++
	}
	return result, balances, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("ledger cache bump", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	log.At = s.now()
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("ledger audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}
