package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Inspector is the subset of asynq.Inspector the CLI reads from.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector Inspector
	closers   []func() error
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	c := NewJobsCLIWith(client, inspector)
	c.closers = []func() error{inspector.Close, client.Close}
	return c, nil
}

// NewJobsCLIWith builds the CLI over an existing enqueuer and inspector.
func NewJobsCLIWith(enqueuer jobs.Enqueuer, inspector Inspector) *JobsCLI {
	c := &JobsCLI{inspector: inspector}
	if enqueuer != nil {
		c.client = jobs.NewClient(enqueuer)
	}
	return c
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// TriggerOptions carries the arguments of a manual trigger.
type TriggerOptions struct {
	Args           []string
	Repair         bool
	RetentionHours int
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskLedgerRecalculate:
		pair, err := parsePair(opts.Args)
		if err != nil {
			return nil, err
		}
		if pair == nil {
			return nil, errors.New("jobs cli: recalculate needs <chart_account_id> <organization_id>")
		}
		return c.client.EnqueueRecalculate(ctx, *pair)
	case jobs.TaskLedgerIntegrity:
		pair, err := parsePair(opts.Args)
		if err != nil {
			return nil, err
		}
		return c.client.EnqueueIntegrity(ctx, jobs.IntegrityPayload{Pair: pair, Repair: opts.Repair})
	case jobs.TaskIdempotencyCleanup:
		return c.client.EnqueueCleanup(ctx, opts.RetentionHours)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

func parsePair(args []string) (*ledger.Pair, error) {
	switch len(args) {
	case 0:
		return nil, nil
	case 2:
	default:
		return nil, fmt.Errorf("jobs cli: expected 0 or 2 pair arguments, got %d", len(args))
	}
	accountID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("jobs cli: chart account id: %w", err)
	}
	orgID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("jobs cli: organization id: %w", err)
	}
	return &ledger.Pair{ChartAccountID: accountID, OrganizationID: orgID}, nil
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}
