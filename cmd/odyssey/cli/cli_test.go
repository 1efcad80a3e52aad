package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type enqueuerStub struct {
	tasks []*asynq.Task
}

func (s *enqueuerStub) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (s inspectorStub) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s inspectorStub) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{ID: "cron"}}, s.err
}

func TestTriggerBuildsLedgerTasks(t *testing.T) {
	enq := &enqueuerStub{}
	c := NewJobsCLIWith(enq, nil)
	ctx := context.Background()

	info, err := c.Trigger(ctx, jobs.TaskLedgerIntegrity, TriggerOptions{Repair: true})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskLedgerIntegrity, info.Type)
	var integrity jobs.IntegrityPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &integrity))
	require.True(t, integrity.Repair)
	require.Nil(t, integrity.Pair)

	_, err = c.Trigger(ctx, jobs.TaskLedgerIntegrity, TriggerOptions{Args: []string{"10", "1"}})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(enq.tasks[1].Payload(), &integrity))
	require.Equal(t, int64(10), integrity.Pair.ChartAccountID)

	_, err = c.Trigger(ctx, jobs.TaskLedgerRecalculate, TriggerOptions{Args: []string{"10", "1"}})
	require.NoError(t, err)
	var recalc jobs.RecalculatePayload
	require.NoError(t, json.Unmarshal(enq.tasks[2].Payload(), &recalc))
	require.Equal(t, int64(1), recalc.OrganizationID)

	_, err = c.Trigger(ctx, jobs.TaskIdempotencyCleanup, TriggerOptions{RetentionHours: 12})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 4)
}

func TestTriggerRejectsBadArguments(t *testing.T) {
	c := NewJobsCLIWith(&enqueuerStub{}, nil)
	ctx := context.Background()

	_, err := c.Trigger(ctx, jobs.TaskLedgerRecalculate, TriggerOptions{})
	require.Error(t, err)
	_, err = c.Trigger(ctx, jobs.TaskLedgerRecalculate, TriggerOptions{Args: []string{"x", "1"}})
	require.Error(t, err)
	_, err = c.Trigger(ctx, jobs.TaskLedgerIntegrity, TriggerOptions{Args: []string{"1"}})
	require.Error(t, err)
	_, err = c.Trigger(ctx, "consol:refresh", TriggerOptions{})
	require.Error(t, err)

	_, err = NewJobsCLIWith(nil, nil).Trigger(ctx, jobs.TaskLedgerIntegrity, TriggerOptions{})
	require.Error(t, err)
}

func TestInspectQueue(t *testing.T) {
	c := NewJobsCLIWith(nil, inspectorStub{info: &asynq.QueueInfo{Queue: "default", Pending: 2, Retry: 1}})
	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}, stats)

	scheduled, err := c.ListScheduled(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)

	_, err = NewJobsCLIWith(nil, inspectorStub{err: errors.New("redis down")}).InspectQueue(context.Background())
	require.Error(t, err)
	_, err = NewJobsCLIWith(nil, nil).InspectQueue(context.Background())
	require.Error(t, err)
}

type migratorStub struct {
	version uint
	up      []int
	down    []int
	err     error
}

func (m *migratorStub) Up(steps int) error {
	m.up = append(m.up, steps)
	m.version += 2
	return m.err
}

func (m *migratorStub) Down(steps int) error {
	m.down = append(m.down, steps)
	m.version -= uint(steps)
	return m.err
}

func (m *migratorStub) Version() (uint, bool, error) { return m.version, false, nil }

func TestMigrateCommand(t *testing.T) {
	m := &migratorStub{}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	require.Equal(t, 0, MigrateCommand(m, []string{"up"}, stdout, stderr))
	require.Equal(t, "version=2 dirty=false\n", stdout.String())
	require.Equal(t, []int{0}, m.up)

	stdout.Reset()
	require.Equal(t, 0, MigrateCommand(m, []string{"down", "-steps", "1"}, stdout, stderr))
	require.Equal(t, "version=1 dirty=false\n", stdout.String())

	require.Equal(t, 1, MigrateCommand(m, []string{"down"}, stdout, stderr))
	require.Contains(t, stderr.String(), "down requires -steps > 0")

	require.Equal(t, 2, MigrateCommand(m, []string{"sideways"}, stdout, stderr))
	require.Equal(t, 2, MigrateCommand(m, nil, stdout, stderr))

	failing := &migratorStub{err: errors.New("dirty database")}
	require.Equal(t, 1, MigrateCommand(failing, []string{"up"}, stdout, stderr))
}
