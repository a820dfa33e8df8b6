package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/br7tech/billdesk/jobs"
)

type stubEnqueuer struct {
	triggered []string
	closed    bool
}

func (s *stubEnqueuer) Trigger(ctx context.Context, taskType string) (*asynq.TaskInfo, error) {
	s.triggered = append(s.triggered, taskType)
	return &asynq.TaskInfo{ID: "task-1", Type: taskType, Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error {
	s.closed = true
	return nil
}

type stubInspector struct {
	info      *asynq.QueueInfo
	err       error
	scheduled []*asynq.TaskInfo
}

func (s *stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func (s *stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, nil
}

func (s *stubInspector) Close() error { return nil }

func TestTriggerKnownJobs(t *testing.T) {
	enq := &stubEnqueuer{}
	c := NewJobsCLIWith(enq, nil)

	info, err := c.Trigger(context.Background(), jobs.TaskSessionSweep)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskSessionSweep, info.Type)

	_, err = c.Trigger(context.Background(), jobs.TaskIdempotencyCleanup)
	require.NoError(t, err)
	require.Equal(t, []string{jobs.TaskSessionSweep, jobs.TaskIdempotencyCleanup}, enq.triggered)

	require.NoError(t, c.Close())
	require.True(t, enq.closed)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	enq := &stubEnqueuer{}
	c := NewJobsCLIWith(enq, nil)

	_, err := c.Trigger(context.Background(), "reports:rebuild")
	require.ErrorContains(t, err, "unsupported job")
	require.Empty(t, enq.triggered)
}

func TestInspectQueue(t *testing.T) {
	c := NewJobsCLIWith(nil, &stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}})

	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}, stats)

	var out bytes.Buffer
	require.NoError(t, WriteStats(&out, stats))
	require.Contains(t, out.String(), "PENDING")
	require.Contains(t, out.String(), "default")
}

func TestInspectQueueErrors(t *testing.T) {
	_, err := NewJobsCLIWith(nil, nil).InspectQueue(context.Background())
	require.Error(t, err)

	boom := errors.New("redis down")
	_, err = NewJobsCLIWith(nil, &stubInspector{err: boom}).InspectQueue(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestListScheduledDefaultsPageSize(t *testing.T) {
	want := []*asynq.TaskInfo{{ID: "a", Type: jobs.TaskSessionSweep}}
	got, err := NewJobsCLIWith(nil, &stubInspector{scheduled: want}).ListScheduled(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
