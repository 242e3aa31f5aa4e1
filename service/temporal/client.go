package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

var _ Scheduler = (*Client)(nil)

// ScheduleSummary describes one stream schedule.
type ScheduleSummary struct {
	ID       string
	Stream   string
	Interval time.Duration
	Paused   bool
	NextRun  *time.Time
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) createStreamSchedule(ctx context.Context, stream string, interval time.Duration) error {
	id := scheduleID(stream)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        workflowID(stream),
			Workflow:  SyncStreamWorkflow,
			TaskQueue: c.taskQueue,
			Args:      []interface{}{SyncStreamInput{Stream: stream}},
		},
		Memo: map[string]interface{}{
			"stream":     stream,
			"created_by": "mintsales",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule", "stream", stream, "schedule_id", id, "error", err)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("stream schedule created", "stream", stream, "schedule_id", id, "interval", interval)
	return nil
}

// UpsertStreamSchedule creates or updates the schedule for a stream.
// If the schedule already exists, only its interval changes.
func (c *Client) UpsertStreamSchedule(ctx context.Context, stream string, interval time.Duration) error {
	id := scheduleID(stream)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one", "schedule_id", id, "error", err)
		return c.createStreamSchedule(ctx, stream, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule", "stream", stream, "schedule_id", id, "error", err)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("stream schedule updated", "stream", stream, "schedule_id", id, "interval", interval)
	return nil
}

// DeleteStreamSchedule deletes the schedule for a stream.
func (c *Client) DeleteStreamSchedule(ctx context.Context, stream string) error {
	id := scheduleID(stream)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule", "stream", stream, "schedule_id", id, "error", err)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("stream schedule deleted", "stream", stream, "schedule_id", id)
	return nil
}

// ListStreamSchedules returns every schedule created for a stream.
func (c *Client) ListStreamSchedules(ctx context.Context) ([]ScheduleSummary, error) {
	iter, err := c.client.ScheduleClient().List(ctx, client.ScheduleListOptions{PageSize: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	var out []ScheduleSummary
	for iter.HasNext() {
		entry, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to list schedules: %w", err)
		}
		if !strings.HasPrefix(entry.ID, scheduleIDPrefix) {
			continue
		}
		s := ScheduleSummary{
			ID:     entry.ID,
			Stream: strings.TrimPrefix(entry.ID, scheduleIDPrefix),
			Paused: entry.Paused,
		}
		if entry.Spec != nil && len(entry.Spec.Intervals) > 0 {
			s.Interval = entry.Spec.Intervals[0].Every
		}
		if len(entry.NextActionTimes) > 0 {
			next := entry.NextActionTimes[0]
			s.NextRun = &next
		}
		out = append(out, s)
	}
	return out, nil
}

// TriggerStreamSync starts a one-off SyncStreamWorkflow run and waits for it.
func (c *Client) TriggerStreamSync(ctx context.Context, stream string) (*SyncStreamWorkflowResult, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("%s-manual-%d", workflowID(stream), time.Now().Unix()),
		TaskQueue: c.taskQueue,
	}
	run, err := c.client.ExecuteWorkflow(ctx, opts, SyncStreamWorkflow, SyncStreamInput{Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("failed to start sync for stream %s: %w", stream, err)
	}
	c.logger.Info("started stream sync", "stream", stream, "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var result SyncStreamWorkflowResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("sync for stream %s failed: %w", stream, err)
	}
	return &result, nil
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
