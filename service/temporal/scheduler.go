package temporal

import (
	"context"
	"fmt"
	"time"
)

// Scheduler manages one Temporal schedule per ingestion stream. Each schedule
// triggers SyncStreamWorkflow on its interval.
type Scheduler interface {
	// UpsertStreamSchedule creates the schedule or updates its interval.
	UpsertStreamSchedule(ctx context.Context, stream string, interval time.Duration) error

	// DeleteStreamSchedule removes the schedule so the stream is no longer synced.
	DeleteStreamSchedule(ctx context.Context, stream string) error
}

// ScheduleStreams upserts a schedule for every stream, stopping at the first failure.
func ScheduleStreams(ctx context.Context, s Scheduler, streams []string, interval time.Duration) error {
	if interval < time.Minute {
		return fmt.Errorf("sync interval must be at least 1m, got %s", interval)
	}
	for _, stream := range streams {
		if err := s.UpsertStreamSchedule(ctx, stream, interval); err != nil {
			return fmt.Errorf("failed to schedule stream %s: %w", stream, err)
		}
	}
	return nil
}

const scheduleIDPrefix = "sync-stream-"

// scheduleID returns the Temporal schedule ID for a stream.
func scheduleID(stream string) string {
	return scheduleIDPrefix + stream
}

// workflowID returns the ID used by the schedule's workflow runs.
func workflowID(stream string) string {
	return "sync-" + stream
}
