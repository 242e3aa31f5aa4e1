package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// SyncStreamWorkflowResult summarizes one scheduled batch pass.
type SyncStreamWorkflowResult struct {
	Stream       string    `json:"stream"`
	StartedAt    time.Time `json:"started_at"`
	Signatures   int       `json:"signatures"`
	NewlyCached  int       `json:"newly_cached"`
	Records      int       `json:"records"`
	Unrecognized int       `json:"unrecognized"`
	Errored      int       `json:"errored"`
}

// SyncStreamWorkflow runs one batch pass over a stream. It is triggered by a
// per-stream Temporal schedule. The whole pass runs in the IngestStream
// activity so the stream's signature history stays out of workflow history.
//
// Missing prerequisites and malformed documents fail the run without retries.
func SyncStreamWorkflow(ctx workflow.Context, input SyncStreamInput) (*SyncStreamWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SyncStreamWorkflow started", "stream", input.Stream)

	result := &SyncStreamWorkflowResult{
		Stream:    input.Stream,
		StartedAt: workflow.Now(ctx),
	}

	// A full history pass can take a long time on a throttled endpoint.
	ingestCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    15 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    3,
		},
	})

	ingestInput := IngestStreamInput{
		Stream:    input.Stream,
		StartedAt: result.StartedAt,
	}
	var ingestResult *IngestStreamResult
	err := workflow.ExecuteActivity(ingestCtx, a.IngestStream, ingestInput).Get(ctx, &ingestResult)
	if err != nil {
		logger.Error("failed to ingest stream", "stream", input.Stream, "error", err)
		return result, fmt.Errorf("failed to ingest stream: %w", err)
	}
	result.Signatures = ingestResult.Signatures
	result.NewlyCached = ingestResult.NewlyCached
	result.Records = ingestResult.Records
	result.Unrecognized = ingestResult.Unrecognized
	result.Errored = ingestResult.Errored

	logger.Info("SyncStreamWorkflow completed",
		"stream", input.Stream,
		"signatures", result.Signatures,
		"newly_cached", result.NewlyCached,
		"records", result.Records,
	)
	return result, nil
}
