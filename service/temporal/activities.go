package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/mintsales/service/classify"
	"github.com/brojonat/mintsales/service/ingest"
	"github.com/brojonat/mintsales/service/metrics"
	solanago "github.com/gagliardetto/solana-go"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Application error types that the workflow never retries.
const (
	ErrTypePrerequisiteMissing  = "PrerequisiteMissing"
	ErrTypeMalformedTransaction = "MalformedTransaction"
	ErrTypeUnknownStream        = "UnknownStream"
)

// SyncStreamInput names the stream a workflow run ingests.
type SyncStreamInput struct {
	Stream string `json:"stream"`
}

// IngestStreamInput contains parameters for the IngestStream activity.
type IngestStreamInput struct {
	Stream    string    `json:"stream"`
	StartedAt time.Time `json:"started_at"`
}

// IngestStreamResult summarizes one batch pass. It carries counts only: a
// stream's signature history can be far larger than a Temporal payload.
type IngestStreamResult struct {
	Stream         string  `json:"stream"`
	Signatures     int     `json:"signatures"`
	NewlyCached    int     `json:"newly_cached"`
	Records        int     `json:"records"`
	Unrecognized   int     `json:"unrecognized"`
	Errored        int     `json:"errored"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// StreamPipeline is the part of ingest.Pipeline the activities drive.
type StreamPipeline interface {
	Stream() ingest.Stream
	Sync(ctx context.Context) (*ingest.SyncResult, error)
	Classify(ctx context.Context, sigs []solanago.Signature) (*ingest.Report, error)
	Export(ctx context.Context, records []*classify.Record) error
}

// PipelineFactory returns the pipeline for a stream name.
type PipelineFactory func(stream string) (StreamPipeline, error)

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	pipelines PipelineFactory
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(pipelines PipelineFactory, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		pipelines: pipelines,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) pipeline(stream string) (StreamPipeline, error) {
	p, err := a.pipelines(stream)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("no pipeline for stream %q", stream), ErrTypeUnknownStream, err)
	}
	return p, nil
}

// IngestStream runs one full pass over a stream inside a single activity:
// prerequisites, discovery, fetch-and-cache, classification oldest first and
// export. The signature list never leaves the worker.
func (a *Activities) IngestStream(ctx context.Context, input IngestStreamInput) (*IngestStreamResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("IngestStream", input.Stream, time.Since(start).Seconds())
		}
	}()

	p, err := a.pipeline(input.Stream)
	if err != nil {
		return nil, err
	}

	if err := ingest.CheckPrerequisites(p.Stream()); err != nil {
		a.logger.ErrorContext(ctx, "prerequisite missing", "stream", input.Stream, "error", err)
		return nil, nonRetryable(err)
	}

	syncRes, err := p.Sync(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to sync stream", "stream", input.Stream, "error", err)
		return nil, fmt.Errorf("failed to sync stream %s: %w", input.Stream, err)
	}
	a.logger.InfoContext(ctx, "synced stream",
		"stream", input.Stream,
		"signatures", len(syncRes.Signatures),
		"newly_cached", syncRes.NewlyCached,
	)

	report, err := p.Classify(ctx, syncRes.Signatures)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to classify stream", "stream", input.Stream, "error", err)
		return nil, nonRetryable(err)
	}
	if err := p.Export(ctx, report.Records); err != nil {
		a.logger.ErrorContext(ctx, "failed to export records", "stream", input.Stream, "error", err)
		return nil, fmt.Errorf("failed to export stream %s: %w", input.Stream, err)
	}

	if a.metrics != nil && !input.StartedAt.IsZero() {
		a.metrics.RecordWorkflowDuration(input.Stream, "success", time.Since(input.StartedAt).Seconds())
	}

	a.logger.InfoContext(ctx, "classified stream",
		"stream", input.Stream,
		"records", len(report.Records),
		"unrecognized", len(report.Unrecognized),
		"errored", report.Errored,
	)

	return &IngestStreamResult{
		Stream:         input.Stream,
		Signatures:     len(syncRes.Signatures),
		NewlyCached:    syncRes.NewlyCached,
		Records:        len(report.Records),
		Unrecognized:   len(report.Unrecognized),
		Errored:        report.Errored,
		ElapsedSeconds: syncRes.Elapsed.Seconds(),
	}, nil
}

// nonRetryable marks errors that another attempt cannot fix. Anything else is
// returned unchanged so the retry policy applies.
func nonRetryable(err error) error {
	var missing *ingest.PrerequisiteMissingError
	if errors.As(err, &missing) {
		return temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypePrerequisiteMissing, err)
	}
	var malformed *classify.MalformedTransactionError
	if errors.As(err, &malformed) {
		return temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypeMalformedTransaction, err)
	}
	return err
}
