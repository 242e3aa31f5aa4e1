package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/brojonat/mintsales/service/classify"
	"github.com/brojonat/mintsales/service/ingest"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/converter"
	temporalsdk "go.temporal.io/sdk/temporal"
)

type MockPipeline struct {
	mock.Mock
	stream ingest.Stream
}

func (m *MockPipeline) Stream() ingest.Stream {
	return m.stream
}

func (m *MockPipeline) Sync(ctx context.Context) (*ingest.SyncResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.SyncResult), args.Error(1)
}

func (m *MockPipeline) Classify(ctx context.Context, sigs []solanago.Signature) (*ingest.Report, error) {
	args := m.Called(ctx, sigs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Report), args.Error(1)
}

func (m *MockPipeline) Export(ctx context.Context, records []*classify.Record) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSignature(i byte) solanago.Signature {
	var sig solanago.Signature
	sig[0] = i
	sig[63] = i
	return sig
}

func newTestActivities(p *MockPipeline) *Activities {
	factory := func(stream string) (StreamPipeline, error) {
		if stream != p.stream.Name {
			return nil, errors.New("unknown stream")
		}
		return p, nil
	}
	return NewActivities(factory, nil, discardLogger())
}

func requireNonRetryable(t *testing.T, err error, errType string) {
	t.Helper()
	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected application error, got %v", err)
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, errType, appErr.Type())
}

func TestIngestStream(t *testing.T) {
	p := &MockPipeline{stream: ingest.Stream{Name: "mints"}}
	sigs := []solanago.Signature{testSignature(3), testSignature(2), testSignature(1)}
	records := []*classify.Record{
		{Kind: classify.KindMint, Signature: testSignature(1).String()},
		{Kind: classify.KindMint, Signature: testSignature(3).String()},
	}

	p.On("Sync", mock.Anything).Return(&ingest.SyncResult{
		Signatures:  sigs,
		NewlyCached: 1,
		Elapsed:     1500 * time.Millisecond,
	}, nil)
	p.On("Classify", mock.Anything, sigs).Return(&ingest.Report{
		Records:      records,
		Unrecognized: []string{testSignature(2).String()},
	}, nil)
	p.On("Export", mock.Anything, records).Return(nil)

	res, err := newTestActivities(p).IngestStream(context.Background(), IngestStreamInput{
		Stream:    "mints",
		StartedAt: time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, "mints", res.Stream)
	assert.Equal(t, 3, res.Signatures)
	assert.Equal(t, 1, res.NewlyCached)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 1, res.Unrecognized)
	assert.Equal(t, 0, res.Errored)
	assert.InDelta(t, 1.5, res.ElapsedSeconds, 0.001)
	p.AssertExpectations(t)
}

func TestIngestStream_ResultSizeIndependentOfHistory(t *testing.T) {
	dc := converter.GetDefaultDataConverter()

	sizeFor := func(n int) int {
		p := &MockPipeline{stream: ingest.Stream{Name: "secondary"}}
		unrecognized := make([]string, n/2)
		for i := range unrecognized {
			unrecognized[i] = testSignature(byte(i)).String()
		}
		p.On("Sync", mock.Anything).Return(&ingest.SyncResult{
			Signatures:  make([]solanago.Signature, n),
			NewlyCached: n,
		}, nil)
		p.On("Classify", mock.Anything, mock.Anything).Return(&ingest.Report{Unrecognized: unrecognized}, nil)
		p.On("Export", mock.Anything, mock.Anything).Return(nil)

		res, err := newTestActivities(p).IngestStream(context.Background(), IngestStreamInput{Stream: "secondary"})
		require.NoError(t, err)
		assert.Equal(t, n, res.Signatures)

		payload, err := dc.ToPayload(res)
		require.NoError(t, err)
		return len(payload.GetData())
	}

	small := sizeFor(10)
	large := sizeFor(100_000)
	assert.Less(t, large, 1024)
	assert.LessOrEqual(t, large-small, 32, "only the digits of the counts may grow")
}

func TestIngestStream_PrerequisiteMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "Metaverse_Purchases.csv")
	p := &MockPipeline{stream: ingest.Stream{Name: "mints", Requires: []string{missing}}}

	_, err := newTestActivities(p).IngestStream(context.Background(), IngestStreamInput{Stream: "mints"})
	require.Error(t, err)
	requireNonRetryable(t, err, ErrTypePrerequisiteMissing)
	p.AssertNotCalled(t, "Sync", mock.Anything)
}

func TestIngestStream_FetchErrorIsRetryable(t *testing.T) {
	p := &MockPipeline{stream: ingest.Stream{Name: "purchases"}}
	p.On("Sync", mock.Anything).Return(nil, errors.New("429 Too Many Requests"))

	_, err := newTestActivities(p).IngestStream(context.Background(), IngestStreamInput{Stream: "purchases"})
	require.Error(t, err)

	var appErr *temporalsdk.ApplicationError
	assert.False(t, errors.As(err, &appErr))
	p.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestIngestStream_UnknownStream(t *testing.T) {
	p := &MockPipeline{stream: ingest.Stream{Name: "purchases"}}

	_, err := newTestActivities(p).IngestStream(context.Background(), IngestStreamInput{Stream: "bogus"})
	require.Error(t, err)
	requireNonRetryable(t, err, ErrTypeUnknownStream)
}

func TestIngestStream_MalformedIsNotRetried(t *testing.T) {
	p := &MockPipeline{stream: ingest.Stream{Name: "mints"}}
	p.On("Sync", mock.Anything).Return(&ingest.SyncResult{}, nil)
	p.On("Classify", mock.Anything, mock.Anything).Return(nil,
		&classify.MalformedTransactionError{Signature: "x", Field: "meta", Reason: "missing"})

	_, err := newTestActivities(p).IngestStream(context.Background(), IngestStreamInput{Stream: "mints"})
	require.Error(t, err)
	requireNonRetryable(t, err, ErrTypeMalformedTransaction)
	p.AssertNotCalled(t, "Export", mock.Anything, mock.Anything)
}

func TestIngestStream_ExportErrorIsRetryable(t *testing.T) {
	p := &MockPipeline{stream: ingest.Stream{Name: "mints"}}
	p.On("Sync", mock.Anything).Return(&ingest.SyncResult{}, nil)
	p.On("Classify", mock.Anything, mock.Anything).Return(&ingest.Report{}, nil)
	p.On("Export", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := newTestActivities(p).IngestStream(context.Background(), IngestStreamInput{Stream: "mints"})
	require.Error(t, err)

	var appErr *temporalsdk.ApplicationError
	assert.False(t, errors.As(err, &appErr))
}

func TestScheduleStreams(t *testing.T) {
	ctx := context.Background()
	s := NewMockScheduler()

	require.NoError(t, ScheduleStreams(ctx, s, []string{"purchases", "mints", "secondary"}, time.Hour))
	assert.Equal(t, 3, s.ScheduleCount())

	interval, ok := s.GetScheduleInterval("mints")
	require.True(t, ok)
	assert.Equal(t, time.Hour, interval)

	// Upsert replaces the interval rather than adding a schedule.
	require.NoError(t, ScheduleStreams(ctx, s, []string{"mints"}, 2*time.Hour))
	assert.Equal(t, 3, s.ScheduleCount())
	interval, _ = s.GetScheduleInterval("mints")
	assert.Equal(t, 2*time.Hour, interval)

	require.NoError(t, s.DeleteStreamSchedule(ctx, "mints"))
	assert.Error(t, s.DeleteStreamSchedule(ctx, "mints"))
	assert.Equal(t, 2, s.ScheduleCount())
}

func TestScheduleStreams_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewMockScheduler()

	assert.Error(t, ScheduleStreams(ctx, s, []string{"mints"}, 30*time.Second))
	assert.Equal(t, 0, s.ScheduleCount())

	s.SetCreateError(errors.New("temporal unavailable"))
	assert.Error(t, ScheduleStreams(ctx, s, []string{"mints"}, time.Hour))
}
