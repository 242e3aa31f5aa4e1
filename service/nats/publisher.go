package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/mintsales/service/classify"
	"github.com/brojonat/mintsales/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing record events to NATS.
type Publisher interface {
	// PublishRecord publishes a single record event to JetStream.
	// The event is published to the subject "records.{stream}".
	PublishRecord(ctx context.Context, event *RecordEvent) error

	// PublishRecordBatch publishes multiple record events.
	PublishRecordBatch(ctx context.Context, events []*RecordEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes record events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for records.
	StreamName = "RECORDS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "records.*"

	// StreamRetention is how long messages are retained (90 days by default).
	StreamRetention = 90 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. If metrics is nil, no
// metrics will be recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("mintsales-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Classified mint, purchase and resale records",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishRecord publishes a single record event. The record signature is
// used as the message ID so JetStream drops duplicates from re-runs.
func (p *JetStreamPublisher) PublishRecord(ctx context.Context, event *RecordEvent) error {
	subject := Subject(event.Stream)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal record event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.Stream+":"+event.Signature))
	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}

	p.logger.Debug("published record event",
		"subject", subject,
		"signature", event.Signature,
	)
	return nil
}

// PublishRecordBatch publishes every event, logging failures and reporting
// how many failed once the batch is done.
func (p *JetStreamPublisher) PublishRecordBatch(ctx context.Context, events []*RecordEvent) error {
	failed := 0
	for _, event := range events {
		if err := p.PublishRecord(ctx, event); err != nil {
			p.logger.Error("failed to publish record in batch",
				"signature", event.Signature,
				"stream", event.Stream,
				"error", err,
			)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d record events failed to publish", failed, len(events))
	}
	p.logger.Debug("published record batch", "count", len(events))
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// RecordSink exports records by publishing them.
type RecordSink struct {
	publisher Publisher
}

// NewRecordSink wraps publisher as an export sink.
func NewRecordSink(publisher Publisher) *RecordSink {
	return &RecordSink{publisher: publisher}
}

func (s *RecordSink) Name() string { return "nats" }

func (s *RecordSink) Export(ctx context.Context, stream string, records []*classify.Record) error {
	events := make([]*RecordEvent, 0, len(records))
	for _, rec := range records {
		event, err := FromRecord(stream, rec)
		if err != nil {
			return err
		}
		events = append(events, event)
	}
	if len(events) == 0 {
		return nil
	}
	return s.publisher.PublishRecordBatch(ctx, events)
}
