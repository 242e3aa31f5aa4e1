package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/mintsales/service/cache"
	"github.com/brojonat/mintsales/service/classify"
	"github.com/brojonat/mintsales/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS cached_transactions (
    stream     TEXT        NOT NULL,
    signature  TEXT        NOT NULL,
    document   TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (stream, signature)
);

CREATE TABLE IF NOT EXISTS sale_records (
    stream     TEXT        NOT NULL,
    signature  TEXT        NOT NULL,
    kind       TEXT        NOT NULL,
    block_time TIMESTAMPTZ NOT NULL,
    fields     JSON        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (stream, signature)
);

CREATE INDEX IF NOT EXISTS sale_records_stream_block_time_idx ON sale_records (stream, block_time);
`

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Migrate creates the tables the store needs if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) observe(operation, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
	}
}

// StoredRecord is a classified record as persisted.
type StoredRecord struct {
	Stream    string
	Signature string
	Kind      string
	BlockTime time.Time
	// Fields is the record's JSON object with keys in field order.
	Fields    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListRecordsParams filters ListRecords.
type ListRecordsParams struct {
	Stream string
	Since  *time.Time
	Limit  int32
}

// UpsertRecords writes records for stream in a single batch. Re-running a
// stream rewrites the same rows.
func (s *Store) UpsertRecords(ctx context.Context, stream string, records []*classify.Record) (err error) {
	start := time.Now()
	defer func() { s.observe("upsert", "sale_records", start, err) }()

	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		fields, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", rec.Signature, err)
		}
		batch.Queue(`
			INSERT INTO sale_records (stream, signature, kind, block_time, fields)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (stream, signature) DO UPDATE
			SET kind = EXCLUDED.kind, block_time = EXCLUDED.block_time, fields = EXCLUDED.fields, updated_at = now()`,
			stream, rec.Signature, string(rec.Kind), rec.Timestamp, string(fields),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert record: %w", err)
		}
	}
	return nil
}

// ListRecords returns records of a stream in ascending block time.
func (s *Store) ListRecords(ctx context.Context, params ListRecordsParams) (_ []*StoredRecord, err error) {
	start := time.Now()
	defer func() { s.observe("list", "sale_records", start, err) }()

	var since pgtype.Timestamptz
	if params.Since != nil {
		since = pgtype.Timestamptz{Time: *params.Since, Valid: true}
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx, `
		SELECT stream, signature, kind, block_time, fields::text, created_at, updated_at
		FROM sale_records
		WHERE stream = $1 AND ($2::timestamptz IS NULL OR block_time >= $2)
		ORDER BY block_time ASC, signature ASC
		LIMIT $3`,
		params.Stream, since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StoredRecord
	for rows.Next() {
		var (
			r      StoredRecord
			fields string
		)
		if err := rows.Scan(&r.Stream, &r.Signature, &r.Kind, &r.BlockTime, &fields, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Fields = json.RawMessage(fields)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// CountCachedTransactions returns how many documents are cached for stream.
func (s *Store) CountCachedTransactions(ctx context.Context, stream string) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe("count", "cached_transactions", start, err) }()

	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM cached_transactions WHERE stream = $1`, stream).Scan(&n)
	return n, err
}

// TransactionCache is a cache.Cache backed by the cached_transactions table,
// scoped to one stream. Documents are stored as text so their bytes survive.
type TransactionCache struct {
	store  *Store
	stream string
}

// TransactionCache returns the cache for stream.
func (s *Store) TransactionCache(stream string) *TransactionCache {
	return &TransactionCache{store: s, stream: stream}
}

var _ cache.Cache = (*TransactionCache)(nil)

func (c *TransactionCache) Exists(ctx context.Context, signature string) (exists bool, err error) {
	start := time.Now()
	defer func() { c.store.observe("exists", "cached_transactions", start, err) }()

	err = c.store.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cached_transactions WHERE stream = $1 AND signature = $2)`,
		c.stream, signature,
	).Scan(&exists)
	return exists, err
}

func (c *TransactionCache) Read(ctx context.Context, signature string) (_ json.RawMessage, err error) {
	start := time.Now()
	defer func() { c.store.observe("read", "cached_transactions", start, err) }()

	var doc string
	err = c.store.pool.QueryRow(ctx,
		`SELECT document FROM cached_transactions WHERE stream = $1 AND signature = $2`,
		c.stream, signature,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &cache.NotFoundError{Signature: signature}
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(doc), nil
}

// Write upserts the document. A single statement is atomic, so readers see
// either the previous or the new document.
func (c *TransactionCache) Write(ctx context.Context, signature string, doc json.RawMessage) (err error) {
	start := time.Now()
	defer func() { c.store.observe("write", "cached_transactions", start, err) }()

	if !json.Valid(doc) {
		return fmt.Errorf("refusing to cache invalid JSON for transaction %s", signature)
	}
	_, err = c.store.pool.Exec(ctx, `
		INSERT INTO cached_transactions (stream, signature, document)
		VALUES ($1, $2, $3)
		ON CONFLICT (stream, signature) DO UPDATE SET document = EXCLUDED.document`,
		c.stream, signature, string(doc),
	)
	return err
}

// RecordSink exports records to sale_records.
type RecordSink struct {
	store *Store
}

// RecordSink returns a sink that upserts into sale_records.
func (s *Store) RecordSink() *RecordSink {
	return &RecordSink{store: s}
}

func (r *RecordSink) Name() string { return "postgres" }

func (r *RecordSink) Export(ctx context.Context, stream string, records []*classify.Record) error {
	return r.store.UpsertRecords(ctx, stream, records)
}
