// Package app assembles ingestion pipelines from configuration. The CLI and
// the Temporal worker share it so both run identical pipelines.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/mintsales/service/cache"
	"github.com/brojonat/mintsales/service/classify"
	"github.com/brojonat/mintsales/service/config"
	"github.com/brojonat/mintsales/service/db"
	"github.com/brojonat/mintsales/service/export"
	"github.com/brojonat/mintsales/service/ingest"
	"github.com/brojonat/mintsales/service/metrics"
	natspkg "github.com/brojonat/mintsales/service/nats"
	"github.com/brojonat/mintsales/service/solana"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Runtime owns the process-wide dependencies every pipeline shares: one RPC
// client, one throttle, and the optional postgres and NATS connections.
type Runtime struct {
	cfg         *config.Config
	streams     []ingest.Stream
	rpc         solana.RPCClient
	throttle    *solana.Throttle
	rpcOpts     solana.Options
	saleLayouts []classify.SaleLayout

	pool      *pgxpool.Pool
	store     *db.Store
	publisher natspkg.Publisher

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option customizes a Runtime, mostly for tests.
type Option func(*Runtime)

// WithRPCClient replaces the JSON-RPC client built from the configured endpoints.
func WithRPCClient(c solana.RPCClient) Option {
	return func(r *Runtime) { r.rpc = c }
}

// WithPublisher replaces the NATS publisher built from NATS_URL.
func WithPublisher(p natspkg.Publisher) Option {
	return func(r *Runtime) { r.publisher = p }
}

// ConfiguredStreams lays out the streams cfg describes without connecting
// anything, so callers can check prerequisites before New.
func ConfiguredStreams(cfg *config.Config) []ingest.Stream {
	return ingest.DefaultStreams(cfg.DataDir, ingest.Addresses{
		Purchases:         cfg.PurchasesAddress,
		Mints:             cfg.MintsAddress,
		Secondary:         cfg.SecondaryAddress,
		SecondaryEarliest: cfg.SecondaryEarliestTime,
	})
}

// New connects everything cfg asks for. If metrics is nil, no metrics will be
// recorded. Call Close when done.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		streams:  ConfiguredStreams(cfg),
		throttle: solana.NewThrottle(cfg.RPCRequestsPerWindow, cfg.RPCWindow),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.rpc == nil {
		endpoint, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURLs)
		if err != nil {
			return nil, err
		}
		r.rpc = solana.NewRPCClient(endpoint)
		r.rpcOpts.Endpoint = solana.EndpointLabel(endpoint)
		logger.Info("selected solana RPC endpoint",
			"endpoint", r.rpcOpts.Endpoint,
			"total_endpoints", len(cfg.SolanaRPCURLs),
		)
	}
	r.rpcOpts.Cooldown = cfg.RateLimitCooldown
	r.rpcOpts.CallTimeout = cfg.RPCCallTimeout
	r.rpcOpts.PageLimit = cfg.SignaturePageLimit

	if cfg.SaleLayoutsFile != "" {
		layouts, err := classify.LoadSaleLayouts(cfg.SaleLayoutsFile)
		if err != nil {
			return nil, err
		}
		r.saleLayouts = layouts
		logger.Info("loaded sale layouts", "file", cfg.SaleLayoutsFile, "count", len(layouts))
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			r.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		r.pool = pool
		r.store = db.NewStore(pool, m)
		if err := r.store.Migrate(ctx); err != nil {
			r.Close()
			return nil, err
		}
		logger.Info("connected to database")
	}

	if r.publisher == nil && cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.publisher = publisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	return r, nil
}

// Streams returns the configured streams in dependency order.
func (r *Runtime) Streams() []ingest.Stream {
	return r.streams
}

// StreamNames returns the names of the configured streams.
func (r *Runtime) StreamNames() []string {
	names := make([]string, len(r.streams))
	for i, s := range r.streams {
		names[i] = s.Name
	}
	return names
}

// Store returns the postgres store, or nil when DATABASE_URL is unset.
func (r *Runtime) Store() *db.Store {
	return r.store
}

// Cache returns the transaction cache for a stream on the configured backend.
func (r *Runtime) Cache(stream ingest.Stream) (cache.Cache, error) {
	switch r.cfg.CacheBackend {
	case config.CacheBackendPostgres:
		if r.store == nil {
			return nil, fmt.Errorf("postgres cache requires DATABASE_URL")
		}
		return r.store.TransactionCache(stream.Name), nil
	default:
		return cache.NewFileCache(stream.Folder)
	}
}

// Classifier returns the classification strategy for a stream.
func (r *Runtime) Classifier(stream ingest.Stream) (classify.Classifier, error) {
	return classify.New(stream.Kind, classify.Options{
		Destination: stream.Address,
		TrackedMint: r.cfg.TrackedTokenMint,
		SaleLayouts: r.saleLayouts,
	})
}

// Sinks returns the export targets for a stream: its file, then postgres and
// NATS when configured.
func (r *Runtime) Sinks(stream ingest.Stream) ([]export.Sink, error) {
	file, err := export.NewFileSink(stream.Export)
	if err != nil {
		return nil, err
	}
	sinks := []export.Sink{file}
	if r.store != nil {
		sinks = append(sinks, r.store.RecordSink())
	}
	if r.publisher != nil {
		sinks = append(sinks, natspkg.NewRecordSink(r.publisher))
	}
	return sinks, nil
}

// Pipeline builds the ingestion pipeline for the named stream.
func (r *Runtime) Pipeline(name string) (*ingest.Pipeline, error) {
	stream, err := ingest.FindStream(r.streams, name)
	if err != nil {
		return nil, err
	}
	c, err := r.Cache(stream)
	if err != nil {
		return nil, err
	}
	classifier, err := r.Classifier(stream)
	if err != nil {
		return nil, err
	}
	sinks, err := r.Sinks(stream)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With("component", "pipeline")
	return ingest.NewPipeline(
		stream,
		solana.NewDiscoverer(r.rpc, r.throttle, r.rpcOpts, r.metrics, logger),
		solana.NewFetcher(r.rpc, c, r.throttle, r.rpcOpts, r.metrics, logger),
		c,
		classifier,
		sinks,
		r.cfg.FetchWorkers,
		r.metrics,
		logger,
	), nil
}

// Close releases the database pool and NATS connection.
func (r *Runtime) Close() {
	if r.publisher != nil {
		if err := r.publisher.Close(); err != nil {
			r.logger.Error("failed to close NATS publisher", "error", err)
		}
	}
	if r.pool != nil {
		r.pool.Close()
	}
}
