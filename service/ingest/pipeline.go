package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/brojonat/mintsales/service/cache"
	"github.com/brojonat/mintsales/service/classify"
	"github.com/brojonat/mintsales/service/export"
	"github.com/brojonat/mintsales/service/metrics"
	"github.com/gagliardetto/solana-go"
)

// Discoverer lists an address's signatures newest first.
type Discoverer interface {
	Discover(ctx context.Context, address solana.PublicKey, earliest *time.Time) ([]solana.Signature, error)
}

// Fetcher retrieves a transaction and writes it to the cache.
type Fetcher interface {
	Fetch(ctx context.Context, signature solana.Signature) (json.RawMessage, error)
}

// SyncResult summarises one discovery and caching pass.
type SyncResult struct {
	// Signatures as discovered, newest first.
	Signatures  []solana.Signature
	NewlyCached int
	// Elapsed covers the caching phase only.
	Elapsed time.Duration
}

// Report is the output of a classification pass.
type Report struct {
	// Records in ascending ledger order.
	Records []*classify.Record
	// Unrecognized holds trade or transfer signatures that yielded no record.
	Unrecognized []string
	Errored      int
}

// RunResult combines both passes of a run.
type RunResult struct {
	Sync   *SyncResult
	Report *Report
}

// Pipeline drives one stream: discover, cache what is missing, classify
// everything oldest first and hand the records to the sinks.
type Pipeline struct {
	stream     Stream
	discoverer Discoverer
	fetcher    Fetcher
	cache      cache.Cache
	classifier classify.Classifier
	sinks      []export.Sink
	workers    int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline. workers above 1 fetches concurrently; the
// fetcher's throttle is what keeps the pool within the provider's rate limit.
// If metrics is nil, no metrics will be recorded.
func NewPipeline(
	stream Stream,
	discoverer Discoverer,
	fetcher Fetcher,
	c cache.Cache,
	classifier classify.Classifier,
	sinks []export.Sink,
	workers int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		stream:     stream,
		discoverer: discoverer,
		fetcher:    fetcher,
		cache:      c,
		classifier: classifier,
		sinks:      sinks,
		workers:    workers,
		metrics:    m,
		logger:     logger.With("stream", stream.Name),
	}
}

// Stream returns the stream this pipeline drives.
func (p *Pipeline) Stream() Stream {
	return p.stream
}

// Sync discovers the stream's signatures and fetches every one not already
// cached. Running it twice without new ledger activity fetches nothing.
func (p *Pipeline) Sync(ctx context.Context) (*SyncResult, error) {
	sigs, err := p.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover signatures: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordSignaturesDiscovered(p.stream.Name, len(sigs))
	}
	p.logger.InfoContext(ctx, "discovered signatures", "count", len(sigs))

	start := time.Now()
	var newly int
	if p.workers > 1 {
		newly, err = p.cacheConcurrently(ctx, sigs)
	} else {
		newly, err = p.cacheSequentially(ctx, sigs)
	}
	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordPhaseDuration(p.stream.Name, "fetch", elapsed.Seconds())
	}
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "cached new transactions",
		"newly_cached", newly,
		"elapsed_seconds", elapsed.Seconds(),
	)
	return &SyncResult{Signatures: sigs, NewlyCached: newly, Elapsed: elapsed}, nil
}

func (p *Pipeline) discover(ctx context.Context) ([]solana.Signature, error) {
	if p.metrics != nil {
		defer metrics.Timer(time.Now(), func(d float64) {
			p.metrics.RecordPhaseDuration(p.stream.Name, "discover", d)
		})()
	}
	return p.discoverer.Discover(ctx, p.stream.Address, p.stream.EarliestTime)
}

func (p *Pipeline) cacheSequentially(ctx context.Context, sigs []solana.Signature) (int, error) {
	newly := 0
	for _, sig := range sigs {
		if err := ctx.Err(); err != nil {
			return newly, err
		}
		fetched, err := p.ensureCached(ctx, sig)
		if err != nil {
			return newly, err
		}
		if fetched {
			newly++
		}
	}
	return newly, nil
}

func (p *Pipeline) cacheConcurrently(ctx context.Context, sigs []solana.Signature) (int, error) {
	pool := pond.NewPool(p.workers)
	defer pool.StopAndWait()

	var newly atomic.Int64
	group := pool.NewGroupContext(ctx)
	// The group context is cancelled by the first failing task; queued tasks
	// are then skipped by the group itself.
	gctx := group.Context()
	for _, sig := range sigs {
		group.SubmitErr(func() error {
			fetched, err := p.ensureCached(gctx, sig)
			if err != nil {
				return err
			}
			if fetched {
				newly.Add(1)
			}
			return nil
		})
	}
	err := group.Wait()
	return int(newly.Load()), err
}

// ensureCached fetches sig unless the cache already holds it.
func (p *Pipeline) ensureCached(ctx context.Context, sig solana.Signature) (bool, error) {
	exists, err := p.cache.Exists(ctx, sig.String())
	if err != nil {
		return false, fmt.Errorf("failed to check cache for %s: %w", sig, err)
	}
	if exists {
		if p.metrics != nil {
			p.metrics.RecordCacheLookup(p.stream.Name, "hit")
		}
		return false, nil
	}
	if p.metrics != nil {
		p.metrics.RecordCacheLookup(p.stream.Name, "miss")
	}

	if _, err := p.fetcher.Fetch(ctx, sig); err != nil {
		return false, err
	}
	if p.metrics != nil {
		p.metrics.RecordTransactionCached(p.stream.Name)
	}
	return true, nil
}

// Classify reads every signature from the cache, oldest first, and collects
// the records. sigs is in discovery order (newest first). Cache misses are
// fetched; a malformed document aborts the pass.
func (p *Pipeline) Classify(ctx context.Context, sigs []solana.Signature) (*Report, error) {
	start := time.Now()
	kind := string(p.classifier.Kind())
	report := &Report{}

	for i := len(sigs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sig := sigs[i].String()

		doc, err := p.readOrFetch(ctx, sigs[i])
		if err != nil {
			return nil, err
		}

		res, err := p.classifier.Classify(sig, doc)
		if err != nil {
			return nil, err
		}
		if p.metrics != nil {
			p.metrics.RecordClassified(p.stream.Name, kind, res.Outcome.String())
		}

		switch res.Outcome {
		case classify.OutcomeRecord:
			report.Records = append(report.Records, res.Record)
		case classify.OutcomeErrored:
			report.Errored++
		case classify.OutcomeUnrecognized:
			report.Unrecognized = append(report.Unrecognized, sig)
			p.logger.InfoContext(ctx, "trade or transfer, no record", "signature", sig)
		}
	}

	if p.metrics != nil {
		p.metrics.RecordPhaseDuration(p.stream.Name, "classify", time.Since(start).Seconds())
	}
	p.logger.InfoContext(ctx, "classified transactions",
		"records", len(report.Records),
		"unrecognized", len(report.Unrecognized),
		"errored", report.Errored,
	)
	return report, nil
}

// readOrFetch reads sig from the cache. A document missing from the cache,
// for example on a worker that did not run the sync, is fetched again.
func (p *Pipeline) readOrFetch(ctx context.Context, sig solana.Signature) (json.RawMessage, error) {
	doc, err := p.cache.Read(ctx, sig.String())
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("failed to read cached transaction: %w", err)
	}

	p.logger.WarnContext(ctx, "transaction missing from cache, fetching", "signature", sig.String())
	if p.metrics != nil {
		p.metrics.RecordCacheLookup(p.stream.Name, "miss")
	}
	doc, err = p.fetcher.Fetch(ctx, sig)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.RecordTransactionCached(p.stream.Name)
	}
	return doc, nil
}

// Export hands records to every sink in order, stopping at the first failure.
func (p *Pipeline) Export(ctx context.Context, records []*classify.Record) error {
	for _, sink := range p.sinks {
		if err := sink.Export(ctx, p.stream.Name, records); err != nil {
			return fmt.Errorf("failed to export to %s: %w", sink.Name(), err)
		}
		if p.metrics != nil {
			p.metrics.RecordRecordsExported(p.stream.Name, sink.Name(), len(records))
		}
	}
	return nil
}

// Run checks prerequisites, then syncs, classifies and exports.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	if err := CheckPrerequisites(p.stream); err != nil {
		return nil, err
	}
	syncRes, err := p.Sync(ctx)
	if err != nil {
		return nil, err
	}
	report, err := p.Classify(ctx, syncRes.Signatures)
	if err != nil {
		return nil, err
	}
	if err := p.Export(ctx, report.Records); err != nil {
		return nil, err
	}
	return &RunResult{Sync: syncRes, Report: report}, nil
}
