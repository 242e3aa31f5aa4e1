package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brojonat/mintsales/service/cache"
	"github.com/brojonat/mintsales/service/metrics"
	"github.com/gagliardetto/solana-go"
)

// Fetcher retrieves full transaction documents and stores them in a cache.
type Fetcher struct {
	rpc    RPCClient
	cache  cache.Cache
	caller *caller
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. The throttle should be shared with every other
// component calling the same RPC provider. If metrics is nil, no metrics are recorded.
func NewFetcher(rpcClient RPCClient, c cache.Cache, throttle *Throttle, opts Options, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		rpc:   rpcClient,
		cache: c,
		caller: &caller{
			throttle: throttle,
			opts:     opts.withDefaults(),
			metrics:  m,
			logger:   logger,
		},
		logger: logger,
	}
}

// Fetch retrieves the transaction for signature, writes it to the cache and
// returns the document. Failures come back as a *FetchError; a rate limit that
// survives the cooldown retry wraps a *RateLimitError.
func (f *Fetcher) Fetch(ctx context.Context, signature solana.Signature) (json.RawMessage, error) {
	sig := signature.String()

	var doc json.RawMessage
	err := f.caller.call(ctx, "GetTransaction", sig, func(callCtx context.Context) error {
		out, err := f.rpc.GetRawTransaction(callCtx, signature)
		if err != nil {
			return err
		}
		doc = out
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FetchError{Signature: sig, Err: err}
	}

	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &FetchError{Signature: sig, Err: ErrTransactionUnavailable}
	}

	if err := f.cache.Write(ctx, sig, doc); err != nil {
		return nil, fmt.Errorf("failed to cache transaction %s: %w", sig, err)
	}

	f.logger.DebugContext(ctx, "fetched and cached transaction", "signature", sig)
	return doc, nil
}
