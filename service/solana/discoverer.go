package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/mintsales/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Discoverer enumerates every signature that touched an address.
type Discoverer struct {
	rpc    RPCClient
	caller *caller
	logger *slog.Logger
}

// NewDiscoverer creates a Discoverer. If metrics is nil, no metrics are recorded.
func NewDiscoverer(rpcClient RPCClient, throttle *Throttle, opts Options, m *metrics.Metrics, logger *slog.Logger) *Discoverer {
	return &Discoverer{
		rpc: rpcClient,
		caller: &caller{
			throttle: throttle,
			opts:     opts.withDefaults(),
			metrics:  m,
			logger:   logger,
		},
		logger: logger,
	}
}

// Discover pages backwards through the address history using the last
// signature of each page as the next "before" cursor and stops at the first
// empty page. Signatures are returned newest first.
//
// earliest, when set, drops entries whose block time is before it. It never
// ends pagination early; entries without a block time are kept.
func (d *Discoverer) Discover(ctx context.Context, address solana.PublicKey, earliest *time.Time) ([]solana.Signature, error) {
	limit := d.caller.opts.PageLimit

	var (
		out    []solana.Signature
		cursor solana.Signature
		pages  int
	)
	for {
		opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit}
		if !cursor.IsZero() {
			opts.Before = cursor
		}

		var page []*rpc.TransactionSignature
		err := d.caller.call(ctx, "GetSignaturesForAddress", address.String(), func(callCtx context.Context) error {
			res, err := d.rpc.GetSignaturesForAddress(callCtx, address, opts)
			if err != nil {
				return err
			}
			page = res
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get signatures for %s before %q: %w", address, cursorString(cursor), err)
		}
		pages++
		if d.caller.metrics != nil {
			d.caller.metrics.RecordRPCSignaturesPerCall(d.caller.opts.Endpoint, float64(len(page)))
		}

		if len(page) == 0 {
			break
		}

		next := page[len(page)-1].Signature
		if next == cursor {
			d.logger.WarnContext(ctx, "signature cursor did not advance, stopping discovery",
				"address", address.String(),
				"cursor", cursorString(cursor),
			)
			break
		}
		cursor = next

		for _, entry := range page {
			if earliest != nil && entry.BlockTime != nil && entry.BlockTime.Time().Before(*earliest) {
				continue
			}
			out = append(out, entry.Signature)
		}

		d.logger.DebugContext(ctx, "fetched signature page",
			"address", address.String(),
			"page", pages,
			"page_size", len(page),
			"total", len(out),
		)
	}

	d.logger.InfoContext(ctx, "discovered signatures",
		"address", address.String(),
		"pages", pages,
		"count", len(out),
	)
	return out, nil
}

func cursorString(s solana.Signature) string {
	if s.IsZero() {
		return ""
	}
	return s.String()
}
