package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	mu sync.Mutex

	// pages are returned in order, one per GetSignaturesForAddress call.
	pages     [][]*rpc.TransactionSignature
	pageCalls []*rpc.GetSignaturesForAddressOpts

	// transactions maps signature to document.
	transactions map[string]json.RawMessage
	// txErrors are returned, in order, before a transaction lookup succeeds.
	txErrors []error
	txCalls  int

	// block makes GetRawTransaction wait for its context instead of answering.
	block bool
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pageCalls = append(m.pageCalls, opts)
	i := len(m.pageCalls) - 1
	if i >= len(m.pages) {
		return nil, nil
	}
	return m.pages[i], nil
}

func (m *mockRPCClient) GetRawTransaction(
	ctx context.Context,
	signature solana.Signature,
) (json.RawMessage, error) {
	m.mu.Lock()
	m.txCalls++
	call := m.txCalls
	block := m.block
	var err error
	if call <= len(m.txErrors) {
		err = m.txErrors[call-1]
	}
	doc, ok := m.transactions[signature.String()]
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return json.RawMessage("null"), nil
	}
	return doc, nil
}

func (m *mockRPCClient) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCalls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSignature returns a distinct deterministic signature for i.
func testSignature(i int) solana.Signature {
	var s solana.Signature
	s[0] = byte(i + 1)
	s[1] = byte((i + 1) >> 8)
	return s
}

func sigEntry(i int, blockTime int64) *rpc.TransactionSignature {
	bt := solana.UnixTimeSeconds(blockTime)
	return &rpc.TransactionSignature{
		Signature: testSignature(i),
		Slot:      uint64(1000 - i),
		BlockTime: &bt,
	}
}

// memCache is an in-memory cache.Cache for fetcher tests.
type memCache struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
}

func newMemCache() *memCache {
	return &memCache{docs: make(map[string]json.RawMessage)}
}

func (c *memCache) Exists(ctx context.Context, sig string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.docs[sig]
	return ok, nil
}

func (c *memCache) Read(ctx context.Context, sig string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[sig]
	if !ok {
		return nil, fmt.Errorf("%s not cached", sig)
	}
	return doc, nil
}

func (c *memCache) Write(ctx context.Context, sig string, doc json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[sig] = doc
	return nil
}
