package classify

import (
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func testKey(i int) solana.PublicKey {
	var k solana.PublicKey
	k[0] = byte(i + 1)
	k[31] = 0xAA
	return k
}

func testKeys(n int) []solana.PublicKey {
	keys := make([]solana.PublicKey, n)
	for i := range keys {
		keys[i] = testKey(i)
	}
	return keys
}

// txDoc builds a getTransaction result for tests.
type txDoc struct {
	BlockTime         *int64
	Err               any
	Keys              []solana.PublicKey
	Pre, Post         []uint64
	PreTokenBalances  []map[string]any
	PostTokenBalances []map[string]any
	OmitErr           bool
}

func (d txDoc) raw(t *testing.T) json.RawMessage {
	t.Helper()

	meta := map[string]any{
		"preBalances":       d.Pre,
		"postBalances":      d.Post,
		"preTokenBalances":  orEmpty(d.PreTokenBalances),
		"postTokenBalances": orEmpty(d.PostTokenBalances),
	}
	if !d.OmitErr {
		meta["err"] = d.Err
	}
	keys := make([]string, len(d.Keys))
	for i, k := range d.Keys {
		keys[i] = k.String()
	}
	doc := map[string]any{
		"slot": 104000000,
		"meta": meta,
		"transaction": map[string]any{
			"message":    map[string]any{"accountKeys": keys},
			"signatures": []string{},
		},
	}
	if d.BlockTime != nil {
		doc["blockTime"] = *d.BlockTime
	}
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return out
}

func orEmpty(v []map[string]any) []map[string]any {
	if v == nil {
		return []map[string]any{}
	}
	return v
}

func tokenBalance(accountIndex int, mint solana.PublicKey, amount string) map[string]any {
	return map[string]any{
		"accountIndex": accountIndex,
		"mint":         mint.String(),
		"uiTokenAmount": map[string]any{
			"amount":         amount,
			"decimals":       0,
			"uiAmountString": amount,
		},
	}
}

func ptr[T any](v T) *T { return &v }

func zeros(n int) []uint64 { return make([]uint64, n) }
