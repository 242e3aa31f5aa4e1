package classify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSig = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"

func saleDoc() txDoc {
	pre := zeros(18)
	post := zeros(18)
	pre[0], post[0] = 100, 80
	pre[4], post[4] = 50, 68
	pre[9], post[9] = 5, 6
	// Seller at index 3 is credited the sale price.
	pre[3], post[3] = 0, 18
	return txDoc{
		BlockTime: ptr(int64(1636966900)),
		Keys:      testKeys(18),
		Pre:       pre,
		Post:      post,
	}
}

func TestBalanceDifference(t *testing.T) {
	doc := txDoc{
		BlockTime: ptr(int64(1)),
		Keys:      testKeys(3),
		Pre:       []uint64{3_000_000_000, 5, 0},
		Post:      []uint64{1_500_000_000, 5, 2_000_000_000},
	}
	raw := doc.raw(t)

	tests := []struct {
		index int
		want  float64
	}{
		{0, -1.5},
		{1, 0},
		{2, 2},
	}
	for _, tt := range tests {
		got, err := BalanceDifference(testSig, raw, tt.index)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "index %d", tt.index)
	}

	_, err := BalanceDifference(testSig, raw, 3)
	var malformed *MalformedTransactionError
	assert.True(t, errors.As(err, &malformed))
}

func TestMintClassifier(t *testing.T) {
	c := NewMintClassifier()
	doc := txDoc{BlockTime: ptr(int64(1636966900)), Keys: testKeys(5), Pre: zeros(5), Post: zeros(5)}

	res, err := c.Classify(testSig, doc.raw(t))
	require.NoError(t, err)
	require.Equal(t, OutcomeRecord, res.Outcome)

	rec := res.Record
	assert.Equal(t, []string{"Timestamp", "Minter", "Mint Txn Signature", "NFT Signature"}, rec.Names())
	ts, _ := rec.Get("Timestamp")
	assert.Equal(t, time.Date(2021, 11, 15, 9, 1, 40, 0, time.UTC), ts)
	minter, _ := rec.Get("Minter")
	assert.Equal(t, testKey(0).String(), minter)
	nft, _ := rec.Get("NFT Signature")
	assert.Equal(t, testKey(1).String(), nft)
	sig, _ := rec.Get("Mint Txn Signature")
	assert.Equal(t, testSig, sig)
}

func TestClassify_ErroredTransactionIsSkipped(t *testing.T) {
	doc := saleDoc()
	doc.Err = map[string]any{"InstructionError": []any{0, map[string]any{"Custom": 1}}}
	raw := doc.raw(t)

	sale, err := NewSaleClassifier()
	require.NoError(t, err)

	for _, c := range []Classifier{NewMintClassifier(), sale, NewPurchaseClassifier(testKey(4), nil)} {
		t.Run(string(c.Kind()), func(t *testing.T) {
			res, err := c.Classify(testSig, raw)
			require.NoError(t, err)
			assert.Equal(t, OutcomeErrored, res.Outcome)
			assert.Nil(t, res.Record)
		})
	}
}

func TestSaleClassifier_EighteenAccounts(t *testing.T) {
	c, err := NewSaleClassifier()
	require.NoError(t, err)

	res, err := c.Classify(testSig, saleDoc().raw(t))
	require.NoError(t, err)
	require.Equal(t, OutcomeRecord, res.Outcome)

	rec := res.Record
	assert.Equal(t, []string{
		"Timestamp", "Buyer paid", "Seller received", "Solanart received", "NMC received",
		"Secondary Sale Txn Signature", "NFT Signature", "Buyer wallet", "Seller wallet",
	}, rec.Names())

	get := func(name string) any {
		v, ok := rec.Get(name)
		require.True(t, ok, name)
		return v
	}
	assert.Equal(t, -20.0/LamportsPerSOL, get("Buyer paid"))
	assert.Equal(t, 18.0/LamportsPerSOL, get("Seller received"))
	assert.Equal(t, 0.0, get("Solanart received"))
	assert.Equal(t, 1.0/LamportsPerSOL, get("NMC received"))
	assert.Equal(t, testKey(10).String(), get("NFT Signature"))
	assert.Equal(t, testKey(0).String(), get("Buyer wallet"))
	assert.Equal(t, testKey(3).String(), get("Seller wallet"))
}

func TestSaleClassifier_TradeOrTransfer(t *testing.T) {
	c, err := NewSaleClassifier()
	require.NoError(t, err)

	doc := txDoc{BlockTime: ptr(int64(1636966900)), Keys: testKeys(13), Pre: zeros(13), Post: zeros(13)}
	res, err := c.Classify(testSig, doc.raw(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnrecognized, res.Outcome)
	assert.Nil(t, res.Record)
}

func TestSaleClassifier_CustomLayout(t *testing.T) {
	layouts, err := ParseSaleLayouts([]byte(`
layouts:
  - name: market-v2
    account_count: 12
    buyer: 0
    seller: 2
    fee: 4
    royalty: 6
    nft: 7
    fee_label: Market received
    royalty_label: Creator received
`))
	require.NoError(t, err)

	c, err := NewSaleClassifier(layouts...)
	require.NoError(t, err)

	pre, post := zeros(12), zeros(12)
	pre[2], post[2] = 0, 2_000_000_000
	doc := txDoc{BlockTime: ptr(int64(1)), Keys: testKeys(12), Pre: pre, Post: post}

	res, err := c.Classify(testSig, doc.raw(t))
	require.NoError(t, err)
	require.Equal(t, OutcomeRecord, res.Outcome)
	v, ok := res.Record.Get("Seller received")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	_, ok = res.Record.Get("Market received")
	assert.True(t, ok)

	// The default 18-account layout is no longer in the table.
	res, err = c.Classify(testSig, saleDoc().raw(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnrecognized, res.Outcome)
}

func TestParseSaleLayouts_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", `layouts: []`},
		{"index out of range", "layouts:\n  - {name: x, account_count: 3, buyer: 0, seller: 1, fee: 2, royalty: 2, nft: 5, fee_label: a, royalty_label: b}"},
		{"duplicate count", "layouts:\n  - {name: x, account_count: 3, fee_label: a, royalty_label: b}\n  - {name: y, account_count: 3, fee_label: a, royalty_label: b}"},
		{"not yaml", "layouts: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSaleLayouts([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestPurchaseClassifier(t *testing.T) {
	dest := testKey(2)
	mint := testKey(7)

	pre, post := zeros(5), zeros(5)
	pre[0], post[0] = 10_000_000_000, 7_500_000_000
	pre[2], post[2] = 1_000_000_000, 3_500_000_000

	t.Run("repeat buyer", func(t *testing.T) {
		doc := txDoc{
			BlockTime:         ptr(int64(1636966900)),
			Keys:              testKeys(5),
			Pre:               pre,
			Post:              post,
			PreTokenBalances:  []map[string]any{tokenBalance(3, mint, "4")},
			PostTokenBalances: []map[string]any{tokenBalance(3, mint, "9")},
		}
		res, err := NewPurchaseClassifier(dest, &mint).Classify(testSig, doc.raw(t))
		require.NoError(t, err)
		require.Equal(t, OutcomeRecord, res.Outcome)

		rec := res.Record
		assert.Equal(t, []string{"Timestamp", "Buyer", "Tokens Bought", "Buyer's Token Count", "$SOL Spent", "Txn Signature"}, rec.Names())
		bought, _ := rec.Get("Tokens Bought")
		assert.Equal(t, 5.0, bought)
		count, _ := rec.Get("Buyer's Token Count")
		assert.Equal(t, 9.0, count)
		spent, _ := rec.Get("$SOL Spent")
		assert.Equal(t, 2.5, spent)
		buyer, _ := rec.Get("Buyer")
		assert.Equal(t, testKey(0).String(), buyer)
	})

	t.Run("first purchase has no pre balance", func(t *testing.T) {
		doc := txDoc{
			BlockTime:         ptr(int64(1636966900)),
			Keys:              testKeys(5),
			Pre:               pre,
			Post:              post,
			PostTokenBalances: []map[string]any{tokenBalance(3, mint, "9")},
		}
		res, err := NewPurchaseClassifier(dest, nil).Classify(testSig, doc.raw(t))
		require.NoError(t, err)
		bought, _ := res.Record.Get("Tokens Bought")
		assert.Equal(t, 9.0, bought)
	})

	t.Run("destination found by address", func(t *testing.T) {
		keys := testKeys(5)
		keys[2], keys[4] = keys[4], keys[2]
		doc := txDoc{
			BlockTime:         ptr(int64(1636966900)),
			Keys:              keys,
			Pre:               []uint64{0, 0, 0, 0, 1_000_000_000},
			Post:              []uint64{0, 0, 0, 0, 4_000_000_000},
			PostTokenBalances: []map[string]any{tokenBalance(3, mint, "1")},
		}
		res, err := NewPurchaseClassifier(dest, &mint).Classify(testSig, doc.raw(t))
		require.NoError(t, err)
		spent, _ := res.Record.Get("$SOL Spent")
		assert.Equal(t, 3.0, spent)
	})

	t.Run("destination absent is malformed", func(t *testing.T) {
		doc := txDoc{
			BlockTime:         ptr(int64(1636966900)),
			Keys:              testKeys(2),
			Pre:               zeros(2),
			Post:              zeros(2),
			PostTokenBalances: []map[string]any{tokenBalance(1, mint, "1")},
		}
		_, err := NewPurchaseClassifier(dest, &mint).Classify(testSig, doc.raw(t))
		var malformed *MalformedTransactionError
		require.True(t, errors.As(err, &malformed))
		assert.Equal(t, testSig, malformed.Signature)
	})
}

func TestClassify_MalformedDocuments(t *testing.T) {
	c := NewMintClassifier()

	tests := []struct {
		name  string
		raw   json.RawMessage
		field string
	}{
		{"missing meta", json.RawMessage(`{"blockTime":1,"transaction":{"message":{"accountKeys":[]}}}`), "meta"},
		{"missing err key", txDoc{BlockTime: ptr(int64(1)), Keys: testKeys(2), OmitErr: true}.raw(t), "meta.err"},
		{"missing block time", txDoc{Keys: testKeys(2), Pre: zeros(2), Post: zeros(2)}.raw(t), "blockTime"},
		{"too few keys", txDoc{BlockTime: ptr(int64(1)), Keys: testKeys(1), Pre: zeros(1), Post: zeros(1)}.raw(t), "transaction.message.accountKeys"},
		{"null document", json.RawMessage(`null`), "result"},
		{"not json", json.RawMessage(`{`), "document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Classify(testSig, tt.raw)
			var malformed *MalformedTransactionError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestClassify_AcceptsRPCEnvelope(t *testing.T) {
	inner := txDoc{BlockTime: ptr(int64(1636966900)), Keys: testKeys(3), Pre: zeros(3), Post: zeros(3)}.raw(t)
	wrapped := json.RawMessage(`{"jsonrpc":"2.0","id":1,"result":` + string(inner) + `}`)

	res, err := NewMintClassifier().Classify(testSig, wrapped)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecord, res.Outcome)
}

func TestRecord_MarshalJSONKeepsOrder(t *testing.T) {
	rec := Record{}
	rec.add("Timestamp", time.Unix(0, 0).UTC())
	rec.add("Buyer paid", -1.5)
	rec.add("A", "b")

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"Timestamp":"1970-01-01T00:00:00Z","Buyer paid":-1.5,"A":"b"}`, string(out))
	assert.Equal(t, []string{"1970-01-01 00:00:00", "-1.5", "b"}, rec.Strings())
}

func TestNew(t *testing.T) {
	c, err := New(KindSecondarySale, Options{})
	require.NoError(t, err)
	assert.Equal(t, KindSecondarySale, c.Kind())

	_, err = New(KindTokenPurchase, Options{})
	assert.Error(t, err)

	_, err = ParseKind("airdrop")
	assert.Error(t, err)
}
