package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// LamportsPerSOL converts lamport balances to SOL.
const LamportsPerSOL = 1_000_000_000

// MalformedTransactionError reports a cached document missing something the
// classifier depends on. It is fatal for a run: the document is never coerced.
type MalformedTransactionError struct {
	Signature string
	Field     string
	Reason    string
}

func (e *MalformedTransactionError) Error() string {
	return fmt.Sprintf("malformed transaction %s: %s: %s", e.Signature, e.Field, e.Reason)
}

// document is the subset of a getTransaction (encoding=json) result we read.
type document struct {
	BlockTime   *int64       `json:"blockTime"`
	Slot        uint64       `json:"slot"`
	Meta        *meta        `json:"meta"`
	Transaction *transaction `json:"transaction"`

	sig string
}

type meta struct {
	// Err is kept raw: absent is malformed, null is success.
	Err               json.RawMessage    `json:"err"`
	PreBalances       []uint64           `json:"preBalances"`
	PostBalances      []uint64           `json:"postBalances"`
	PreTokenBalances  []rpc.TokenBalance `json:"preTokenBalances"`
	PostTokenBalances []rpc.TokenBalance `json:"postTokenBalances"`
}

type transaction struct {
	Message *message `json:"message"`
}

type message struct {
	AccountKeys []solana.PublicKey `json:"accountKeys"`
}

// envelope is the full JSON-RPC response some older caches stored instead of
// the bare result.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
}

func decode(sig string, raw json.RawMessage) (*document, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.JSONRPC != "" && len(env.Result) > 0 {
		raw = env.Result
	}

	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, &MalformedTransactionError{Signature: sig, Field: "result", Reason: "document is null"}
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &MalformedTransactionError{Signature: sig, Field: "document", Reason: err.Error()}
	}
	doc.sig = sig

	if doc.Meta == nil {
		return nil, doc.malformed("meta", "missing")
	}
	if len(doc.Meta.Err) == 0 {
		return nil, doc.malformed("meta.err", "missing")
	}
	return &doc, nil
}

func (d *document) malformed(field, reason string) error {
	return &MalformedTransactionError{Signature: d.sig, Field: field, Reason: reason}
}

// errored reports whether the ledger recorded the transaction as failed.
func (d *document) errored() bool {
	return !bytes.Equal(bytes.TrimSpace(d.Meta.Err), []byte("null"))
}

func (d *document) timestamp() (time.Time, error) {
	if d.BlockTime == nil {
		return time.Time{}, d.malformed("blockTime", "missing")
	}
	return time.Unix(*d.BlockTime, 0).UTC(), nil
}

func (d *document) accountKeys() ([]solana.PublicKey, error) {
	if d.Transaction == nil || d.Transaction.Message == nil || d.Transaction.Message.AccountKeys == nil {
		return nil, d.malformed("transaction.message.accountKeys", "missing")
	}
	return d.Transaction.Message.AccountKeys, nil
}

func (d *document) accountKey(i int) (solana.PublicKey, error) {
	keys, err := d.accountKeys()
	if err != nil {
		return solana.PublicKey{}, err
	}
	if i < 0 || i >= len(keys) {
		return solana.PublicKey{}, d.malformed("transaction.message.accountKeys", fmt.Sprintf("index %d out of range (%d keys)", i, len(keys)))
	}
	return keys[i], nil
}

// balanceDifference is (postBalances[i] - preBalances[i]) / LamportsPerSOL, sign preserved.
func (d *document) balanceDifference(i int) (float64, error) {
	pre, post := d.Meta.PreBalances, d.Meta.PostBalances
	if pre == nil {
		return 0, d.malformed("meta.preBalances", "missing")
	}
	if post == nil {
		return 0, d.malformed("meta.postBalances", "missing")
	}
	if i < 0 || i >= len(pre) || i >= len(post) {
		return 0, d.malformed("meta.balances", fmt.Sprintf("index %d out of range", i))
	}
	return float64(int64(post[i])-int64(pre[i])) / LamportsPerSOL, nil
}

// BalanceDifference returns the SOL balance change of account i in a cached
// transaction document.
func BalanceDifference(signature string, raw json.RawMessage, i int) (float64, error) {
	doc, err := decode(signature, raw)
	if err != nil {
		return 0, err
	}
	return doc.balanceDifference(i)
}
