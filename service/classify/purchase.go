package classify

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// PurchaseClassifier extracts primary token purchases paid to a destination
// wallet. The destination is located by address, not by position.
type PurchaseClassifier struct {
	destination solana.PublicKey
	mint        *solana.PublicKey
}

// NewPurchaseClassifier tracks payments to destination. When mint is nil the
// first token balance entry of each transaction is used.
func NewPurchaseClassifier(destination solana.PublicKey, mint *solana.PublicKey) *PurchaseClassifier {
	return &PurchaseClassifier{destination: destination, mint: mint}
}

func (c *PurchaseClassifier) Kind() Kind { return KindTokenPurchase }

func (c *PurchaseClassifier) Classify(signature string, raw json.RawMessage) (Result, error) {
	doc, skip, err := prepare(signature, raw)
	if err != nil {
		return Result{}, err
	}
	if skip != nil {
		return *skip, nil
	}

	ts, err := doc.timestamp()
	if err != nil {
		return Result{}, err
	}
	keys, err := doc.accountKeys()
	if err != nil {
		return Result{}, err
	}
	buyer, err := doc.accountKey(0)
	if err != nil {
		return Result{}, err
	}

	destIdx := -1
	for i, k := range keys {
		if k.Equals(c.destination) {
			destIdx = i
			break
		}
	}
	if destIdx < 0 {
		return Result{}, doc.malformed("transaction.message.accountKeys", fmt.Sprintf("destination wallet %s not present", c.destination))
	}
	spent, err := doc.balanceDifference(destIdx)
	if err != nil {
		return Result{}, err
	}

	post, pre, err := c.tokenBalances(doc)
	if err != nil {
		return Result{}, err
	}
	count, err := uiAmount(doc, "meta.postTokenBalances", post)
	if err != nil {
		return Result{}, err
	}
	bought := count
	if pre != nil {
		before, err := uiAmount(doc, "meta.preTokenBalances", pre)
		if err != nil {
			return Result{}, err
		}
		bought = count - before
	}

	rec := &Record{Kind: KindTokenPurchase, Signature: signature, Timestamp: ts}
	rec.add("Timestamp", ts)
	rec.add("Buyer", buyer.String())
	rec.add("Tokens Bought", bought)
	rec.add("Buyer's Token Count", count)
	rec.add("$SOL Spent", spent)
	rec.add("Txn Signature", signature)
	return Result{Outcome: OutcomeRecord, Record: rec}, nil
}

// tokenBalances picks the post balance for the tracked mint and its matching
// pre balance. pre is nil on a first-ever purchase.
func (c *PurchaseClassifier) tokenBalances(doc *document) (post, pre *rpc.TokenBalance, err error) {
	posts, pres := doc.Meta.PostTokenBalances, doc.Meta.PreTokenBalances

	if c.mint == nil {
		if len(posts) == 0 {
			return nil, nil, doc.malformed("meta.postTokenBalances", "empty")
		}
		post = &posts[0]
		if len(pres) > 0 {
			pre = &pres[0]
		}
		return post, pre, nil
	}

	for i := range posts {
		if posts[i].Mint.Equals(*c.mint) {
			post = &posts[i]
			break
		}
	}
	if post == nil {
		return nil, nil, doc.malformed("meta.postTokenBalances", fmt.Sprintf("no balance for mint %s", c.mint))
	}
	for i := range pres {
		if pres[i].Mint.Equals(*c.mint) && pres[i].AccountIndex == post.AccountIndex {
			pre = &pres[i]
			break
		}
	}
	return post, pre, nil
}

func uiAmount(doc *document, field string, b *rpc.TokenBalance) (float64, error) {
	if b.UiTokenAmount == nil {
		return 0, doc.malformed(field, "uiTokenAmount missing")
	}
	v, err := strconv.ParseFloat(b.UiTokenAmount.UiAmountString, 64)
	if err != nil {
		return 0, doc.malformed(field, fmt.Sprintf("bad uiAmountString %q", b.UiTokenAmount.UiAmountString))
	}
	return v, nil
}
