package classify

import "encoding/json"

// MintClassifier extracts who minted which asset. The minter is the first
// account key and the minted asset the second.
type MintClassifier struct{}

// NewMintClassifier returns a MintClassifier.
func NewMintClassifier() *MintClassifier {
	return &MintClassifier{}
}

func (c *MintClassifier) Kind() Kind { return KindMint }

func (c *MintClassifier) Classify(signature string, raw json.RawMessage) (Result, error) {
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
	minter, err := doc.accountKey(0)
	if err != nil {
		return Result{}, err
	}
	asset, err := doc.accountKey(1)
	if err != nil {
		return Result{}, err
	}

	rec := &Record{Kind: KindMint, Signature: signature, Timestamp: ts}
	rec.add("Timestamp", ts)
	rec.add("Minter", minter.String())
	rec.add("Mint Txn Signature", signature)
	rec.add("NFT Signature", asset.String())
	return Result{Outcome: OutcomeRecord, Record: rec}, nil
}
