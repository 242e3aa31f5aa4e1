package classify

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Kind names a classification strategy.
type Kind string

const (
	KindMint          Kind = "mint"
	KindSecondarySale Kind = "secondary-sale"
	KindTokenPurchase Kind = "token-purchase"
)

// ParseKind validates a strategy name from configuration.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindMint, KindSecondarySale, KindTokenPurchase:
		return k, nil
	default:
		return "", fmt.Errorf("unknown classification kind %q (must be mint, secondary-sale or token-purchase)", s)
	}
}

// Outcome is what classification decided about one transaction.
type Outcome int

const (
	// OutcomeRecord means a record was extracted.
	OutcomeRecord Outcome = iota
	// OutcomeErrored means the ledger marked the transaction failed; it is skipped.
	OutcomeErrored
	// OutcomeUnrecognized means the shape did not match (a trade or transfer).
	OutcomeUnrecognized
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecord:
		return "record"
	case OutcomeErrored:
		return "errored"
	case OutcomeUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Result is the outcome of classifying one transaction. Record is set only
// for OutcomeRecord.
type Result struct {
	Outcome Outcome
	Record  *Record
}

// Classifier turns one cached transaction document into at most one record.
// A malformed document yields a *MalformedTransactionError.
type Classifier interface {
	Kind() Kind
	Classify(signature string, doc json.RawMessage) (Result, error)
}

// prepare decodes doc and applies the error check shared by every strategy.
// It returns nil with an errored Result when the transaction failed on chain.
func prepare(signature string, raw json.RawMessage) (*document, *Result, error) {
	doc, err := decode(signature, raw)
	if err != nil {
		return nil, nil, err
	}
	if doc.errored() {
		return nil, &Result{Outcome: OutcomeErrored}, nil
	}
	return doc, nil, nil
}

// Options carries what the individual strategies need.
type Options struct {
	// Destination is the wallet receiving token purchase payments.
	Destination solana.PublicKey
	// TrackedMint restricts token purchases to one mint.
	TrackedMint *solana.PublicKey
	// SaleLayouts overrides the default secondary sale rule table.
	SaleLayouts []SaleLayout
}

// New returns the strategy for kind.
func New(kind Kind, opts Options) (Classifier, error) {
	switch kind {
	case KindMint:
		return NewMintClassifier(), nil
	case KindSecondarySale:
		return NewSaleClassifier(opts.SaleLayouts...)
	case KindTokenPurchase:
		if opts.Destination.IsZero() {
			return nil, fmt.Errorf("token purchase classification requires a destination wallet")
		}
		return NewPurchaseClassifier(opts.Destination, opts.TrackedMint), nil
	default:
		return nil, fmt.Errorf("unknown classification kind %q", kind)
	}
}
