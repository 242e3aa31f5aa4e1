package classify

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SaleLayout maps account positions to roles for one marketplace instruction
// layout. Layouts are selected by the number of account keys.
type SaleLayout struct {
	Name         string `yaml:"name"`
	AccountCount int    `yaml:"account_count"`
	Buyer        int    `yaml:"buyer"`
	Seller       int    `yaml:"seller"`
	Fee          int    `yaml:"fee"`
	Royalty      int    `yaml:"royalty"`
	NFT          int    `yaml:"nft"`
	FeeLabel     string `yaml:"fee_label"`
	RoyaltyLabel string `yaml:"royalty_label"`
}

// SolanartV1 is the 18-account Solanart sale. Trades and transfers through
// the same program carry fewer accounts (around 13).
var SolanartV1 = SaleLayout{
	Name:         "solanart-v1",
	AccountCount: 18,
	Buyer:        0,
	Seller:       3,
	Fee:          5,
	Royalty:      9,
	NFT:          10,
	FeeLabel:     "Solanart received",
	RoyaltyLabel: "NMC received",
}

// DefaultSaleLayouts is the rule table used when none is configured.
func DefaultSaleLayouts() []SaleLayout {
	return []SaleLayout{SolanartV1}
}

func (l SaleLayout) validate() error {
	if l.Name == "" {
		return fmt.Errorf("sale layout name is required")
	}
	if l.AccountCount <= 0 {
		return fmt.Errorf("sale layout %s: account_count must be positive", l.Name)
	}
	for role, idx := range map[string]int{"buyer": l.Buyer, "seller": l.Seller, "fee": l.Fee, "royalty": l.Royalty, "nft": l.NFT} {
		if idx < 0 || idx >= l.AccountCount {
			return fmt.Errorf("sale layout %s: %s index %d outside %d accounts", l.Name, role, idx, l.AccountCount)
		}
	}
	if l.FeeLabel == "" || l.RoyaltyLabel == "" {
		return fmt.Errorf("sale layout %s: fee_label and royalty_label are required", l.Name)
	}
	return nil
}

type layoutFile struct {
	Layouts []SaleLayout `yaml:"layouts"`
}

// ParseSaleLayouts reads a YAML rule table of the form
//
//	layouts:
//	  - name: solanart-v1
//	    account_count: 18
//	    buyer: 0
//	    ...
func ParseSaleLayouts(data []byte) ([]SaleLayout, error) {
	var f layoutFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sale layouts: %w", err)
	}
	if len(f.Layouts) == 0 {
		return nil, fmt.Errorf("sale layouts file defines no layouts")
	}
	seen := make(map[int]string)
	for _, l := range f.Layouts {
		if err := l.validate(); err != nil {
			return nil, err
		}
		if other, dup := seen[l.AccountCount]; dup {
			return nil, fmt.Errorf("sale layouts %s and %s both claim %d accounts", other, l.Name, l.AccountCount)
		}
		seen[l.AccountCount] = l.Name
	}
	return f.Layouts, nil
}

// LoadSaleLayouts reads a YAML rule table from path.
func LoadSaleLayouts(path string) ([]SaleLayout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sale layouts: %w", err)
	}
	return ParseSaleLayouts(data)
}

// SaleClassifier extracts marketplace resales. Transactions whose account
// count matches no layout are trades or transfers and produce no record.
type SaleClassifier struct {
	layouts map[int]SaleLayout
}

// NewSaleClassifier builds a classifier over layouts, or the default table if none are given.
func NewSaleClassifier(layouts ...SaleLayout) (*SaleClassifier, error) {
	if len(layouts) == 0 {
		layouts = DefaultSaleLayouts()
	}
	byCount := make(map[int]SaleLayout, len(layouts))
	for _, l := range layouts {
		if err := l.validate(); err != nil {
			return nil, err
		}
		if _, dup := byCount[l.AccountCount]; dup {
			return nil, fmt.Errorf("duplicate sale layout for %d accounts", l.AccountCount)
		}
		byCount[l.AccountCount] = l
	}
	return &SaleClassifier{layouts: byCount}, nil
}

func (c *SaleClassifier) Kind() Kind { return KindSecondarySale }

func (c *SaleClassifier) Classify(signature string, raw json.RawMessage) (Result, error) {
	doc, skip, err := prepare(signature, raw)
	if err != nil {
		return Result{}, err
	}
	if skip != nil {
		return *skip, nil
	}

	keys, err := doc.accountKeys()
	if err != nil {
		return Result{}, err
	}
	layout, ok := c.layouts[len(keys)]
	if !ok {
		return Result{Outcome: OutcomeUnrecognized}, nil
	}

	ts, err := doc.timestamp()
	if err != nil {
		return Result{}, err
	}

	deltas := make(map[int]float64, 4)
	for _, idx := range []int{layout.Buyer, layout.Seller, layout.Fee, layout.Royalty} {
		d, err := doc.balanceDifference(idx)
		if err != nil {
			return Result{}, err
		}
		deltas[idx] = d
	}

	rec := &Record{Kind: KindSecondarySale, Signature: signature, Timestamp: ts}
	rec.add("Timestamp", ts)
	rec.add("Buyer paid", deltas[layout.Buyer])
	rec.add("Seller received", deltas[layout.Seller])
	rec.add(layout.FeeLabel, deltas[layout.Fee])
	rec.add(layout.RoyaltyLabel, deltas[layout.Royalty])
	rec.add("Secondary Sale Txn Signature", signature)
	rec.add("NFT Signature", keys[layout.NFT].String())
	rec.add("Buyer wallet", keys[layout.Buyer].String())
	rec.add("Seller wallet", keys[layout.Seller].String())
	return Result{Outcome: OutcomeRecord, Record: rec}, nil
}
