package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brojonat/mintsales/service/classify"
	"github.com/gagliardetto/solana-go"
)

// Stream is one source of records: an address, where its transactions are
// cached, and how they are classified.
type Stream struct {
	Name    string
	Address solana.PublicKey
	// Folder holds one cached document per signature.
	Folder string
	// EarliestTime, when set, drops older signatures after discovery.
	EarliestTime *time.Time
	Kind         classify.Kind
	// Requires lists datasets that must exist before the stream may run.
	Requires []string
	// Export is the file the classified records are written to.
	Export string
}

// Addresses are the on-chain accounts the default streams follow.
type Addresses struct {
	// Purchases is the wallet receiving primary token sale payments.
	Purchases solana.PublicKey
	// Mints is the wallet NFTs mint from.
	Mints solana.PublicKey
	// Secondary is the marketplace sales account.
	Secondary         solana.PublicKey
	SecondaryEarliest *time.Time
}

// Default addresses for the Metaverse collection.
var (
	DefaultPurchasesAddress = solana.MustPublicKeyFromBase58("Fwdp7bSAA1G4EsDn6DCkAuKSBRAJp7BjHutQptzQtzUG")
	DefaultMintsAddress     = solana.MustPublicKeyFromBase58("GBQF4aztREm6XaeSZyZfpCkqwQJmEAQHrusGVBDhmWQM")
	DefaultSecondaryAddress = solana.MustPublicKeyFromBase58("EqBCGzzRGLcdoKprDiJFtoMGHYL3idfdcHqNvXjtQKGP")
	// DefaultSecondaryEarliest is when the collection became tradable.
	DefaultSecondaryEarliest = time.Unix(1636966800, 0).UTC()
)

const (
	StreamPurchases = "purchases"
	StreamMints     = "mints"
	StreamSecondary = "secondary"
)

// DefaultStreams lays the three streams out under dataDir. Mint and
// secondary analysis require the purchases export to exist first.
func DefaultStreams(dataDir string, addrs Addresses) []Stream {
	purchasesExport := filepath.Join(dataDir, "Metaverse_Purchases.csv")
	return []Stream{
		{
			Name:    StreamPurchases,
			Address: addrs.Purchases,
			Folder:  filepath.Join(dataDir, "signatures"),
			Kind:    classify.KindTokenPurchase,
			Export:  purchasesExport,
		},
		{
			Name:     StreamMints,
			Address:  addrs.Mints,
			Folder:   filepath.Join(dataDir, "mint_txn_sigs"),
			Kind:     classify.KindMint,
			Requires: []string{purchasesExport},
			Export:   filepath.Join(dataDir, "Mint_Txns.csv"),
		},
		{
			Name:         StreamSecondary,
			Address:      addrs.Secondary,
			Folder:       filepath.Join(dataDir, "secondary_txn_sigs"),
			EarliestTime: addrs.SecondaryEarliest,
			Kind:         classify.KindSecondarySale,
			Requires:     []string{purchasesExport},
			Export:       filepath.Join(dataDir, "Secondary_Sales.csv"),
		},
	}
}

// FindStream returns the stream called name.
func FindStream(streams []Stream, name string) (Stream, error) {
	for _, s := range streams {
		if s.Name == name {
			return s, nil
		}
	}
	return Stream{}, fmt.Errorf("unknown stream %q", name)
}

// PrerequisiteMissingError reports a dataset that must be produced before a
// stream can run.
type PrerequisiteMissingError struct {
	Stream string
	Path   string
}

func (e *PrerequisiteMissingError) Error() string {
	return fmt.Sprintf("stream %s requires %s; run the stream that produces it first", e.Stream, e.Path)
}

// CheckPrerequisites fails with a *PrerequisiteMissingError for the first
// required dataset that does not exist. It touches nothing on disk.
func CheckPrerequisites(stream Stream) error {
	for _, path := range stream.Requires {
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
			return &PrerequisiteMissingError{Stream: stream.Name, Path: path}
		}
		if err != nil {
			return fmt.Errorf("failed to check prerequisite %s: %w", path, err)
		}
	}
	return nil
}

// CheckRunPrerequisites checks streams that will run in the given order. A
// dataset exported by an earlier stream in the batch counts as present.
func CheckRunPrerequisites(streams []Stream) error {
	produced := make(map[string]bool, len(streams))
	for _, stream := range streams {
		pending := Stream{Name: stream.Name}
		for _, path := range stream.Requires {
			if !produced[path] {
				pending.Requires = append(pending.Requires, path)
			}
		}
		if err := CheckPrerequisites(pending); err != nil {
			return err
		}
		if stream.Export != "" {
			produced[stream.Export] = true
		}
	}
	return nil
}
