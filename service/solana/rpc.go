package solana

import (
	"context"
	"encoding/json"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	// GetRawTransaction returns the verbatim result of getTransaction.
	// A transaction the node does not know about yields "null" or an empty body.
	GetRawTransaction(
		ctx context.Context,
		signature solana.Signature,
	) (json.RawMessage, error)
}
