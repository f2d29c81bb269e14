// Package chainsource defines the wire-level shapes the underlying UTXO
// chain node hands to the parser, and the minimal interface the parser
// uses to pull them on demand. It has no implementation here: the RPC
// client that actually talks to the node is an external collaborator.
package chainsource

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/Pranacoin/exchange/chainerrors"
)

// RawBlock is the underlying chain's block header plus its ordered tx-id
// list, as handed to the parser by BlockSource.
type RawBlock struct {
	Height       uint32
	Hash         string
	PreviousHash string
	TxIDs        []string
}

// InputRef is an immutable reference into a prior transaction's output.
type InputRef struct {
	SpendingTxID        string
	SpendingOutputIndex uint32
}

// OutputRecord is one output of a TxRecord. Address is optional; an empty
// string means absent.
type OutputRecord struct {
	Index   uint32
	Value   uint64
	Address string
}

// TxRecord is the full transaction as fetched from the chain: ordered
// inputs and outputs, order being semantically significant.
type TxRecord struct {
	ID      string
	Inputs  []InputRef
	Outputs []OutputRecord
}

// BlockSource supplies raw blocks and transactions from the underlying
// chain node. Both methods perform network I/O and are the only
// suspension points in the parser's worker loop.
type BlockSource interface {
	RequestBlock(ctx context.Context, height uint32) (*RawBlock, error)
	RequestTransaction(ctx context.Context, txID string, expectedHeight uint32) (*TxRecord, error)
}

// WrapSourceError wraps a transport failure from a BlockSource call as a
// ChainError with CodeSourceUnavailable, the shape every caller above the
// source boundary expects to see.
func WrapSourceError(height uint32, op string, cause error) error {
	return chainerrors.Wrap(chainerrors.CodeSourceUnavailable, height,
		fmt.Sprintf("block source unavailable during %s", op),
		errors.Wrapf(cause, "chainsource: %s", op))
}
