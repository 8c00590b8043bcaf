package notification

import (
	"context"

	"github.com/gabapcia/dappkit/internal/chains"
)

// ReceiptStatusSuccess is the receipt status of an executed transaction.
const ReceiptStatusSuccess = 1

// Receipt is the terminal outcome of a mined transaction.
type Receipt struct {
	TxHash      string
	BlockHash   string
	BlockNumber uint64
	GasUsed     uint64
	Status      uint64
}

// Succeeded reports whether the transaction executed.
func (r Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccess
}

// Transaction is a submitted transaction that can be awaited.
type Transaction interface {
	// Hash uniquely identifies the transaction.
	Hash() string

	// ChainID is the chain the transaction was sent to.
	ChainID() chains.ChainID

	// Wait blocks until the transaction is mined or ctx ends.
	Wait(ctx context.Context) (Receipt, error)
}
