package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/notification"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
	"github.com/gabapcia/dappkit/internal/pkg/types"
)

// ReceiptResponse is the subset of eth_getTransactionReceipt the tracker needs.
type ReceiptResponse struct {
	TransactionHash string    `json:"transactionHash"`
	BlockHash       string    `json:"blockHash"`
	BlockNumber     types.Hex `json:"blockNumber"`
	GasUsed         types.Hex `json:"gasUsed"`
	Status          types.Hex `json:"status"`
	From            string    `json:"from"`
	To              string    `json:"to"`
}

// toReceipt converts a ReceiptResponse to a notification.Receipt.
func (r ReceiptResponse) toReceipt() notification.Receipt {
	return notification.Receipt{
		TxHash:      r.TransactionHash,
		BlockHash:   r.BlockHash,
		BlockNumber: r.BlockNumber.Uint64(),
		GasUsed:     r.GasUsed.Uint64(),
		Status:      r.Status.Uint64(),
	}
}

// getTransactionReceipt returns nil while the transaction is still pending.
func (c *client) getTransactionReceipt(ctx context.Context, hash string) (*ReceiptResponse, error) {
	data, err := c.conn.Fetch(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}

	var receipt *ReceiptResponse
	return receipt, json.Unmarshal(data, &receipt)
}

// Transaction is a submitted transaction whose receipt is polled from the node.
type Transaction struct {
	client  *client
	hash    string
	chainID chains.ChainID
}

var _ notification.Transaction = (*Transaction)(nil)

// Transaction returns a handle for hash sent to chainID.
func (c *client) Transaction(hash string, chainID chains.ChainID) *Transaction {
	return &Transaction{
		client:  c,
		hash:    hash,
		chainID: chainID,
	}
}

func (t *Transaction) Hash() string {
	return t.hash
}

func (t *Transaction) ChainID() chains.ChainID {
	return t.chainID
}

// Wait polls for the receipt, first immediately and then every poll
// interval. A few failed lookups in a row are tolerated.
func (t *Transaction) Wait(ctx context.Context) (notification.Receipt, error) {
	var (
		failures int
		delay    time.Duration
	)

	for {
		select {
		case <-ctx.Done():
			return notification.Receipt{}, ctx.Err()
		case <-time.After(delay):
		}
		delay = t.client.pollInterval

		receipt, err := t.client.getTransactionReceipt(ctx, t.hash)
		if err != nil {
			failures++
			logger.Debug(ctx, "receipt lookup failed",
				"tx.hash", t.hash,
				"tx.failures", failures,
				"error", err,
			)

			if failures >= maxConsecutiveFailures {
				return notification.Receipt{}, fmt.Errorf("failed to fetch receipt for %s: %w", t.hash, err)
			}
			continue
		}

		failures = 0
		if receipt != nil {
			return receipt.toReceipt(), nil
		}
	}
}
