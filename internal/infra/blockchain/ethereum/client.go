// Package ethereum reads transaction receipts from Ethereum-compatible nodes
// over JSON-RPC and exposes submitted transactions as awaitable handles.
package ethereum

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/dappkit/internal/pkg/types"
)

const (
	// averageBlockTime is the default receipt polling interval.
	averageBlockTime = 12 * time.Second

	// maxConsecutiveFailures is how many failed receipt lookups in a row
	// end a Wait.
	maxConsecutiveFailures = 3
)

// client talks to an Ethereum node through a JSON-RPC client.
type client struct {
	conn         jsonrpc.Client
	pollInterval time.Duration
}

type config struct {
	pollInterval time.Duration
}

// Option configures the client.
type Option func(*config)

// WithPollInterval sets how often Wait asks for the receipt.
// Default: 12 seconds, one mainnet block.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		c.pollInterval = d
	}
}

// NewClient creates a new Ethereum client using the provided JSON-RPC connection.
func NewClient(conn jsonrpc.Client, opts ...Option) *client {
	cfg := config{pollInterval: averageBlockTime}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &client{
		conn:         conn,
		pollInterval: cfg.pollInterval,
	}
}

// ChainID asks the node which chain it serves.
func (c *client) ChainID(ctx context.Context) (chains.ChainID, error) {
	data, err := c.conn.Fetch(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}

	var chainID types.Hex
	if err := json.Unmarshal(data, &chainID); err != nil {
		return 0, err
	}

	return chains.ParseChainID(chainID)
}
