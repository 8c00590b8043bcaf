package names

import (
	"context"

	"github.com/gabapcia/dappkit/internal/chains"
	httptransport "github.com/gabapcia/dappkit/internal/pkg/transport/http"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// NewRPCDialer returns a Dialer that connects to the RPC URL of network as
// currently configured in registry, user overrides included.
func NewRPCDialer(registry *chains.Registry, network string, opts ...httptransport.Option) Dialer {
	return func(ctx context.Context) (ContractCaller, func(), error) {
		url, err := registry.RPCURL(ctx, network)
		if err != nil {
			return nil, nil, err
		}

		conn, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(httptransport.NewStandardClient(opts...)))
		if err != nil {
			return nil, nil, err
		}

		client := ethclient.NewClient(conn)
		return client, client.Close, nil
	}
}
