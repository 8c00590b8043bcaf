package cli

import (
	"context"
	"fmt"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/pkg/validator"

	"github.com/urfave/cli/v3"
)

// networksCommand lists the catalog with the effective RPC endpoint of
// every network.
func networksCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "networks",
		Description: "List the supported networks.",
		Usage:       "Prints key, name, chain id and the RPC endpoint in use.",
		Action: func(ctx context.Context, c *cli.Command) error {
			for _, n := range deps.Networks.Networks() {
				url, err := deps.Networks.RPCURL(ctx, n.Key)
				if err != nil {
					return err
				}

				visible := ""
				if n.Visible {
					visible = "*"
				}
				deps.Console.Printf("%-1s %-12s %-20s %-8s %s\n", visible, n.Key, n.Name, n.ChainID.Hex(), url)
			}
			return nil
		},
	}
}

func lookupNetwork(deps Dependencies, key string) (chains.Network, error) {
	network, ok := deps.Networks.ByKey(key)
	if !ok {
		return chains.Network{}, fmt.Errorf("%w: %s", chains.ErrNetworkNotFound, key)
	}
	return network, nil
}

// rpcCommand groups the RPC override editors.
//
// Usage example:
//
//	dappkit rpc set --network ethereum --url https://eth.llamarpc.com
//	dappkit rpc clear --network ethereum
func rpcCommand(deps Dependencies) *cli.Command {
	networkFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "network",
			Usage:    "Network key (e.g., ethereum)",
			Required: true,
		}
	}

	return &cli.Command{
		Name:        "rpc",
		Description: "Manage per-network RPC endpoint overrides.",
		Usage:       "Overrides replace the catalog RPC URL until cleared.",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Use a custom RPC endpoint for a network.",
				Flags: []cli.Flag{
					networkFlag(),
					&cli.StringFlag{
						Name:     "url",
						Usage:    "HTTP(S) or WS(S) endpoint",
						Required: true,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					network, err := lookupNetwork(deps, c.String("network"))
					if err != nil {
						return err
					}

					url := c.String("url")
					if err := validator.Var(url, "rpc_url"); err != nil {
						return fmt.Errorf("invalid rpc url %q: %w", url, err)
					}

					if err := deps.Session.SetRPCOverride(ctx, network.Key, url); err != nil {
						return err
					}

					deps.Console.Printf("%s now uses %s\n", network.Name, url)
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Go back to the catalog RPC endpoint.",
				Flags: []cli.Flag{networkFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					network, err := lookupNetwork(deps, c.String("network"))
					if err != nil {
						return err
					}

					if err := deps.Session.ClearRPCOverride(ctx, network.Key); err != nil {
						return err
					}

					deps.Console.Printf("%s uses %s\n", network.Name, network.RPCURL)
					return nil
				},
			},
		},
	}
}
