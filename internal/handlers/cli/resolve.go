package cli

import (
	"context"

	"github.com/gabapcia/dappkit/internal/names"

	"github.com/urfave/cli/v3"
)

// resolveCommand looks up the display name of an address.
//
// Usage example:
//
//	dappkit resolve --address 0xAbC... --order ens-first
func resolveCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "resolve",
		Description: "Resolve the WNS or ENS name of an address.",
		Usage:       "Prints the name, its source and the avatar when one is set.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Address to resolve",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "order",
				Usage: `Lookup order, "wns-first" or "ens-first"`,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if order := c.String("order"); order != "" {
				if err := deps.Wallet.SetNameResolutionOrder(ctx, names.Order(order)); err != nil {
					return err
				}
			}

			result, ok := deps.Resolver.Resolve(ctx, c.String("address"))
			if !ok {
				deps.Console.Printf("no name found\n")
				return nil
			}

			deps.Console.Printf("%s (%s)\n", result.Name, result.Source)
			if result.Avatar != "" {
				deps.Console.Printf("avatar: %s\n", result.Avatar)
			}
			return nil
		},
	}
}
