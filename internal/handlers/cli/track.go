package cli

import (
	"context"
	"errors"
	"time"

	"github.com/gabapcia/dappkit/internal/notification"
	"github.com/gabapcia/dappkit/internal/pkg/x/chflow"

	"github.com/urfave/cli/v3"
)

var errTrackerClosed = errors.New("transaction tracker closed")

// trackCommand follows a submitted transaction until it settles.
//
// Usage example:
//
//	dappkit track --hash 0x5e1f... --network ethereum --label "Mint"
func trackCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "track",
		Description: "Wait for a submitted transaction and report its outcome.",
		Usage:       "Tracks one transaction hash. Exits non-zero if it reverts or the wait times out.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "hash",
				Usage:    "Transaction hash",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "Network key the transaction was sent to",
				Value: "ethereum",
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "Label shown next to the hash",
				Value: "Transaction",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up after this long",
				Value: 5 * time.Minute,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			network, err := lookupNetwork(deps, c.String("network"))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()

			tx, err := deps.Transactions(ctx, network, c.String("hash"))
			if err != nil {
				return err
			}

			done := make(chan error, 1)
			id := deps.Tracker.Track(ctx, tx,
				notification.WithLabel(c.String("label")),
				notification.OnSuccess(func(r notification.Receipt) {
					deps.Console.Printf("confirmed in block %d (gas used %d)\n", r.BlockNumber, r.GasUsed)
					chflow.TrySend(done, nil)
				}),
				notification.OnError(func(err error) {
					chflow.TrySend(done, err)
				}),
			)
			if id == "" {
				return errTrackerClosed
			}

			result, ok := chflow.Receive(ctx, done)
			if !ok {
				return ctx.Err()
			}
			return result
		},
	}
}
