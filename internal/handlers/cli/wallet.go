package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gabapcia/dappkit/internal/wallet"

	"github.com/urfave/cli/v3"
)

// connectCommand returns a CLI command that connects an announced wallet.
//
// Usage example:
//
//	dappkit connect --wallet "Acme Wallet"
func connectCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "connect",
		Description: "Request accounts from an announced wallet and persist the session.",
		Usage:       "Connects the named wallet. Run `dappkit status` afterwards to inspect the session.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "wallet",
				Usage:    "Announced wallet name (see the catalog)",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			conn, err := deps.Wallet.ConnectWallet(ctx, c.String("wallet"))
			if err != nil {
				return err
			}

			deps.Console.Printf("connected %s on %s (%s)\n",
				wallet.ShortenAddress(conn.Accounts[0]),
				deps.Networks.DisplayName(conn.ChainID),
				conn.ChainID.Hex(),
			)
			return nil
		},
	}
}

// statusCommand restores the persisted session and prints it.
func statusCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "status",
		Description: "Restore the persisted session against the live wallet and print it.",
		Usage:       "Prints the connection state, account and chain.",
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := deps.Wallet.RestoreState(ctx); err != nil {
				return err
			}

			if !deps.Wallet.IsConnected(ctx) {
				deps.Console.Printf("disconnected\n")
				return nil
			}

			printSession(ctx, deps)
			return nil
		},
	}
}

func printSession(ctx context.Context, deps Dependencies) {
	deps.Console.Printf("state:   %s\n", deps.Wallet.State())

	if account, ok := deps.Wallet.Account(ctx); ok {
		deps.Console.Printf("account: %s\n", account)
	}

	if id, ok := deps.Wallet.ChainID(ctx); ok {
		allowed := "supported"
		if !deps.Networks.IsAllowed(id) {
			allowed = "unsupported"
		}
		deps.Console.Printf("chain:   %s (%s, %s)\n", deps.Networks.DisplayName(id), id.Hex(), allowed)
	}
}

// verifyCommand runs one silent reconciliation pass.
//
// Usage example:
//
//	dappkit verify --retries 2 --delay 500ms
func verifyCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "verify",
		Description: "Silently re-check the persisted session against the wallet.",
		Usage:       "Reconciles the session. The session is cleared when the wallet no longer reports accounts, unless --allow-disconnect=false.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "allow-disconnect",
				Usage: "Clear the session when the wallet is no longer authorized",
				Value: true,
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Attempts after the first one",
				Value: 2,
			},
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "Pause between attempts",
				Value: 500 * time.Millisecond,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			connected, err := deps.Wallet.VerifyConnectionState(ctx, wallet.VerifyOptions{
				AllowDisconnect: c.Bool("allow-disconnect"),
				Retries:         c.Int("retries"),
				RetryDelay:      c.Duration("delay"),
			})
			if err != nil {
				return err
			}

			if connected {
				deps.Console.Printf("connected\n")
			} else {
				deps.Console.Printf("disconnected\n")
			}
			return nil
		},
	}
}

// switchCommand asks the connected wallet to move to a catalog network.
//
// Usage example:
//
//	dappkit switch --network ethereum
func switchCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "switch",
		Description: "Ask the connected wallet to switch to a supported network.",
		Usage:       "Switches the wallet network. The network key comes from `dappkit networks`.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "network",
				Usage:    "Network key (e.g., ethereum)",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			network, err := lookupNetwork(deps, c.String("network"))
			if err != nil {
				return err
			}

			if err := deps.Wallet.RestoreState(ctx); err != nil {
				return err
			}

			if err := deps.Wallet.SwitchNetwork(ctx, network); err != nil {
				return err
			}

			deps.Console.Printf("switched to %s (%s)\n", network.Name, network.ChainID.Hex())
			return nil
		},
	}
}

// disconnectCommand revokes the wallet permissions and clears the session.
func disconnectCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "disconnect",
		Description: "Revoke wallet permissions and clear the persisted session.",
		Usage:       "Disconnects the wallet. Running it twice is harmless.",
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := deps.Wallet.Disconnect(ctx); err != nil {
				return err
			}

			deps.Console.Printf("disconnected\n")
			return nil
		},
	}
}

// watchCommand restores the session and keeps it reconciled, printing
// wallet events until interrupted.
//
// Usage example:
//
//	dappkit watch
//
// The process runs until it receives an interrupt (SIGINT or SIGTERM).
func watchCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "watch",
		Description: "Restore the session, then print wallet events and reconcile periodically.",
		Usage:       "Follows the wallet. Terminates gracefully on Ctrl+C or termination signals.",
		Action: func(ctx context.Context, c *cli.Command) error {
			deps.Wallet.OnConnect(func(e wallet.ConnectEvent) {
				deps.Console.Printf("connect: %s on %s\n", e.Accounts[0], e.ChainIDHex)
			})
			deps.Wallet.OnDisconnect(func() {
				deps.Console.Printf("disconnect\n")
			})
			deps.Wallet.OnChainChange(func(e wallet.ChainChangeEvent) {
				deps.Console.Printf("chain: %s (%s) allowed=%t\n", e.Name, e.HexChainID, e.Allowed)
			})

			if err := deps.Wallet.RestoreState(ctx); err != nil {
				return err
			}
			deps.Console.Printf("watching (%s)\n", deps.Wallet.State())

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			interval := deps.ReconcileInterval
			if interval <= 0 {
				interval = 30 * time.Second
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-quit:
					return nil
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					deps.Wallet.Resume(ctx)
				}
			}
		},
	}
}
