package cli

import (
	"context"
	"time"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/notification"
	"github.com/gabapcia/dappkit/internal/session"
	"github.com/gabapcia/dappkit/internal/wallet"

	"github.com/urfave/cli/v3"
)

// Tracker follows submitted transactions to a receipt.
type Tracker interface {
	Track(ctx context.Context, tx notification.Transaction, opts ...notification.TrackOption) string
}

// TransactionSource builds an awaitable handle for hash on network.
type TransactionSource func(ctx context.Context, network chains.Network, hash string) (notification.Transaction, error)

// Dependencies are the services the commands drive.
type Dependencies struct {
	Wallet       wallet.Service
	Networks     *chains.Registry
	Session      *session.Session
	Resolver     wallet.NameResolver
	Tracker      Tracker
	Transactions TransactionSource
	Console      *Console

	// ReconcileInterval paces the background checks of the watch command.
	ReconcileInterval time.Duration
}

// Run initializes and executes the dappkit CLI application with args
// (usually os.Args).
//
// It registers all available commands, including:
//
//   - `networks`: Lists the supported networks and their RPC endpoints.
//   - `connect`, `status`, `verify`, `switch`, `disconnect`: Drive the wallet session.
//   - `watch`: Keeps the session reconciled and prints wallet events until interrupted.
//   - `resolve`: Looks up the WNS or ENS name of an address.
//   - `track`: Waits for a submitted transaction to settle.
//   - `rpc set|clear`: Edits per-network RPC overrides.
func Run(ctx context.Context, deps Dependencies, args []string) error {
	app := &cli.Command{
		EnableShellCompletion: true,
		Name:                  "dappkit",
		Description:           "Command-line front-end for the dappkit wallet session and transaction tracker.",
		Usage:                 "dappkit [command] [flags]",
		Writer:                deps.Console,
		ErrWriter:             deps.Console,
		Commands: []*cli.Command{
			networksCommand(deps),
			connectCommand(deps),
			statusCommand(deps),
			verifyCommand(deps),
			switchCommand(deps),
			disconnectCommand(deps),
			watchCommand(deps),
			resolveCommand(deps),
			trackCommand(deps),
			rpcCommand(deps),
		},
	}

	return app.Run(ctx, args)
}
