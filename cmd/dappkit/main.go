package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/config"
	"github.com/gabapcia/dappkit/internal/discovery"
	"github.com/gabapcia/dappkit/internal/handlers/cli"
	"github.com/gabapcia/dappkit/internal/infra/blockchain/ethereum"
	"github.com/gabapcia/dappkit/internal/infra/provider/bridge"
	"github.com/gabapcia/dappkit/internal/infra/provider/rpc"
	"github.com/gabapcia/dappkit/internal/infra/storage/memory"
	"github.com/gabapcia/dappkit/internal/infra/storage/redis"
	"github.com/gabapcia/dappkit/internal/names"
	"github.com/gabapcia/dappkit/internal/notification"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
	"github.com/gabapcia/dappkit/internal/pkg/telemetry"
	"github.com/gabapcia/dappkit/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/dappkit/internal/session"
	"github.com/gabapcia/dappkit/internal/wallet"

	"go.opentelemetry.io/otel"
)

func main() {
	ctx := context.Background()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	shutdown := telemetry.NopShutdown
	if cfg.TelemetryEnabled {
		if shutdown, err = telemetry.Init(ctx, cfg.ServiceName); err != nil {
			return fmt.Errorf("failed to start telemetry: %w", err)
		}
	}
	defer func() { err = errors.Join(err, shutdown(context.Background())) }()

	// Logs go to stderr so command output stays clean on stdout.
	if err := logger.Init(logger.WithLevel(cfg.LogLevel), logger.WithOutput(os.Stderr)); err != nil {
		return err
	}
	defer logger.Sync()

	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sess := session.New(store)

	registry, err := chains.NewRegistry(catalog.Networks, chains.WithRPCOverrides(sess))
	if err != nil {
		return err
	}

	console := cli.NewConsole(os.Stdout)

	center, err := notification.New(registry, console.View(), notification.WithMeterProvider(otel.GetMeterProvider()))
	if err != nil {
		return err
	}
	defer center.Close()

	bus := discovery.NewBus()
	providers := discovery.NewRegistry(bus)
	defer providers.Close()

	closeWallets := announceWallets(ctx, bus, catalog.Wallets, cfg)
	defer closeWallets()

	order, err := names.ParseOrder(cfg.NameResolutionOrder)
	if err != nil {
		return err
	}

	resolver, err := names.New(names.NewRPCDialer(registry, chains.Ethereum.Key),
		names.WithOrder(order),
		names.WithCacheTTL(cfg.NameCacheTTL),
	)
	if err != nil {
		return err
	}

	svc := wallet.New(providers, sess, registry,
		wallet.WithNotifier(center),
		wallet.WithNameResolver(resolver),
		wallet.WithVerifyRetries(cfg.VerifyRetries),
		wallet.WithVerifyRetryDelay(cfg.VerifyRetryDelay),
		wallet.WithDisplayHook(func(d wallet.Display) {
			logger.Debug(ctx, "wallet display updated", "wallet.address", d.Short, "wallet.ens", d.Name)
		}),
	)
	defer svc.Close()

	transactions := func(ctx context.Context, network chains.Network, hash string) (notification.Transaction, error) {
		url, err := registry.RPCURL(ctx, network.Key)
		if err != nil {
			return nil, err
		}

		client := ethereum.NewClient(jsonrpc.NewClient(url), ethereum.WithPollInterval(cfg.ReceiptPollInterval))
		return client.Transaction(hash, network.ChainID), nil
	}

	return cli.Run(ctx, cli.Dependencies{
		Wallet:            svc,
		Networks:          registry,
		Session:           sess,
		Resolver:          resolver,
		Tracker:           center,
		Transactions:      transactions,
		Console:           console,
		ReconcileInterval: cfg.ReconcileInterval,
	}, os.Args)
}

// openStore returns the configured session backend and its release func.
func openStore(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	if cfg.StoreBackend == config.StoreMemory {
		logger.Warn(ctx, "memory session store keeps the session for this process only")
		return memory.New(), func() {}, nil
	}

	client, err := redis.NewClient(ctx, cfg.Redis.Addr,
		redis.WithCredentials(cfg.Redis.Username, cfg.Redis.Password),
		redis.WithDB(cfg.Redis.DB),
		redis.WithProfile(cfg.Redis.Profile),
	)
	if err != nil {
		return nil, nil, err
	}

	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn(ctx, "failed to close redis connection", "error", err)
		}
	}, nil
}

// announceWallets connects to every catalog wallet and registers it on the
// bus. Unreachable bridges are skipped. The returned func closes them all.
func announceWallets(ctx context.Context, bus *discovery.Bus, wallets []config.Wallet, cfg config.Config) func() {
	var closers []func()

	for _, w := range wallets {
		var p discovery.Provider

		switch w.Kind {
		case config.WalletBridge:
			b, err := bridge.Dial(ctx, w.URL)
			if err != nil {
				logger.Warn(ctx, "skipping unreachable wallet", "wallet.name", w.Name, "error", err)
				continue
			}
			closers = append(closers, func() { b.Close() })
			p = b

		case config.WalletRPC:
			r := rpc.New(jsonrpc.NewClient(w.URL), rpc.WithPollInterval(cfg.ReconcileInterval))
			r.Start(ctx)
			closers = append(closers, r.Close)
			p = r
		}

		unregister := bus.Register(discovery.ProviderDetail{
			Info:     discovery.Info{Name: w.Name, Icon: w.Icon, RDNS: w.RDNS},
			Provider: p,
		})
		closers = append(closers, unregister)
	}

	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}
