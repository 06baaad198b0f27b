package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/jmanzanog/share-ledger/internal/application"
	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/config"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/marketdata"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/marketdata/finnhub"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/persistence/bootstrap"
)

// env holds what every command needs. Tests replace the loaders.
type env struct {
	out        io.Writer
	loadConfig func() (*config.Config, error)
	openStore  func(ctx context.Context, cfg *config.Config) (domain.Store, bootstrap.CloseFunc, error)
	quotes     func(cfg *config.Config) (marketdata.QuoteProvider, error)
}

func defaultEnv(out io.Writer) *env {
	return &env{
		out:        out,
		loadConfig: config.Load,
		openStore:  bootstrap.Open,
		quotes:     quoteProvider,
	}
}

func quoteProvider(cfg *config.Config) (marketdata.QuoteProvider, error) {
	switch cfg.MarketDataProvider {
	case config.MarketDataProviderFinnhub:
		return finnhub.NewClient(cfg.FinnhubAPIKey, cfg.FinnhubRateLimit), nil
	default:
		return nil, fmt.Errorf("no market data provider configured (MARKET_DATA_PROVIDER=%s)", cfg.MarketDataProvider)
	}
}

// withStore loads configuration, opens the store and runs fn against it.
func (e *env) withStore(ctx context.Context, fn func(cfg *config.Config, store domain.Store) error) subcommands.ExitStatus {
	cfg, err := e.loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	store, closeStore, err := e.openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer func() { _ = closeStore() }()

	if err := fn(cfg, store); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func retryPolicy(cfg *config.Config) application.RetryPolicy {
	return application.RetryPolicy{MaxRetries: cfg.TxMaxRetries, BaseDelay: cfg.TxRetryBaseDelay}
}

type migrateCmd struct {
	*env
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply the database schema" }
func (*migrateCmd) Usage() string {
	return `ledgerctl migrate

  Connects to DB_DRIVER/DB_DSN and brings the schema up to date.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	// Opening a store migrates it.
	return c.withStore(ctx, func(cfg *config.Config, _ domain.Store) error {
		_, err := fmt.Fprintf(c.out, "schema is up to date (%s)\n", cfg.DBDriver)
		return err
	})
}

type seedCmd struct {
	*env
	owner      string
	sharesOnly bool
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "load the demo catalog and a demo owner" }
func (*seedCmd) Usage() string {
	return `ledgerctl seed [-owner <id>] [-shares-only]

  Creates the demo shares that are missing, then gives the owner a default
  portfolio holding one lot of APL. Running it again changes nothing.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", application.DemoOwnerID, "Owner to seed with a demo position.")
	f.BoolVar(&c.sharesOnly, "shares-only", false, "Only seed the share catalog.")
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withStore(ctx, func(cfg *config.Config, store domain.Store) error {
		seeder := application.NewSeeder(store, retryPolicy(cfg))

		created, err := seeder.SeedShares(ctx, application.DefaultSeedShares)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "shares created: %d\n", created)

		if c.sharesOnly {
			return nil
		}

		trades, err := seeder.SeedDemoOwner(ctx, c.owner)
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			fmt.Fprintf(c.out, "owner %s already has assets\n", c.owner)
			return nil
		}
		fmt.Fprintf(c.out, "owner %s seeded with %d trades\n", c.owner, len(trades))
		return nil
	})
}

type sharesCmd struct {
	*env
}

func (*sharesCmd) Name() string     { return "shares" }
func (*sharesCmd) Synopsis() string { return "list the active share catalog" }
func (*sharesCmd) Usage() string {
	return `ledgerctl shares
`
}
func (*sharesCmd) SetFlags(*flag.FlagSet) {}

func (c *sharesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withStore(ctx, func(cfg *config.Config, store domain.Store) error {
		shares, err := application.NewLedgerService(store, retryPolicy(cfg)).ListShares(ctx)
		if err != nil {
			return err
		}
		return printShares(c.out, shares)
	})
}

func printShares(out io.Writer, shares []domain.Share) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tNAME\tPRICE\tUPDATED")
	for _, s := range shares {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Symbol, s.Name, s.Price, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

type refreshCmd struct {
	*env
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "update catalog prices once from the market data provider" }
func (*refreshCmd) Usage() string {
	return `ledgerctl refresh

  Fetches a quote for every active share and stores the new prices.
  Requires MARKET_DATA_PROVIDER=finnhub.
`
}
func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (c *refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withStore(ctx, func(cfg *config.Config, store domain.Store) error {
		quotes, err := c.quotes(cfg)
		if err != nil {
			return err
		}

		refresher := application.NewCatalogPriceRefresher(store, quotes, retryPolicy(cfg))
		refreshErr := refresher.RefreshPrices(ctx)

		shares, err := application.NewLedgerService(store, retryPolicy(cfg)).ListShares(ctx)
		if err != nil {
			return err
		}
		if err := printShares(c.out, shares); err != nil {
			return err
		}
		return refreshErr
	})
}
