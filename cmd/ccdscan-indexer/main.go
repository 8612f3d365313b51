// Command ccdscan-indexer runs the Concordium chain indexer: it migrates
// the database schema, seeds genesis if needed, then drives the
// preprocess/process pipeline against one or more node RPC endpoints
// until interrupted. Wiring follows the teacher's cmd/evm-node/main.go
// shape: a single urfave/cli App, structured logging set up first, and a
// root context cancelled on SIGINT for graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/concordium/ccdscan-indexer/internal/config"
	"github.com/concordium/ccdscan-indexer/internal/dbconn"
	"github.com/concordium/ccdscan-indexer/internal/genesis"
	"github.com/concordium/ccdscan-indexer/internal/indexer/pipeline"
	"github.com/concordium/ccdscan-indexer/internal/indexer/preprocess"
	"github.com/concordium/ccdscan-indexer/internal/indexer/process"
	"github.com/concordium/ccdscan-indexer/internal/logging"
	"github.com/concordium/ccdscan-indexer/internal/metrics"
	"github.com/concordium/ccdscan-indexer/internal/monitoring"
	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
	"github.com/concordium/ccdscan-indexer/internal/schema"
)

// version is stamped at build time; left as a sentinel default for
// unstamped development builds.
var version = "dev"

func main() {
	app := &cli.App{
		Name:   "ccdscan-indexer",
		Usage:  "Index a Concordium node's chain data into PostgreSQL",
		Flags:  config.Flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := config.LoadDotenv(c.String("dotenv"), c.IsSet("dotenv")); err != nil {
		return err
	}
	cfg, err := config.FromCLI(c)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, "")
	if err != nil {
		return err
	}
	logging.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.New(version)

	pool, err := dbconn.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	endpoints := make([]nodeapi.EndpointConfig, len(cfg.Nodes))
	for i, uri := range cfg.Nodes {
		endpoints[i] = nodeapi.EndpointConfig{
			URI:                     uri,
			RequestTimeout:          cfg.NodeRequestTimeout,
			ConnectTimeout:          cfg.NodeConnectTimeout,
			RequestRateLimit:        cfg.NodeRequestRateLimit,
			RequestConcurrencyLimit: cfg.NodeRequestConcurrencyLimit,
		}
	}

	bootstrapClients, closeBootstrapClients, err := dialAll(ctx, endpoints)
	if err != nil {
		return err
	}
	defer closeBootstrapClients()
	bootstrap := bootstrapClients[0]

	if cfg.Migrate || cfg.MigrateOnly {
		m := &schema.Migrator{Pool: pool, Clients: bootstrapClients, Log: log}
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("run schema migrations: %w", err)
		}
	} else if err := schema.EnsureLatest(ctx, pool); err != nil {
		return err
	}
	if cfg.MigrateOnly {
		log.Info("migrate-only requested, exiting")
		return nil
	}
	if err := schema.EnsureCompatible(ctx, pool, schema.APISupportedVersion); err != nil {
		return err
	}

	conn, err := dbconn.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := dbconn.AcquireIndexerLock(ctx, conn, cfg.IndexerLockTimeout); err != nil {
		_ = conn.Close(ctx)
		return err
	}

	empty, err := blocksTableEmpty(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return err
	}
	if empty {
		if err := genesis.Seed(ctx, conn, bootstrap, log); err != nil {
			_ = conn.Close(ctx)
			return fmt.Errorf("seed genesis: %w", err)
		}
	}

	bc, err := process.LoadBlockProcessingContext(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return err
	}

	consensus, err := bootstrap.GetConsensusInfo(ctx)
	if err != nil {
		_ = conn.Close(ctx)
		return fmt.Errorf("get consensus info for genesis hash: %w", err)
	}

	preprocessor := preprocess.NewProcessor(consensus.GenesisBlock, cfg.MaxSuccessiveFailures, cfg.StakeRecomputeEveryXBlocks, reg, log)
	processor := process.New(conn, cfg.DatabaseURL, cfg.IndexerLockTimeout, cfg.MaxSuccessiveFailures, bc, reg, log)

	driver := pipeline.New(pipeline.Config{
		Endpoints:             endpoints,
		MaxBatchSize:          1,
		MaxSuccessiveFailures: cfg.MaxSuccessiveFailures,
	}, &indexerAdapter{p: preprocessor}, processor, log)

	monitor := monitoring.New(cfg.MonitorAddr, pool, reg, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error {
		return driver.Run(gctx, nodeapi.AbsoluteHeight(bc.LastHeight+1))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// dialAll connects one client per configured endpoint, used for the
// one-time startup calls (migrations, genesis seeding, genesis-hash
// lookup) that happen before the pipeline's own per-worker connections
// are established. Returns a closer that closes every dialled client.
func dialAll(ctx context.Context, endpoints []nodeapi.EndpointConfig) ([]nodeapi.Client, func(), error) {
	clients := make([]nodeapi.Client, 0, len(endpoints))
	closeAll := func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}
	for _, ep := range endpoints {
		client, err := nodeapi.Dial(ctx, ep)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("dial bootstrap endpoint %q: %w", ep.URI, err)
		}
		clients = append(clients, client)
	}
	return clients, closeAll, nil
}

// blocksTableEmpty reports whether genesis.Seed still needs to run.
func blocksTableEmpty(ctx context.Context, conn *pgx.Conn) (bool, error) {
	var empty bool
	err := conn.QueryRow(ctx, `SELECT NOT EXISTS (SELECT 1 FROM blocks)`).Scan(&empty)
	if err != nil {
		return false, fmt.Errorf("check blocks table: %w", err)
	}
	return empty, nil
}
