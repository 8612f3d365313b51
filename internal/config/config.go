// Package config defines the indexer's CLI surface (spec.md §6) built on
// urfave/cli/v2, the flag library the teacher's cmd/evm-node/main.go uses,
// layered with a .env loader so flags, environment variables and a dotenv
// file all resolve to the same Config value. A viper instance is also set
// up, but FromCLI does not read any value from it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

// Config holds every value the CLI surface in spec.md §6 accepts.
type Config struct {
	DatabaseURL  string
	Nodes        []string
	MonitorAddr  string
	LogLevel     string
	Migrate      bool
	MigrateOnly  bool
	DotenvPath   string

	StakeRecomputeEveryXBlocks uint64

	NodeRequestTimeout          time.Duration
	NodeConnectTimeout          time.Duration
	NodeRequestRateLimit        float64
	NodeRequestConcurrencyLimit int
	IndexerLockTimeout          time.Duration
	MaxSuccessiveFailures       uint32
}

// Flags is the urfave/cli flag set for the indexer binary.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "database-url", EnvVars: []string{"CCDSCAN_DATABASE_URL"}, Required: true, Usage: "PostgreSQL connection URL"},
		&cli.StringSliceFlag{Name: "node", EnvVars: []string{"CCDSCAN_NODE"}, Required: true, Usage: "Node RPC endpoint (repeatable)"},
		&cli.StringFlag{Name: "monitoring-listen", Value: "0.0.0.0:8080", EnvVars: []string{"CCDSCAN_MONITORING_LISTEN"}},
		&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"CCDSCAN_LOG_LEVEL"}},
		&cli.BoolFlag{Name: "migrate", EnvVars: []string{"CCDSCAN_MIGRATE"}},
		&cli.BoolFlag{Name: "migrate-only", EnvVars: []string{"CCDSCAN_MIGRATE_ONLY"}},
		&cli.StringFlag{Name: "dotenv", Value: ".env", EnvVars: []string{"CCDSCAN_DOTENV"}},
		&cli.Uint64Flag{Name: "stake-recompute-every-x-blocks", Value: 200, EnvVars: []string{"CCDSCAN_STAKE_RECOMPUTE_EVERY_X_BLOCKS"}},
		&cli.DurationFlag{Name: "node-request-timeout", Value: 30 * time.Second, EnvVars: []string{"CCDSCAN_NODE_REQUEST_TIMEOUT"}},
		&cli.DurationFlag{Name: "node-connect-timeout", Value: 10 * time.Second, EnvVars: []string{"CCDSCAN_NODE_CONNECT_TIMEOUT"}},
		&cli.Float64Flag{Name: "node-request-rate-limit", Value: 0, EnvVars: []string{"CCDSCAN_NODE_REQUEST_RATE_LIMIT"}, Usage: "0 disables rate limiting"},
		&cli.IntFlag{Name: "node-request-concurrency-limit", Value: 8, EnvVars: []string{"CCDSCAN_NODE_REQUEST_CONCURRENCY_LIMIT"}},
		&cli.DurationFlag{Name: "indexer-lock-timeout", Value: 5 * time.Second, EnvVars: []string{"CCDSCAN_INDEXER_LOCK_TIMEOUT"}},
		&cli.Uint64Flag{Name: "max-successive-failures", Value: 10, EnvVars: []string{"CCDSCAN_MAX_SUCCESSIVE_FAILURES"}},
	}
}

// LoadDotenv loads the dotenv file at path into the process environment, if
// it exists. A missing default file is not an error; an explicitly named
// missing file is.
func LoadDotenv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to load dotenv file %q: %w", path, err)
	}
	return nil
}

// FromCLI builds a Config from a parsed cli.Context. Every field is read
// from its cli flag (each flag reads its own CCDSCAN_ environment
// variable); the viper instance configured here is not consulted for any
// field, so CCDSCAN_ variables without a flag are ignored.
func FromCLI(c *cli.Context) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ccdscan")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	cfg := &Config{
		DatabaseURL:                  c.String("database-url"),
		Nodes:                        c.StringSlice("node"),
		MonitorAddr:                  c.String("monitoring-listen"),
		LogLevel:                     c.String("log-level"),
		Migrate:                      c.Bool("migrate"),
		MigrateOnly:                  c.Bool("migrate-only"),
		DotenvPath:                   c.String("dotenv"),
		StakeRecomputeEveryXBlocks:   c.Uint64("stake-recompute-every-x-blocks"),
		NodeRequestTimeout:           c.Duration("node-request-timeout"),
		NodeConnectTimeout:           c.Duration("node-connect-timeout"),
		NodeRequestRateLimit:         c.Float64("node-request-rate-limit"),
		NodeRequestConcurrencyLimit:  c.Int("node-request-concurrency-limit"),
		IndexerLockTimeout:           c.Duration("indexer-lock-timeout"),
		MaxSuccessiveFailures:        uint32(c.Uint64("max-successive-failures")),
	}

	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("at least one --node endpoint is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("--database-url is required")
	}
	return cfg, nil
}
