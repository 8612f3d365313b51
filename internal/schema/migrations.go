package schema

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/concordium/ccdscan-indexer/internal/logging"
	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

//go:embed all:../../migrations/sql
var staticMigrations embed.FS

const migrationsDir = "../../migrations/sql"

// staticSQL loads the DDL script for versions whose migration is a plain
// schema change rather than a data backfill against the chain.
var staticSQL = map[Version]string{
	Empty:                        "m0001_initial_schema.sql",
	InitialSchema:                "m0002_blocks_cumulative_fin_time_index.sql",
	BlocksCumulativeFinTimeIndex: "m0003_payday_pool_commission_rates.sql",
	PaydayPoolCommissionRates:    "m0004_baker_metrics.sql",
	BakerMetrics:                 "m0005_track_removed_bakers.sql",
	TrackRemovedBakers:           "m0006_payday_pool_rewards_partial.sql",
	PaydayPoolRewards:            "m0008_passive_delegation.sql",
	PassiveDelegation:            "m0009_reward_metrics.sql",
	RewardMetrics:                "m0010_payday_pool_stake_partial.sql",
	PaydayPoolStake:              "m0012_chain_update_events.sql",
	ChainUpdateEvents:            "m0013_suspended_validators.sql",
	SuspendedValidators:          "m0014_token_plt.sql",
}

// ErrIncompatibleOlder is returned when the database schema is older than
// the version this build supports, and non-destructive versions have been
// introduced since — meaning a `--migrate` run is required.
type ErrIncompatibleOlder struct {
	Current, Supported Version
}

func (e *ErrIncompatibleOlder) Error() string {
	return fmt.Sprintf("database schema version %d is older than supported version %d and not all intervening versions are destructive: run with --migrate", e.Current, e.Supported)
}

// ErrIncompatibleNewer is returned when the database schema is newer than
// this build supports and at least one destructive migration has run since.
type ErrIncompatibleNewer struct {
	Current, Supported Version
	Destructive        []Version
}

func (e *ErrIncompatibleNewer) Error() string {
	return fmt.Sprintf("database schema version %d is newer than supported version %d with %d destructive migrations since: upgrade this build", e.Current, e.Supported, len(e.Destructive))
}

// ErrNoMigrationsTable is returned when the migrations table itself is
// missing, meaning the database has never been initialized.
var ErrNoMigrationsTable = fmt.Errorf("no migrations table found: run with --migrate to initialize the database schema")

// EnsureMigrationsTable creates the bookkeeping table if absent.
func EnsureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS migrations (
		version BIGINT PRIMARY KEY,
		description TEXT NOT NULL,
		destructive BOOL NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}
	return nil
}

func hasMigrationsTable(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = 'migrations'
	)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migrations table: %w", err)
	}
	return exists, nil
}

// Current returns the highest version recorded in the migrations table.
func Current(ctx context.Context, pool *pgxpool.Pool) (Version, error) {
	var raw int64
	err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM migrations`).Scan(&raw)
	if err != nil {
		return 0, fmt.Errorf("query current schema version: %w", err)
	}
	return FromInt64(raw)
}

func destructiveSince(ctx context.Context, pool *pgxpool.Pool, since Version) ([]Version, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM migrations WHERE version > $1 AND destructive IS TRUE ORDER BY version ASC`, int64(since))
	if err != nil {
		return nil, fmt.Errorf("query destructive migrations: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var raw int64
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := FromInt64(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// EnsureCompatible mirrors ensure_compatible_schema_version: it checks the
// current database schema is usable by a build that supports `supported`,
// without requiring every version be identical (spec.md §4.1).
func EnsureCompatible(ctx context.Context, pool *pgxpool.Pool, supported Version) error {
	ok, err := hasMigrationsTable(ctx, pool)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoMigrationsTable
	}
	current, err := Current(ctx, pool)
	if err != nil {
		return err
	}
	switch {
	case current == supported:
		return nil
	case current < supported:
		for v := current + 1; v <= supported; v++ {
			if !v.IsDestructive() {
				return &ErrIncompatibleOlder{Current: current, Supported: supported}
			}
		}
		return nil
	default:
		destructiveVersions, err := destructiveSince(ctx, pool, supported)
		if err != nil {
			return err
		}
		if len(destructiveVersions) > 0 {
			return &ErrIncompatibleNewer{Current: current, Supported: supported, Destructive: destructiveVersions}
		}
		return nil
	}
}

// EnsureLatest mirrors ensure_latest_schema_version, used when the operator
// has not opted into --migrate: refuses to start against a stale schema.
func EnsureLatest(ctx context.Context, pool *pgxpool.Pool) error {
	ok, err := hasMigrationsTable(ctx, pool)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoMigrationsTable
	}
	current, err := Current(ctx, pool)
	if err != nil {
		return err
	}
	if current != LatestVersion {
		return fmt.Errorf("database schema version %d is not the latest (%d): run with --migrate", current, LatestVersion)
	}
	return nil
}

// Migrator drives the database from its current version to LatestVersion,
// one version at a time, each in its own transaction (mirrors run_migrations).
type Migrator struct {
	Pool    *pgxpool.Pool
	Clients []nodeapi.Client // at least one chain endpoint, needed by data-backfill migrations
	Log     logging.Logger
}

// Migrate runs until LatestVersion is reached or ctx is cancelled between
// steps. A partial version may be committed without completing all of its
// outstanding backfill work; Migrate simply re-enters it on the next call.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := EnsureMigrationsTable(ctx, m.Pool); err != nil {
		return err
	}
	current, err := Current(ctx, m.Pool)
	if err != nil {
		return err
	}
	m.Log.Info("starting schema migration", "current", current, "latest", LatestVersion)
	for current < LatestVersion {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		next, err := m.step(ctx, current)
		if err != nil {
			return fmt.Errorf("migrating from schema version %d: %w", current, err)
		}
		if next.IsPartial() {
			m.Log.Info("committed partial migration", "version", next)
		} else {
			m.Log.Info("migrated schema", "version", next)
		}
		current = next
	}
	return nil
}

// step runs exactly one version transition in its own transaction.
func (m *Migrator) step(ctx context.Context, current Version) (Version, error) {
	tx, err := m.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin migration transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	next, err := m.runStep(ctx, tx, current)
	if err != nil {
		return 0, err
	}
	end := time.Now()

	if err := recordMigration(ctx, tx, next, start, end); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit migration transaction: %w", err)
	}
	return next, nil
}

func (m *Migrator) runStep(ctx context.Context, tx pgx.Tx, current Version) (Version, error) {
	if sqlFile, ok := staticSQL[current]; ok {
		contents, err := staticMigrations.ReadFile(migrationsDir + "/" + sqlFile)
		if err != nil {
			return 0, fmt.Errorf("read migration script %s: %w", sqlFile, err)
		}
		if _, err := tx.Exec(ctx, string(contents)); err != nil {
			return 0, fmt.Errorf("execute migration script %s: %w", sqlFile, err)
		}
		return current + 1, nil
	}

	switch current {
	case PaydayPoolRewardsPartial:
		return m.paydayPoolRewardsBackfill(ctx, tx)
	case PaydayPoolStakePartial:
		return m.paydayPoolStakeBackfill(ctx, tx)
	case TokenPLT:
		return m.genesisValidatorInfoBackfill(ctx, tx)
	default:
		return 0, fmt.Errorf("no migration implemented for schema version %d", current)
	}
}

func recordMigration(ctx context.Context, tx pgx.Tx, v Version, start, end time.Time) error {
	_, err := tx.Exec(ctx, `INSERT INTO migrations (version, description, destructive, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (version) DO UPDATE SET end_time = EXCLUDED.end_time`,
		int64(v), v.String(), v.IsDestructive(), start, end)
	if err != nil {
		return fmt.Errorf("record migration %d: %w", v, err)
	}
	return nil
}

func (m *Migrator) node() (nodeapi.Client, error) {
	if len(m.Clients) == 0 {
		return nil, fmt.Errorf("this migration requires access to a chain node but none was configured")
	}
	return m.Clients[0], nil
}
