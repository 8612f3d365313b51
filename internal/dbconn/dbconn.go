// Package dbconn owns connecting to PostgreSQL and the cross-process
// indexer advisory lock (spec.md §4.2, invariant §3(8)).
package dbconn

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// indexerLockKey is the distinguished advisory-lock key. Any single int64
// works as long as it is stable across versions of this binary; chosen
// arbitrarily and never reused for another purpose.
const indexerLockKey int64 = 8814651331915604001

// ErrLockTimeout is returned when the advisory lock cannot be acquired
// within the configured timeout — fatal per spec.md §7.
type ErrLockTimeout struct{ Timeout time.Duration }

func (e *ErrLockTimeout) Error() string {
	return fmt.Sprintf("failed to acquire indexer lock within %s: another instance may be running", e.Timeout)
}

// NewPool opens a pgx connection pool against databaseURL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// NewConnection opens a single dedicated connection, used by the block
// processor which owns the one write-path connection for its lifetime.
func NewConnection(ctx context.Context, databaseURL string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	return conn, nil
}

// querier is satisfied by both *pgx.Conn and pgxpool.Conn.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AcquireIndexerLock takes the process-wide advisory lock, blocking (via
// pg_advisory_lock, a session-level blocking call) until timeout elapses.
func AcquireIndexerLock(ctx context.Context, q querier, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var locked bool
		err := q.QueryRow(context.Background(), "SELECT pg_try_advisory_lock($1)", indexerLockKey).Scan(&locked)
		if err != nil {
			done <- fmt.Errorf("failed to acquire indexer lock: %w", err)
			return
		}
		if !locked {
			// Fall back to the blocking form so we wait for the holder to
			// release rather than busy-polling try-lock.
			var ignore any
			if err := q.QueryRow(context.Background(), "SELECT pg_advisory_lock($1)", indexerLockKey).Scan(&ignore); err != nil {
				done <- fmt.Errorf("failed to acquire indexer lock: %w", err)
				return
			}
			done <- nil
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &ErrLockTimeout{Timeout: timeout}
	}
}

// ReleaseIndexerLock releases the advisory lock held by this session.
func ReleaseIndexerLock(ctx context.Context, q querier) error {
	var released bool
	if err := q.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", indexerLockKey).Scan(&released); err != nil {
		return fmt.Errorf("failed to release indexer lock: %w", err)
	}
	return nil
}
