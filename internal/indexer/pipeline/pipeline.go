// Package pipeline drives the two-stage indexer: a pool of per-endpoint
// preprocessing workers fanning out concurrently, and a single sequential
// processor applying their output in height order. Grounded on the
// concordium_rust_sdk::indexer::{Indexer, ProcessEvent} trait usage
// visible through original_source/backend/src/indexer/block_preprocessor.rs
// and block_processor.rs — REDESIGN FLAGS §9 replaces the trait-object
// hierarchy with two plain Go interfaces and one concrete driver.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/concordium/ccdscan-indexer/internal/logging"
	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

// Indexer is implemented once and shared by every per-endpoint worker
// goroutine; all methods must be safe for concurrent use. Mirrors the
// concordium_rust_sdk Indexer trait's on_connect/on_finalized/on_failure
// triad.
type Indexer[T any] interface {
	// OnConnect verifies a freshly dialled client before the driver hands
	// it any blocks, returning a human-readable label for metrics/logs.
	OnConnect(ctx context.Context, client nodeapi.Client, endpoint string) (string, error)
	// OnFinalized produces one prepared unit of work for a finalized block.
	OnFinalized(ctx context.Context, client nodeapi.Client, endpoint string, fbi nodeapi.FinalizedBlockInfo) (T, error)
	// OnFailure decides whether the driver should keep retrying this
	// endpoint after successiveFailures in a row.
	OnFailure(ctx context.Context, endpoint string, successiveFailures uint32, cause error) bool
}

// ProcessEvent is implemented once and driven single-threaded: no method
// is ever called concurrently with another.
type ProcessEvent[T any] interface {
	// Process applies one height-ordered batch and returns a short
	// description for logging.
	Process(ctx context.Context, batch []T) (string, error)
	// OnFailure reacts to a failed Process call and reports whether the
	// driver should retry.
	OnFailure(ctx context.Context, cause error, successiveFailures uint32) (bool, error)
}

// Heighted is implemented by whatever ProcessEvent's T is, so the driver's
// reordering buffer can sort purely preprocessed output without any
// dependency on the concrete prepared-block type.
type Heighted interface {
	Height() uint64
}

// Config controls the driver's concurrency and batching behaviour
// (spec.md §5, §6's performance-tuning flag group).
type Config struct {
	Endpoints             []nodeapi.EndpointConfig
	MaxBatchSize          int
	MaxSuccessiveFailures uint32
	// ReconnectBackoff is consulted between dial attempts for a single
	// endpoint; nil selects backoff.NewExponentialBackOff()'s defaults.
	ReconnectBackoff func() backoff.BackOff
}

// Driver runs the preprocessing worker pool and the sequential processor
// concurrently until ctx is cancelled or a fatal error occurs.
type Driver[T Heighted] struct {
	cfg       Config
	indexer   Indexer[T]
	processor ProcessEvent[T]
	log       logging.Logger

	out chan heightedResult[T]
}

type heightedResult[T Heighted] struct {
	value T
	err   error
}

// New constructs a Driver ready for Run.
func New[T Heighted](cfg Config, indexer Indexer[T], processor ProcessEvent[T], log logging.Logger) *Driver[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}
	return &Driver[T]{
		cfg:       cfg,
		indexer:   indexer,
		processor: processor,
		log:       log,
		out:       make(chan heightedResult[T], len(cfg.Endpoints)*2+cfg.MaxBatchSize),
	}
}

// Run starts one worker per configured endpoint plus the reordering
// sequencer, and blocks until ctx is cancelled or a worker/the sequencer
// returns a non-recoverable error. A cancelled ctx always yields a nil
// error (graceful drain, spec.md §5).
func (d *Driver[T]) Run(ctx context.Context, startHeight nodeapi.AbsoluteHeight) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := range d.cfg.Endpoints {
		epCfg := d.cfg.Endpoints[i]
		g.Go(func() error {
			return d.runWorker(gctx, epCfg, startHeight)
		})
	}

	g.Go(func() error {
		return d.runSequencer(gctx, startHeight)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runWorker owns one node endpoint: connect, verify, stream finalized
// blocks, preprocess each concurrently-safe call, and push results to the
// shared output channel. On a connection or preprocessing failure it asks
// Indexer.OnFailure whether to keep retrying this endpoint, backing off
// between dial attempts.
func (d *Driver[T]) runWorker(ctx context.Context, epCfg nodeapi.EndpointConfig, startHeight nodeapi.AbsoluteHeight) error {
	var successiveFailures uint32
	bo := d.newBackoff()

	for {
		if ctx.Err() != nil {
			return nil
		}

		client, label, err := d.connect(ctx, epCfg)
		if err != nil {
			successiveFailures++
			if !d.indexer.OnFailure(ctx, epCfg.URI, successiveFailures, err) {
				return fmt.Errorf("endpoint %s: %w", epCfg.URI, err)
			}
			if !sleepBackoff(ctx, bo) {
				return nil
			}
			continue
		}

		err = d.streamFromEndpoint(ctx, client, label, epCfg.URI, startHeight, &successiveFailures)
		_ = client.Close()
		if err == nil {
			return nil // context cancelled
		}
		if !d.indexer.OnFailure(ctx, epCfg.URI, successiveFailures, err) {
			return fmt.Errorf("endpoint %s: %w", epCfg.URI, err)
		}
		if !sleepBackoff(ctx, bo) {
			return nil
		}
	}
}

func (d *Driver[T]) connect(ctx context.Context, epCfg nodeapi.EndpointConfig) (nodeapi.Client, string, error) {
	client, err := nodeapi.Dial(ctx, epCfg)
	if err != nil {
		return nil, "", fmt.Errorf("dial: %w", err)
	}
	label, err := d.indexer.OnConnect(ctx, client, epCfg.URI)
	if err != nil {
		_ = client.Close()
		return nil, "", fmt.Errorf("on_connect: %w", err)
	}
	return client, label, nil
}

// streamFromEndpoint subscribes to get_finalized_blocks from startHeight
// and preprocesses each block in turn, resetting successiveFailures after
// every success. Returns nil only when ctx is cancelled.
func (d *Driver[T]) streamFromEndpoint(ctx context.Context, client nodeapi.Client, label, endpoint string, startHeight nodeapi.AbsoluteHeight, successiveFailures *uint32) error {
	stream, err := client.GetFinalizedBlocks(ctx, startHeight)
	if err != nil {
		return fmt.Errorf("get_finalized_blocks: %w", err)
	}
	defer stream.Close()

	for {
		fbi, ok, err := stream.Next(ctx)
		if err != nil {
			return fmt.Errorf("finalized blocks stream: %w", err)
		}
		if !ok {
			return nil
		}

		value, err := d.indexer.OnFinalized(ctx, client, label, fbi)
		if err != nil {
			*successiveFailures++
			select {
			case d.out <- heightedResult[T]{err: fmt.Errorf("preprocess block %d on %s: %w", fbi.Height, label, err)}:
			case <-ctx.Done():
				return nil
			}
			if !d.indexer.OnFailure(ctx, endpoint, *successiveFailures, err) {
				return fmt.Errorf("preprocess block %d: %w", fbi.Height, err)
			}
			continue
		}
		*successiveFailures = 0

		select {
		case d.out <- heightedResult[T]{value: value}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *Driver[T]) newBackoff() backoff.BackOff {
	if d.cfg.ReconnectBackoff != nil {
		return d.cfg.ReconnectBackoff()
	}
	return backoff.NewExponentialBackOff()
}

// sleepBackoff waits for the next backoff interval or ctx cancellation,
// whichever comes first, returning false if ctx was cancelled.
func sleepBackoff(ctx context.Context, bo backoff.BackOff) bool {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
