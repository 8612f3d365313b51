package pipeline

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

// heightHeap is a min-heap of preprocessed results ordered by Height,
// used to reorder worker output that arrives out of order across
// endpoints back into strictly ascending height order before it reaches
// the single-threaded processor. Grounded on the same container/heap
// reordering-buffer idiom used for transaction-priority queues elsewhere
// in the pack (e.g. erigon's core-exec-txtask, btcd's mining package).
type heightHeap[T Heighted] []T

func (h heightHeap[T]) Len() int            { return len(h) }
func (h heightHeap[T]) Less(i, j int) bool  { return h[i].Height() < h[j].Height() }
func (h heightHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *heightHeap[T]) Push(x any)         { *h = append(*h, x.(T)) }
func (h *heightHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// runSequencer drains the worker output channel, reorders it by height in
// a heap, and hands the processor height-ordered batches of up to
// MaxBatchSize blocks, starting at startHeight. Mirrors the
// Scheduling/Ordering guarantees in spec.md §5: PreparedBlocks enter the
// processor in strictly ascending height order regardless of preprocessor
// completion order.
func (d *Driver[T]) runSequencer(ctx context.Context, startHeight nodeapi.AbsoluteHeight) error {
	nextHeight := uint64(startHeight)
	pending := &heightHeap[T]{}
	heap.Init(pending)

	batch := make([]T, 0, d.cfg.MaxBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := d.processBatch(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-d.out:
			if !ok {
				return flush()
			}
			if res.err != nil {
				return res.err
			}

			heap.Push(pending, res.value)

			for pending.Len() > 0 && (*pending)[0].Height() == nextHeight {
				next := heap.Pop(pending).(T)
				batch = append(batch, next)
				nextHeight++

				if len(batch) >= d.cfg.MaxBatchSize {
					if err := flush(); err != nil {
						return err
					}
				}
			}
			if pending.Len() == 0 {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// processBatch hands one height-ordered batch to the processor, retrying
// through ProcessEvent.OnFailure on error up to MaxSuccessiveFailures
// times, mirroring block_processor.rs's on_failure reconnect loop.
func (d *Driver[T]) processBatch(ctx context.Context, batch []T) error {
	toProcess := make([]T, len(batch))
	copy(toProcess, batch)

	var successiveFailures uint32
	for {
		desc, err := d.processor.Process(ctx, toProcess)
		if err == nil {
			d.log.Info("processed batch", "description", desc, "size", len(toProcess))
			return nil
		}

		successiveFailures++
		retry, failErr := d.processor.OnFailure(ctx, err, successiveFailures)
		if failErr != nil {
			return fmt.Errorf("recover from processing failure: %w", failErr)
		}
		if !retry {
			return fmt.Errorf("processing failed after %d successive failures: %w", successiveFailures, err)
		}
	}
}
