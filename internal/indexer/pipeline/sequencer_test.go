package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordium/ccdscan-indexer/internal/logging"
	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

type fakeBlock uint64

func (b fakeBlock) Height() uint64 { return uint64(b) }

// recordingProcessor implements ProcessEvent[fakeBlock], recording every
// batch it's handed so tests can assert on ordering and batching.
type recordingProcessor struct {
	mu      sync.Mutex
	batches [][]fakeBlock
	failN   int // Process fails this many times before succeeding
}

func (p *recordingProcessor) Process(ctx context.Context, batch []fakeBlock) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failN > 0 {
		p.failN--
		return "", errors.New("injected failure")
	}
	cp := make([]fakeBlock, len(batch))
	copy(cp, batch)
	p.batches = append(p.batches, cp)
	return "ok", nil
}

func (p *recordingProcessor) OnFailure(ctx context.Context, cause error, successiveFailures uint32) (bool, error) {
	return successiveFailures < 3, nil
}

func (p *recordingProcessor) snapshot() [][]fakeBlock {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]fakeBlock, len(p.batches))
	copy(out, p.batches)
	return out
}

func newTestDriver(t *testing.T, maxBatchSize int, proc *recordingProcessor) *Driver[fakeBlock] {
	t.Helper()
	log, err := logging.New("error", "")
	require.NoError(t, err)
	d := New[fakeBlock](Config{MaxBatchSize: maxBatchSize}, nil, proc, log)
	return d
}

func TestRunSequencer_ReordersOutOfOrderResults(t *testing.T) {
	proc := &recordingProcessor{}
	d := newTestDriver(t, 1, proc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.runSequencer(ctx, nodeapi.AbsoluteHeight(1)) }()

	// Push heights out of order: 3 arrives before 2 and 1.
	d.out <- heightedResult[fakeBlock]{value: fakeBlock(3)}
	d.out <- heightedResult[fakeBlock]{value: fakeBlock(1)}
	d.out <- heightedResult[fakeBlock]{value: fakeBlock(2)}

	require.Eventually(t, func() bool { return len(proc.snapshot()) == 3 }, time.Second, time.Millisecond)

	cancel()
	<-done

	var got []fakeBlock
	for _, b := range proc.snapshot() {
		got = append(got, b...)
	}
	assert.Equal(t, []fakeBlock{1, 2, 3}, got)
}

func TestRunSequencer_BatchesUpToMaxBatchSize(t *testing.T) {
	proc := &recordingProcessor{}
	d := newTestDriver(t, 2, proc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.runSequencer(ctx, nodeapi.AbsoluteHeight(1)) }()

	// A batch holds what one heap drain releases: 2 waits in the heap until
	// 1 arrives, then both are released together; 3 follows on its own.
	d.out <- heightedResult[fakeBlock]{value: fakeBlock(2)}
	d.out <- heightedResult[fakeBlock]{value: fakeBlock(1)}
	d.out <- heightedResult[fakeBlock]{value: fakeBlock(3)}

	require.Eventually(t, func() bool {
		batches := proc.snapshot()
		total := 0
		for _, b := range batches {
			total += len(b)
		}
		return total == 3
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	batches := proc.snapshot()
	require.Len(t, batches, 2)
	assert.Equal(t, []fakeBlock{1, 2}, batches[0])
	assert.Equal(t, []fakeBlock{3}, batches[1])
}

func TestRunSequencer_FatalWorkerErrorStopsImmediately(t *testing.T) {
	proc := &recordingProcessor{}
	d := newTestDriver(t, 1, proc)

	ctx := context.Background()
	d.out <- heightedResult[fakeBlock]{err: errors.New("boom")}

	err := d.runSequencer(ctx, nodeapi.AbsoluteHeight(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, proc.snapshot())
}

func TestProcessBatch_RetriesThroughOnFailure(t *testing.T) {
	proc := &recordingProcessor{failN: 2}
	d := newTestDriver(t, 1, proc)

	err := d.processBatch(context.Background(), []fakeBlock{42})
	require.NoError(t, err)
	assert.Equal(t, [][]fakeBlock{{42}}, proc.snapshot())
}

func TestProcessBatch_GivesUpAfterOnFailureSaysStop(t *testing.T) {
	proc := &recordingProcessor{failN: 10}
	d := newTestDriver(t, 1, proc)

	err := d.processBatch(context.Background(), []fakeBlock{7})
	require.Error(t, err)
}
