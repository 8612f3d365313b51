// Package process implements the serial, database-owning second stage of
// the pipeline: applying batches of preprocessed blocks inside one SQL
// transaction per batch, in height order. Grounded on
// original_source/backend/src/indexer/block_processor.rs.
package process

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// rowQuerier is satisfied by both *pgx.Conn and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BlockProcessingContext is the running state carried from one batch to
// the next: values that depend on the immediately preceding block rather
// than anything computable from a single PreparedBlock in isolation.
type BlockProcessingContext struct {
	// LastHeight is the height of the last processed block; the pipeline
	// driver resumes streaming from LastHeight+1.
	LastHeight int64
	// LastFinalizedHash is the hash of the most recently observed
	// finalized block, used to detect when a new block's
	// LastFinalizedBlockHash advances past it.
	LastFinalizedHash string
	// LastBlockSlotTime is the slot time of the last processed block, used
	// to compute the next block's block_time_ms and to purge matured
	// scheduled releases.
	LastBlockSlotTime time.Time
	// LastCumulativeNumTxs is the last block's running transaction count.
	LastCumulativeNumTxs int64
	// LastCumulativeFinalizationTimeMs is the cumulative_finalization_time_ms
	// of the latest block with a known finalization time.
	LastCumulativeFinalizationTimeMs int64
}

// LoadBlockProcessingContext reconstructs the running context from the
// database at startup, assuming at least the genesis block is present.
func LoadBlockProcessingContext(ctx context.Context, q rowQuerier) (BlockProcessingContext, error) {
	var bc BlockProcessingContext
	var cumulativeFinalizationTimeMs *int64
	err := q.QueryRow(ctx, `SELECT hash, cumulative_finalization_time_ms FROM blocks
		WHERE finalization_time_ms IS NOT NULL ORDER BY height DESC LIMIT 1`).
		Scan(&bc.LastFinalizedHash, &cumulativeFinalizationTimeMs)
	if err != nil {
		return BlockProcessingContext{}, fmt.Errorf("query last finalized block: %w", err)
	}
	if cumulativeFinalizationTimeMs != nil {
		bc.LastCumulativeFinalizationTimeMs = *cumulativeFinalizationTimeMs
	}

	if err := q.QueryRow(ctx, `SELECT height, slot_time, cumulative_num_txs FROM blocks ORDER BY height DESC LIMIT 1`).
		Scan(&bc.LastHeight, &bc.LastBlockSlotTime, &bc.LastCumulativeNumTxs); err != nil {
		return BlockProcessingContext{}, fmt.Errorf("query last block: %w", err)
	}
	return bc, nil
}
