package process

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/preprocess"
)

// batchSaveBlocks bulk-inserts every block row in the batch via UNNEST,
// then retroactively stamps finalization_time_ms/finalized_by_height on
// every block that a later block in history reports as finalized, and
// rolls the cumulative_finalization_time_ms prefix sum forward. Mirrors
// PreparedBlock::batch_save in block.rs.
func batchSaveBlocks(ctx context.Context, tx pgx.Tx, batch []*preprocess.PreparedBlock, bc *BlockProcessingContext) error {
	n := len(batch)
	heights := make([]int64, 0, n)
	hashes := make([]string, 0, n)
	slotTimes := make([]time.Time, 0, n)
	bakerIDs := make([]*int64, 0, n)
	totalAmounts := make([]int64, 0, n)
	totalStaked := make([]int64, 0, n)
	blockTimesMs := make([]int64, 0, n)
	cumulativeNumTxs := make([]int64, 0, n)

	finalizerHeights := make([]int64, 0)
	finalizedHashes := make([]string, 0)
	finalizerSlotTimes := make([]time.Time, 0)

	for _, pb := range batch {
		b := pb.Block
		heights = append(heights, b.Height)
		hashes = append(hashes, b.Hash)
		slotTimes = append(slotTimes, b.SlotTime)
		bakerIDs = append(bakerIDs, b.BakerID)
		totalAmounts = append(totalAmounts, b.TotalAmount)
		totalStaked = append(totalStaked, b.TotalStaked)
		blockTimesMs = append(blockTimesMs, b.SlotTime.Sub(bc.LastBlockSlotTime).Milliseconds())

		bc.LastCumulativeNumTxs += int64(len(pb.Transactions))
		cumulativeNumTxs = append(cumulativeNumTxs, bc.LastCumulativeNumTxs)
		bc.LastBlockSlotTime = b.SlotTime

		if string(pb.LastFinalizedBlockHash) != bc.LastFinalizedHash {
			finalizerHeights = append(finalizerHeights, b.Height)
			finalizedHashes = append(finalizedHashes, string(pb.LastFinalizedBlockHash))
			finalizerSlotTimes = append(finalizerSlotTimes, b.SlotTime)
			bc.LastFinalizedHash = string(pb.LastFinalizedBlockHash)
		}
	}

	tag, err := tx.Exec(ctx, `INSERT INTO blocks (
			height, hash, slot_time, block_time_ms, baker_id, total_amount, total_staked, cumulative_num_txs
		)
		SELECT * FROM UNNEST(
			$1::BIGINT[], $2::TEXT[], $3::TIMESTAMPTZ[], $4::BIGINT[], $5::BIGINT[], $6::BIGINT[], $7::BIGINT[], $8::BIGINT[]
		)`,
		heights, hashes, slotTimes, blockTimesMs, bakerIDs, totalAmounts, totalStaked, cumulativeNumTxs)
	if err != nil {
		return fmt.Errorf("batch insert blocks: %w", err)
	}
	if tag.RowsAffected() != int64(n) {
		return fmt.Errorf("batch insert blocks: inserted %d rows, expected %d", tag.RowsAffected(), n)
	}

	if len(finalizerHeights) > 0 {
		if _, err := tx.Exec(ctx, `UPDATE blocks SET
				finalization_time_ms = (
					EXTRACT(EPOCH FROM finalizer.slot_time - blocks.slot_time)::double precision * 1000
				)::bigint,
				finalized_by_height = finalizer.height
			FROM UNNEST($1::BIGINT[], $2::TEXT[], $3::TIMESTAMPTZ[]) AS finalizer(height, finalized_hash, slot_time)
			JOIN blocks last ON finalizer.finalized_hash = last.hash
			WHERE blocks.finalization_time_ms IS NULL AND blocks.height <= last.height`,
			finalizerHeights, finalizedHashes, finalizerSlotTimes); err != nil {
			return fmt.Errorf("retroactively stamp finalization time: %w", err)
		}

		var newCumulative *int64
		err := tx.QueryRow(ctx, `WITH cumulated AS (
				SELECT height,
					SUM(finalization_time_ms) OVER (ORDER BY height RANGE BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) AS time_ms
				FROM blocks
				WHERE cumulative_finalization_time_ms IS NULL AND finalization_time_ms IS NOT NULL
				ORDER BY height
			), updated AS (
				UPDATE blocks SET cumulative_finalization_time_ms = $1 + cumulated.time_ms
				FROM cumulated
				WHERE blocks.height = cumulated.height
				RETURNING cumulated.height, cumulative_finalization_time_ms
			)
			SELECT updated.cumulative_finalization_time_ms FROM updated ORDER BY updated.height DESC LIMIT 1`,
			bc.LastCumulativeFinalizationTimeMs).Scan(&newCumulative)
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("roll forward cumulative finalization time: %w", err)
		}
		if newCumulative != nil {
			bc.LastCumulativeFinalizationTimeMs = *newCumulative
		}
	}
	return nil
}
