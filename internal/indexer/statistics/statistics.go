// Package statistics accumulates per-block aggregate counters during the
// process stage and flushes them inside the same SQL transaction as the
// block's other writes, grounded on
// original_source/backend-rust/src/indexer/statistics.rs.
package statistics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/logging"
)

// BakerField names which counter Increment affects.
type BakerField int

const (
	BakerAdded BakerField = iota
	BakerRemoved
)

// BakerStatistics tracks the net change in baker count during one block,
// flushed as a running-total row in metrics_bakers.
type BakerStatistics struct {
	changed     bool
	added       int64
	removed     int64
	blockHeight int64
}

func NewBakerStatistics(blockHeight int64) *BakerStatistics {
	return &BakerStatistics{blockHeight: blockHeight}
}

func (s *BakerStatistics) Increment(field BakerField, count int64) {
	switch field {
	case BakerAdded:
		s.added += count
	case BakerRemoved:
		s.removed += count
	}
	s.changed = true
}

// Save extends the latest metrics_bakers row's running totals by this
// block's delta, or inserts the first row if none exists yet.
func (s *BakerStatistics) Save(ctx context.Context, tx pgx.Tx, log logging.Logger) error {
	if !s.changed {
		log.Debug("no change in baker count", "block_height", s.blockHeight)
		return nil
	}

	tag, err := tx.Exec(ctx, `INSERT INTO metrics_bakers (block_height, total_bakers_added, total_bakers_removed)
		SELECT $1, total_bakers_added + $2, total_bakers_removed + $3
		FROM (SELECT * FROM metrics_bakers ORDER BY block_height DESC LIMIT 1) AS latest`,
		s.blockHeight, s.added, s.removed)
	if err != nil {
		return fmt.Errorf("extend baker metrics: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := tx.Exec(ctx, `INSERT INTO metrics_bakers (block_height, total_bakers_added, total_bakers_removed)
		VALUES ($1, $2, $3)`, s.blockHeight, s.added, s.removed); err != nil {
		return fmt.Errorf("insert first baker metrics row: %w", err)
	}
	return nil
}

// RewardStatistics tracks per-account reward totals paid out during one
// block, flushed as one metrics_rewards row per account.
type RewardStatistics struct {
	rewards     map[int64]int64 // keyed by account index
	blockHeight int64
	slotTime    time.Time
}

func NewRewardStatistics(blockHeight int64, slotTime time.Time) *RewardStatistics {
	return &RewardStatistics{rewards: make(map[int64]int64), blockHeight: blockHeight, slotTime: slotTime}
}

func (s *RewardStatistics) Increment(accountIndex, count int64) {
	s.rewards[accountIndex] += count
}

func (s *RewardStatistics) Save(ctx context.Context, tx pgx.Tx, log logging.Logger) error {
	if len(s.rewards) == 0 {
		log.Debug("no rewards", "block_height", s.blockHeight)
		return nil
	}
	for accountIndex, amount := range s.rewards {
		_, err := tx.Exec(ctx, `INSERT INTO metrics_rewards (block_height, block_slot_time, account_index, amount)
			VALUES ($1, $2, $3, $4)`, s.blockHeight, s.slotTime, accountIndex, amount)
		if err != nil {
			return fmt.Errorf("insert reward metric for account %d: %w", accountIndex, err)
		}
	}
	return nil
}

// Statistics bundles the per-block aggregators the process stage flushes
// together at the end of applying one block.
type Statistics struct {
	Bakers  *BakerStatistics
	Rewards *RewardStatistics
}

func New(blockHeight int64, slotTime time.Time) *Statistics {
	return &Statistics{
		Bakers:  NewBakerStatistics(blockHeight),
		Rewards: NewRewardStatistics(blockHeight, slotTime),
	}
}

func (s *Statistics) Save(ctx context.Context, tx pgx.Tx, log logging.Logger) error {
	if err := s.Bakers.Save(ctx, tx, log); err != nil {
		return err
	}
	return s.Rewards.Save(ctx, tx, log)
}
