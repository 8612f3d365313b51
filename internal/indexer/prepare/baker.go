// Package prepare holds every EventPreparer: the per-event-kind structs
// computed during preprocessing and applied during the process stage's
// single SQL transaction. Grounded on
// original_source/backend/src/indexer/block/block_item/account_transaction/baker_events.rs
// (and the delegation, module, rejected-event, and special-outcome
// siblings under the same directory).
package prepare

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
	"github.com/concordium/ccdscan-indexer/internal/indexer/statistics"
	"github.com/concordium/ccdscan-indexer/internal/models"
)

// BakerAdded inserts a new bakers row and clears any stale bakers_removed
// entry left over from a prior removal of the same ID.
type BakerAdded struct {
	BakerID         int64
	Staked          int64
	RestakeEarnings bool
}

func (e BakerAdded) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	stats.Bakers.Increment(statistics.BakerAdded, 1)

	if _, err := tx.Exec(ctx, `DELETE FROM bakers_removed WHERE id = $1`, e.BakerID); err != nil {
		return fmt.Errorf("clear stale removed-baker row for %d: %w", e.BakerID, err)
	}

	tag, err := tx.Exec(ctx, `INSERT INTO bakers (id, staked, restake_earnings, pool_total_staked, pool_delegator_count)
		VALUES ($1, $2, $3, $2, 0)`, e.BakerID, e.Staked, e.RestakeEarnings)
	if err != nil {
		return fmt.Errorf("insert baker %d: %w", e.BakerID, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert baker %d", e.BakerID), tag.RowsAffected(), 1)
	}
	return nil
}

// BakerRemoved moves the pool's delegators to the passive pool, deletes
// the bakers row, and records the removal for history.
type BakerRemoved struct {
	BakerID int64
}

func (e BakerRemoved) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	stats.Bakers.Increment(statistics.BakerRemoved, 1)

	if _, err := tx.Exec(ctx, `UPDATE accounts SET delegated_target_baker_id = NULL
		WHERE delegated_target_baker_id = $1`, e.BakerID); err != nil {
		return fmt.Errorf("move delegators off removed baker %d: %w", e.BakerID, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM bakers WHERE id = $1`, e.BakerID)
	if err != nil {
		return fmt.Errorf("delete baker %d: %w", e.BakerID, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("delete baker %d", e.BakerID), tag.RowsAffected(), 1)
	}

	tag, err = tx.Exec(ctx, `INSERT INTO bakers_removed (id, removed_by_tx_index) VALUES ($1, $2)`, e.BakerID, txIndex)
	if err != nil {
		return fmt.Errorf("insert removed baker %d: %w", e.BakerID, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert removed baker %d", e.BakerID), tag.RowsAffected(), 1)
	}
	return nil
}

// BakerStakeChanged covers both BakerStakeIncreased and
// BakerStakeDecreased: both carry the baker's new total stake in NewStake.
type BakerStakeChanged struct {
	BakerID  int64
	NewStake int64
}

func (e BakerStakeChanged) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `UPDATE bakers SET staked = $2,
		pool_total_staked = $2 + COALESCE((SELECT SUM(delegated_stake) FROM accounts WHERE delegated_target_baker_id = $1), 0)
		WHERE id = $1`, e.BakerID, e.NewStake)
	if err != nil {
		return fmt.Errorf("update baker %d stake: %w", e.BakerID, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update baker %d stake", e.BakerID), tag.RowsAffected(), 1)
	}
	return nil
}

// BakerSetRestakeEarnings updates whether a baker's pool rewards restake.
type BakerSetRestakeEarnings struct {
	BakerID         int64
	RestakeEarnings bool
}

func (e BakerSetRestakeEarnings) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `UPDATE bakers SET restake_earnings = $2 WHERE id = $1`, e.BakerID, e.RestakeEarnings)
	if err != nil {
		return fmt.Errorf("update baker %d restake earnings: %w", e.BakerID, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update baker %d restake earnings", e.BakerID), tag.RowsAffected(), 1)
	}
	return nil
}

// BakerSetOpenStatus changes a pool's open status; closing it for all
// moves its delegators to the passive pool, mirroring the chain's own
// behavior when a pool is closed.
type BakerSetOpenStatus struct {
	BakerID    int64
	OpenStatus models.BakerPoolOpenStatus
}

func (e BakerSetOpenStatus) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `UPDATE bakers SET open_status = $2 WHERE id = $1`, e.BakerID, string(e.OpenStatus))
	if err != nil {
		return fmt.Errorf("update baker %d open status: %w", e.BakerID, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update baker %d open status", e.BakerID), tag.RowsAffected(), 1)
	}
	if e.OpenStatus != models.OpenStatusClosedForAll {
		return nil
	}
	if _, err := tx.Exec(ctx, `UPDATE bakers SET pool_delegator_count = 0 WHERE id = $1`, e.BakerID); err != nil {
		return fmt.Errorf("reset pool delegator count for closed pool %d: %w", e.BakerID, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET delegated_target_baker_id = NULL
		WHERE delegated_target_baker_id = $1`, e.BakerID); err != nil {
		return fmt.Errorf("move delegators off closed pool %d: %w", e.BakerID, err)
	}
	return nil
}

// BakerSetMetadataURL updates a pool's metadata URL.
type BakerSetMetadataURL struct {
	BakerID     int64
	MetadataURL string
}

func (e BakerSetMetadataURL) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `UPDATE bakers SET metadata_url = $2 WHERE id = $1`, e.BakerID, e.MetadataURL)
	if err != nil {
		return fmt.Errorf("update baker %d metadata url: %w", e.BakerID, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update baker %d metadata url", e.BakerID), tag.RowsAffected(), 1)
	}
	return nil
}

// CommissionKind selects which of a pool's three commission rates a
// BakerSetCommission event updates.
type CommissionKind int

const (
	CommissionTransaction CommissionKind = iota
	CommissionBaking
	CommissionFinalization
)

// BakerSetCommission updates one commission rate of a pool.
type BakerSetCommission struct {
	BakerID int64
	Kind    CommissionKind
	Rate    int64 // parts per hundred-thousand
}

func (e BakerSetCommission) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	column := map[CommissionKind]string{
		CommissionTransaction:  "transaction_commission",
		CommissionBaking:       "baking_commission",
		CommissionFinalization: "finalization_commission",
	}[e.Kind]

	tag, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE bakers SET %s = $2 WHERE id = $1`, column), e.BakerID, e.Rate)
	if err != nil {
		return fmt.Errorf("update baker %d %s: %w", e.BakerID, column, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update baker %d %s", e.BakerID, column), tag.RowsAffected(), 1)
	}
	return nil
}

// BakerSuspensionChanged records a validator's suspension state changing,
// whether by its own request, protocol-driven inactivity, or the
// suspension-priming sweep (spec.md §4.5, SPEC_FULL.md §3).
type BakerSuspensionChanged struct {
	BakerID             int64
	SelfSuspendedHeight *int64
	InactiveSuspended   *bool
	PrimedForSuspension *bool
}

func (e BakerSuspensionChanged) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `UPDATE bakers SET
			self_suspended = CASE WHEN $3::BOOLEAN IS TRUE THEN NULL ELSE COALESCE($2, self_suspended) END,
			inactive_suspended = COALESCE($3, inactive_suspended),
			primed_for_suspension = COALESCE($4, primed_for_suspension)
		WHERE id = $1`,
		e.BakerID, e.SelfSuspendedHeight, e.InactiveSuspended, e.PrimedForSuspension)
	if err != nil {
		return fmt.Errorf("update baker %d suspension state: %w", e.BakerID, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update baker %d suspension state", e.BakerID), tag.RowsAffected(), 1)
	}
	return nil
}

// ClearSuspensionPriming resets primed_for_suspension to false for every
// baker whose ID appears among the block's quorum certificate signatories
// (spec.md SPEC_FULL.md §3: a baker that signs is, by definition, no
// longer at risk of suspension for missing the round).
type ClearSuspensionPriming struct {
	SignatoryBakerIDs []int64
}

func (e ClearSuspensionPriming) Apply(ctx context.Context, tx pgx.Tx) error {
	if len(e.SignatoryBakerIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `UPDATE bakers SET primed_for_suspension = FALSE WHERE id = ANY($1::BIGINT[])`, e.SignatoryBakerIDs); err != nil {
		return fmt.Errorf("clear suspension priming: %w", err)
	}
	return nil
}
