package prepare

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
	"github.com/concordium/ccdscan-indexer/internal/indexer/statistics"
)

// DelegationStakeChanged covers both DelegationStakeIncreased and
// DelegationStakeDecreased.
type DelegationStakeChanged struct {
	AccountIndex int64
	NewStake     int64
}

func (e DelegationStakeChanged) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	// Update the target pool's total stake first (a no-op when the
	// delegator targets the passive pool), reading the delegator's
	// pre-update stake out of accounts in the same statement.
	if _, err := tx.Exec(ctx, `UPDATE bakers
		SET pool_total_staked = pool_total_staked + $1 - accounts.delegated_stake
		FROM accounts
		WHERE bakers.id = accounts.delegated_target_baker_id AND accounts.index = $2`,
		e.NewStake, e.AccountIndex); err != nil {
		return fmt.Errorf("update pool stake for account %d: %w", e.AccountIndex, err)
	}

	tag, err := tx.Exec(ctx, `UPDATE accounts SET delegated_stake = $2 WHERE index = $1`, e.AccountIndex, e.NewStake)
	if err != nil {
		return fmt.Errorf("update account %d delegated stake: %w", e.AccountIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update account %d delegated stake", e.AccountIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// DelegationSetRestakeEarnings updates whether a delegator restakes.
type DelegationSetRestakeEarnings struct {
	AccountIndex    int64
	RestakeEarnings bool
}

func (e DelegationSetRestakeEarnings) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `UPDATE accounts SET delegated_restake_earnings = $2 WHERE index = $1`, e.AccountIndex, e.RestakeEarnings)
	if err != nil {
		return fmt.Errorf("update account %d delegated restake earnings: %w", e.AccountIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update account %d delegated restake earnings", e.AccountIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// DelegationAdded marks an account as delegating, starting with zero stake
// (a subsequent StakeIncrease event in the same transaction sets the
// amount, matching the chain's own event ordering).
type DelegationAdded struct {
	AccountIndex int64
}

func (e DelegationAdded) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	// No pool bookkeeping here: the chain always pairs Added with a
	// StakeIncrease and a SetDelegationTarget event in the same
	// transaction, and those do it.
	tag, err := tx.Exec(ctx, `UPDATE accounts SET delegated_stake = 0, delegated_restake_earnings = FALSE,
		delegated_target_baker_id = NULL WHERE index = $1`, e.AccountIndex)
	if err != nil {
		return fmt.Errorf("mark account %d delegating: %w", e.AccountIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("mark account %d delegating", e.AccountIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// DelegationRemoved clears an account's delegation state entirely.
type DelegationRemoved struct {
	AccountIndex int64
}

func (e DelegationRemoved) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	// Pull the delegator's stake and count out of its pool before
	// clearing the account row below (no-op for the passive pool).
	if _, err := tx.Exec(ctx, `UPDATE bakers
		SET pool_total_staked = pool_total_staked - accounts.delegated_stake,
		    pool_delegator_count = pool_delegator_count - 1
		FROM accounts
		WHERE bakers.id = accounts.delegated_target_baker_id AND accounts.index = $1`, e.AccountIndex); err != nil {
		return fmt.Errorf("update pool state for removed delegator %d: %w", e.AccountIndex, err)
	}

	tag, err := tx.Exec(ctx, `UPDATE accounts SET delegated_stake = NULL, delegated_restake_earnings = NULL,
		delegated_target_baker_id = NULL WHERE index = $1`, e.AccountIndex)
	if err != nil {
		return fmt.Errorf("clear account %d delegation: %w", e.AccountIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("clear account %d delegation", e.AccountIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// DelegationSetTarget retargets a delegator; TargetBakerID nil means the
// passive pool.
type DelegationSetTarget struct {
	AccountIndex  int64
	TargetBakerID *int64
}

func (e DelegationSetTarget) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	// Subtract the delegator's stake/count from the old target's pool
	// first (no-op if the old target was the passive pool, or the
	// delegator isn't live yet — guarded by delegated_restake_earnings
	// IS NOT NULL per the removed-delegator sentinel).
	if _, err := tx.Exec(ctx, `UPDATE bakers
		SET pool_total_staked = pool_total_staked - accounts.delegated_stake,
		    pool_delegator_count = pool_delegator_count - 1
		FROM accounts
		WHERE accounts.delegated_restake_earnings IS NOT NULL
		  AND bakers.id = accounts.delegated_target_baker_id
		  AND accounts.index = $1`, e.AccountIndex); err != nil {
		return fmt.Errorf("remove delegator %d from old pool: %w", e.AccountIndex, err)
	}

	// Then add it to the new target's pool, unless retargeting to the
	// passive pool.
	if e.TargetBakerID != nil {
		if _, err := tx.Exec(ctx, `UPDATE bakers
			SET pool_total_staked = pool_total_staked + accounts.delegated_stake,
			    pool_delegator_count = pool_delegator_count + 1
			FROM accounts
			WHERE accounts.delegated_restake_earnings IS NOT NULL
			  AND bakers.id = $2
			  AND accounts.index = $1`, e.AccountIndex, *e.TargetBakerID); err != nil {
			return fmt.Errorf("add delegator %d to new pool %d: %w", e.AccountIndex, *e.TargetBakerID, err)
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE accounts SET delegated_target_baker_id = $2 WHERE index = $1`, e.AccountIndex, e.TargetBakerID)
	if err != nil {
		return fmt.Errorf("retarget account %d delegation: %w", e.AccountIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("retarget account %d delegation", e.AccountIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// DelegationRemoveBaker wraps BakerRemoved for the case where a delegation
// target itself stops being a baker as a side effect of the same
// transaction (the chain emits this as a nested event rather than a
// separate baker-removal transaction).
type DelegationRemoveBaker struct {
	BakerRemoved
}

