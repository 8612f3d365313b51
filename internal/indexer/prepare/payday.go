package prepare

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
)

// PaydayBlock bundles everything computed once per payday block: commission
// rate snapshots, pool stake snapshots, and the chain-parameters pointer to
// the most recent payday. Grounded on
// original_source/backend/src/indexer/block/special_transaction_outcomes/payday.rs.
// The lottery-power snapshot and baker-APY materialized view refresh from
// the same Rust struct are GraphQL read-API concerns (spec.md's Non-goals)
// and have no home here.
type PaydayBlock struct {
	BlockHeight            int64
	BakerCommissionRates   []BakerPaydayCommissionRate
	PassiveCommissionRates *PassiveDelegationPaydayCommissionRate
	BakerPoolStakes        []BakerPaydayPoolStake
	PassivePoolStake       *PassivePaydayPoolStake
}

// BakerPaydayCommissionRate is one pool's commission rates as captured for
// the reward period starting at this payday.
type BakerPaydayCommissionRate struct {
	BakerID                int64
	TransactionCommission  int64
	BakingCommission       int64
	FinalizationCommission int64
}

// PassiveDelegationPaydayCommissionRate is the passive pool's singleton
// commission-rate snapshot, absent entirely before protocol version 4.
type PassiveDelegationPaydayCommissionRate struct {
	TransactionCommission  int64
	BakingCommission       int64
	FinalizationCommission int64
}

// BakerPaydayPoolStake is one pool's stake composition locked in for the
// reward period starting at this payday.
type BakerPaydayPoolStake struct {
	BakerID        int64
	BakerStake     int64
	DelegatedStake int64
	DelegatorCount int64
}

// PassivePaydayPoolStake is the passive pool's stake composition for the
// reward period starting at this payday.
type PassivePaydayPoolStake struct {
	DelegatedStake int64
	DelegatorCount int64
}

func (p PaydayBlock) Apply(ctx context.Context, tx pgx.Tx) error {
	for _, r := range p.BakerCommissionRates {
		tag, err := tx.Exec(ctx, `INSERT INTO payday_baker_pool_commission_rates
			(payday_block, baker, transaction_commission, baking_commission, finalization_commission)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (payday_block, baker) DO UPDATE SET
				transaction_commission = EXCLUDED.transaction_commission,
				baking_commission = EXCLUDED.baking_commission,
				finalization_commission = EXCLUDED.finalization_commission`,
			p.BlockHeight, r.BakerID, r.TransactionCommission, r.BakingCommission, r.FinalizationCommission)
		if err != nil {
			return fmt.Errorf("insert payday commission rate for baker %d: %w", r.BakerID, err)
		}
		if tag.RowsAffected() != 1 {
			return errs.AffectedRows(fmt.Sprintf("insert payday commission rate for baker %d", r.BakerID), tag.RowsAffected(), 1)
		}
	}

	if p.PassiveCommissionRates != nil {
		r := p.PassiveCommissionRates
		if _, err := tx.Exec(ctx, `INSERT INTO passive_delegation_payday_commission_rates
			(id, payday_transaction_commission, payday_baking_commission, payday_finalization_commission)
			VALUES (TRUE, $1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				payday_transaction_commission = EXCLUDED.payday_transaction_commission,
				payday_baking_commission = EXCLUDED.payday_baking_commission,
				payday_finalization_commission = EXCLUDED.payday_finalization_commission`,
			r.TransactionCommission, r.BakingCommission, r.FinalizationCommission); err != nil {
			return fmt.Errorf("upsert passive delegation payday commission rates: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE current_chain_parameters SET last_payday_block_height = $1`, p.BlockHeight)
	if err != nil {
		return fmt.Errorf("update last payday block height: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows("update last payday block height", tag.RowsAffected(), 1)
	}

	for _, s := range p.BakerPoolStakes {
		tag, err := tx.Exec(ctx, `INSERT INTO payday_baker_pool_stakes
			(payday_block, baker, baker_stake, delegators_stake, delegator_count)
			VALUES ($1, $2, $3, $4, $5)`,
			p.BlockHeight, s.BakerID, s.BakerStake, s.DelegatedStake, s.DelegatorCount)
		if err != nil {
			return fmt.Errorf("insert payday pool stake for baker %d: %w", s.BakerID, err)
		}
		if tag.RowsAffected() != 1 {
			return errs.AffectedRows(fmt.Sprintf("insert payday pool stake for baker %d", s.BakerID), tag.RowsAffected(), 1)
		}
	}

	if p.PassivePoolStake != nil {
		s := p.PassivePoolStake
		tag, err := tx.Exec(ctx, `INSERT INTO payday_passive_pool_stakes (payday_block, delegators_stake, delegator_count)
			VALUES ($1, $2, $3)`, p.BlockHeight, s.DelegatedStake, s.DelegatorCount)
		if err != nil {
			return fmt.Errorf("insert payday passive pool stake: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return errs.AffectedRows("insert payday passive pool stake", tag.RowsAffected(), 1)
		}
	}
	return nil
}
