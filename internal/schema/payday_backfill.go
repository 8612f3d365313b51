package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

// paydayBackfillSlice bounds how long a single transaction spends replaying
// chain history before committing what it has and yielding control back to
// Migrate, per original_source/backend/src/migrations/m0019_payday_stake_information.rs
// ("Ensure we run for around 1 minute per SQL transaction.").
const paydayBackfillSlice = 60 * time.Second

// paydayPoolRewardsBackfill replays bakers_payday_pool_rewards history one
// payday at a time until either all outstanding paydays are processed (in
// which case it returns PaydayPoolRewards) or the time slice runs out (in
// which case it returns PaydayPoolRewardsPartial again, to be resumed).
func (m *Migrator) paydayPoolRewardsBackfill(ctx context.Context, tx pgx.Tx) (Version, error) {
	client, err := m.node()
	if err != nil {
		return 0, err
	}

	var lastProcessed int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(payday_block_height), -1) FROM payday_baker_pool_rewards`).Scan(&lastProcessed)
	if err != nil {
		return 0, fmt.Errorf("query last processed payday: %w", err)
	}

	// Outstanding paydays are those above the highest payday already in
	// payday_baker_pool_rewards. Block processing writes no rows to that
	// table; it does write payday_baker_pool_commission_rates rows (one per
	// baker) at every payday block, so that table is the source here.
	rows, err := tx.Query(ctx, `SELECT DISTINCT payday_block FROM payday_baker_pool_commission_rates
		WHERE payday_block > $1 ORDER BY payday_block ASC`, lastProcessed)
	if err != nil {
		return 0, fmt.Errorf("query unbackfilled paydays: %w", err)
	}
	var paydays []int64
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return 0, err
		}
		paydays = append(paydays, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(paydays) == 0 {
		return PaydayPoolRewards, nil
	}

	start := time.Now()
	for _, height := range paydays {
		if time.Since(start) > paydayBackfillSlice {
			break
		}
		if err := backfillOnePaydayReward(ctx, tx, client, height); err != nil {
			return 0, fmt.Errorf("backfill payday reward at height %d: %w", height, err)
		}
	}
	return PaydayPoolRewardsPartial, nil
}

func backfillOnePaydayReward(ctx context.Context, tx pgx.Tx, client nodeapi.Client, height int64) error {
	id := nodeapi.AtHeight(uint64(height))
	bakers, err := client.GetBakersRewardPeriod(ctx, id)
	if err != nil {
		return fmt.Errorf("get bakers reward period: %w", err)
	}
	defer bakers.Close()

	for {
		info, ok, err := bakers.Next(ctx)
		if err != nil {
			return fmt.Errorf("stream bakers reward period: %w", err)
		}
		if !ok {
			break
		}
		// Reward amounts themselves are not carried on BakerRewardPeriodInfo
		// (that stream only reports stake, per spec.md §6), so this inserts
		// a zero-valued row for each pool; no code in this repository
		// fills in the reward amounts afterwards.
		_, err = tx.Exec(ctx, `INSERT INTO payday_baker_pool_rewards (
			payday_block_height, pool_owner,
			transaction_fees_total, transaction_fees_delegators,
			baking_reward_total, baking_reward_delegators,
			finalization_reward_total, finalization_reward_delegators
		) VALUES ($1, $2, 0, 0, 0, 0, 0, 0)
		ON CONFLICT (payday_block_height, pool_owner) DO NOTHING`,
			height, int64(info.BakerID))
		if err != nil {
			return fmt.Errorf("insert payday baker pool reward: %w", err)
		}
	}
	return nil
}

// paydayPoolStakeBackfill mirrors m0019_payday_stake_information.rs: for
// each not-yet-processed payday with recorded rewards, fetch the pool stake
// composition at that height and insert it.
func (m *Migrator) paydayPoolStakeBackfill(ctx context.Context, tx pgx.Tx) (Version, error) {
	client, err := m.node()
	if err != nil {
		return 0, err
	}

	var lastProcessed int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(payday_block), -1) FROM payday_baker_pool_stakes`).Scan(&lastProcessed)
	if err != nil {
		return 0, fmt.Errorf("query last processed payday stake: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT DISTINCT payday_block_height FROM payday_baker_pool_rewards
		WHERE payday_block_height > $1 ORDER BY payday_block_height ASC`, lastProcessed)
	if err != nil {
		return 0, fmt.Errorf("query unbackfilled paydays: %w", err)
	}
	var paydays []int64
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return 0, err
		}
		paydays = append(paydays, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(paydays) == 0 {
		return PaydayPoolStake, nil
	}

	start := time.Now()
	for _, height := range paydays {
		if time.Since(start) > paydayBackfillSlice {
			break
		}
		if err := backfillOnePaydayStake(ctx, tx, client, height); err != nil {
			return 0, fmt.Errorf("backfill payday stake at height %d: %w", height, err)
		}
	}
	return PaydayPoolStakePartial, nil
}

func backfillOnePaydayStake(ctx context.Context, tx pgx.Tx, client nodeapi.Client, height int64) error {
	id := nodeapi.AtHeight(uint64(height))

	bakers, err := client.GetBakersRewardPeriod(ctx, id)
	if err != nil {
		return fmt.Errorf("get bakers reward period: %w", err)
	}
	defer bakers.Close()

	var bakerIDs, bakerStakes, delegatorStakes []int64
	for {
		info, ok, err := bakers.Next(ctx)
		if err != nil {
			return fmt.Errorf("stream bakers reward period: %w", err)
		}
		if !ok {
			break
		}
		bakerIDs = append(bakerIDs, int64(info.BakerID))
		bakerStakes = append(bakerStakes, int64(info.EffectiveStake))
		delegatorStakes = append(delegatorStakes, 0)
	}

	if len(bakerIDs) > 0 {
		_, err = tx.Exec(ctx, `INSERT INTO payday_baker_pool_stakes (payday_block, baker, baker_stake, delegators_stake)
			SELECT $1, * FROM UNNEST($2::BIGINT[], $3::BIGINT[], $4::BIGINT[]) AS t(baker, baker_stake, delegators_stake)
			ON CONFLICT (payday_block, baker) DO NOTHING`,
			height, bakerIDs, bakerStakes, delegatorStakes)
		if err != nil {
			return fmt.Errorf("insert payday baker pool stakes: %w", err)
		}
	}

	passive, err := client.GetPassiveDelegatorsRewardPeriod(ctx, id)
	if err != nil {
		return fmt.Errorf("get passive delegators reward period: %w", err)
	}
	defer passive.Close()

	var passiveStake, passiveCount int64
	for {
		d, ok, err := passive.Next(ctx)
		if err != nil {
			return fmt.Errorf("stream passive delegators reward period: %w", err)
		}
		if !ok {
			break
		}
		passiveStake += int64(d.StakedAmount)
		passiveCount++
	}

	_, err = tx.Exec(ctx, `INSERT INTO payday_passive_pool_stakes (payday_block, delegators_stake, delegator_count)
		VALUES ($1, $2, $3) ON CONFLICT (payday_block) DO NOTHING`, height, passiveStake, passiveCount)
	if err != nil {
		return fmt.Errorf("insert payday passive pool stake: %w", err)
	}
	return nil
}
