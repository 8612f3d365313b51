// Package genesis populates an empty database with the chain's genesis
// block, grounded on
// original_source/backend/src/indexer/genesis_data.rs. It is run exactly
// once, before the pipeline starts, when the schema is freshly migrated and
// no blocks have been indexed yet.
package genesis

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/logging"
	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

const genesisHeight = 0

// Seed writes the height-0 block, its metrics_bakers row, and every genesis
// account (with genesis bakers' pool state), all in a single transaction.
// Callers must ensure this runs against an empty `blocks` table; Seed does
// not check that itself.
func Seed(ctx context.Context, conn *pgx.Conn, client nodeapi.Client, log logging.Logger) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin genesis transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	id := nodeapi.AtHeight(genesisHeight)

	blockInfo, err := client.GetBlockInfo(ctx, id)
	if err != nil {
		return fmt.Errorf("get genesis block info: %w", err)
	}
	tokenomics, err := client.GetTokenomicsInfo(ctx, id)
	if err != nil {
		return fmt.Errorf("get genesis tokenomics: %w", err)
	}

	totalStaked, err := sumGenesisStake(ctx, client, id)
	if err != nil {
		return fmt.Errorf("sum genesis stake: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO blocks (
		height, hash, slot_time, block_time_ms, finalization_time_ms,
		total_amount, total_staked, cumulative_num_txs
	) VALUES (0, $1, $2, 0, 0, $3, $4, 0)`,
		string(blockInfo.Hash), blockInfo.SlotTime, int64(tokenomics.TotalAmount), totalStaked)
	if err != nil {
		return fmt.Errorf("insert genesis block: %w", err)
	}

	bakerCount, err := countBakers(ctx, client, id)
	if err != nil {
		return fmt.Errorf("count genesis bakers: %w", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO metrics_bakers (block_height, total_bakers_added, total_bakers_removed)
		VALUES (0, $1, 0)`, bakerCount)
	if err != nil {
		return fmt.Errorf("insert genesis baker metrics: %w", err)
	}

	if err := seedAccounts(ctx, tx, client, id, log); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit genesis transaction: %w", err)
	}
	log.Info("seeded genesis block", "hash", blockInfo.Hash, "bakers", bakerCount)
	return nil
}

func sumGenesisStake(ctx context.Context, client nodeapi.Client, id nodeapi.BlockIdentifier) (int64, error) {
	accounts, err := client.GetAccountList(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("get genesis account list: %w", err)
	}
	defer accounts.Close()

	var total int64
	for {
		addr, ok, err := accounts.Next(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		info, err := client.GetAccountInfo(ctx, addr, id)
		if err != nil {
			return 0, fmt.Errorf("get account info for %s: %w", addr, err)
		}
		if info.Baker != nil {
			total += int64(info.Baker.Staked)
		}
		if info.Delegation != nil {
			total += int64(info.Delegation.StakedAmount)
		}
	}
	return total, nil
}

func countBakers(ctx context.Context, client nodeapi.Client, id nodeapi.BlockIdentifier) (int64, error) {
	bakers, err := client.GetBakerList(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("get genesis baker list: %w", err)
	}
	defer bakers.Close()

	var count int64
	for {
		_, ok, err := bakers.Next(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		count++
	}
	return count, nil
}

// seedAccounts inserts every genesis account, and a bakers row for every
// genesis account that is already staking. Genesis accounts have no
// creation transaction, so num_txs is seeded at 0 rather than the usual 1 —
// the one deliberate exemption to that invariant (spec.md §3 "Account").
func seedAccounts(ctx context.Context, tx pgx.Tx, client nodeapi.Client, id nodeapi.BlockIdentifier, log logging.Logger) error {
	accounts, err := client.GetAccountList(ctx, id)
	if err != nil {
		return fmt.Errorf("get genesis account list (pass 2): %w", err)
	}
	defer accounts.Close()

	var n int
	for {
		addr, ok, err := accounts.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		info, err := client.GetAccountInfo(ctx, addr, id)
		if err != nil {
			return fmt.Errorf("get account info for %s: %w", addr, err)
		}

		_, err = tx.Exec(ctx, `INSERT INTO accounts (index, address, canonical_address, amount, num_txs)
			VALUES ($1, $2, $3, $4, 0)`,
			int64(info.Index), info.Address, canonicalAddress(info.Address), int64(info.Amount))
		if err != nil {
			return fmt.Errorf("insert genesis account %s: %w", info.Address, err)
		}
		n++

		if info.Baker == nil {
			continue
		}
		var openStatus, metadataURL *string
		var txCommission, bakingCommission, finCommission *int64
		if info.Baker.PoolInfo != nil {
			p := info.Baker.PoolInfo
			openStatus, metadataURL = &p.OpenStatus, &p.MetadataURL
			tc, bc, fc := int64(p.TransactionCommission), int64(p.BakingCommission), int64(p.FinalizationCommission)
			txCommission, bakingCommission, finCommission = &tc, &bc, &fc
		}
		_, err = tx.Exec(ctx, `INSERT INTO bakers (
			id, staked, restake_earnings, open_status, metadata_url,
			transaction_commission, baking_commission, finalization_commission,
			pool_total_staked, pool_delegator_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)`,
			int64(info.Baker.BakerID), int64(info.Baker.Staked), info.Baker.RestakeEarnings,
			openStatus, metadataURL, txCommission, bakingCommission, finCommission,
			int64(info.Baker.Staked))
		if err != nil {
			return fmt.Errorf("insert genesis baker %d: %w", info.Baker.BakerID, err)
		}
	}
	log.Info("seeded genesis accounts", "count", n)
	return nil
}

// canonicalAddress returns the display address's own bytes as the
// canonical_address value. It does not base58-decode the address or
// truncate it to the 29-byte canonical prefix, so two aliases of one
// account yield different values.
func canonicalAddress(address string) []byte {
	return []byte(address)
}
