package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

// genesisValidatorInfoBackfill mirrors
// original_source/backend/src/migrations/m0026_update_genesis_validator_info.rs:
// bakers that predate protocol 4 never received pool configuration from a
// BakerEvent, so their open_status/metadata_url/commission columns are
// still NULL. This fills them in from the chain's current pool info.
func (m *Migrator) genesisValidatorInfoBackfill(ctx context.Context, tx pgx.Tx) (Version, error) {
	var latestHeight int64
	err := tx.QueryRow(ctx, `SELECT height FROM blocks ORDER BY height DESC LIMIT 1`).Scan(&latestHeight)
	if err == pgx.ErrNoRows {
		// No blocks indexed yet; nothing to backfill. The indexer fills in
		// pool info directly once it reaches genesis.
		return GenesisValidatorInfo, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query latest block height: %w", err)
	}

	client, err := m.node()
	if err != nil {
		return 0, err
	}
	latestBlock := nodeapi.AtHeight(uint64(latestHeight))

	rows, err := tx.Query(ctx, `SELECT id FROM bakers WHERE
		open_status IS NULL OR metadata_url IS NULL
		OR transaction_commission IS NULL OR baking_commission IS NULL
		OR finalization_commission IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("query bakers missing pool info: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		poolInfo, err := client.GetPoolInfo(ctx, uint64(id), latestBlock)
		if err != nil {
			return 0, fmt.Errorf("get pool info for baker %d: %w", id, err)
		}
		_, err = tx.Exec(ctx, `UPDATE bakers SET
			open_status = $2, metadata_url = $3,
			transaction_commission = $4, baking_commission = $5, finalization_commission = $6
			WHERE id = $1`,
			id, poolInfo.OpenStatus, poolInfo.MetadataURL,
			int64(poolInfo.TransactionCommission), int64(poolInfo.BakingCommission), int64(poolInfo.FinalizationCommission))
		if err != nil {
			return 0, fmt.Errorf("update pool info for baker %d: %w", id, err)
		}
	}
	return GenesisValidatorInfo, nil
}
