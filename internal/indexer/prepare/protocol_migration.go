package prepare

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
	"github.com/concordium/ccdscan-indexer/internal/models"
)

// P4ProtocolMigration backfills pool configuration onto every baker the
// first time protocol version 4 introduces it, since bakers created before
// P4 have no open_status/metadata_url/commission columns to draw on.
// Grounded on
// original_source/backend-rust/src/indexer/block/protocol_update_migration.rs.
// Applicable only at the first block of an era (BlockInfo.EraBlockHeight ==
// 0) on protocol version 4; later protocol versions introduce no
// comparable one-time backfill.
type P4ProtocolMigration struct {
	BakerIDs                []int64
	OpenStatuses            []models.BakerPoolOpenStatus
	MetadataURLs            []string
	TransactionCommissions  []int64
	BakingCommissions       []int64
	FinalizationCommissions []int64
}

func (m P4ProtocolMigration) Apply(ctx context.Context, tx pgx.Tx) error {
	if len(m.BakerIDs) == 0 {
		return nil
	}
	openStatuses := make([]string, len(m.OpenStatuses))
	for i, s := range m.OpenStatuses {
		openStatuses[i] = string(s)
	}
	tag, err := tx.Exec(ctx, `UPDATE bakers SET
			open_status = input.status,
			metadata_url = input.url,
			transaction_commission = input.transaction,
			baking_commission = input.baking,
			finalization_commission = input.finalization
		FROM UNNEST($1::BIGINT[], $2::TEXT[], $3::TEXT[], $4::BIGINT[], $5::BIGINT[], $6::BIGINT[])
			AS input(id, status, url, transaction, baking, finalization)
		WHERE bakers.id = input.id`,
		m.BakerIDs, openStatuses, m.MetadataURLs,
		m.TransactionCommissions, m.BakingCommissions, m.FinalizationCommissions)
	if err != nil {
		return fmt.Errorf("apply P4 protocol update migration: %w", err)
	}
	if tag.RowsAffected() != int64(len(m.BakerIDs)) {
		return errs.AffectedRows("apply P4 protocol update migration", tag.RowsAffected(), int64(len(m.BakerIDs)))
	}
	return nil
}
