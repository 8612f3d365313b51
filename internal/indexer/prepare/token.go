package prepare

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
	"github.com/concordium/ccdscan-indexer/internal/indexer/statistics"
	"github.com/concordium/ccdscan-indexer/internal/models"
)

// TokenUpdateApplied records a single protocol-level token (PLT) update
// event and maintains the token's running totals. Mint/Burn move
// TotalSupply; Transfer and ModuleUpdate don't. Grounded on SPEC_FULL.md §3's
// supplemented token-indexing feature (no Rust file exists for this, PLT
// postdates the retrieved original_source snapshot).
type TokenUpdateApplied struct {
	TokenIndex    int64
	TransactionID int64
	Kind          models.TokenUpdateKind
	// SupplyDelta is positive for Mint, negative for Burn, zero otherwise.
	SupplyDelta int64
	IsTransfer  bool
	EventJSON   []byte
}

func (e TokenUpdateApplied) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `INSERT INTO token_events (token_index, transaction_index, kind, event)
		VALUES ($1, $2, $3, $4)`, e.TokenIndex, txIndex, string(e.Kind), e.EventJSON)
	if err != nil {
		return fmt.Errorf("insert token event for token %d: %w", e.TokenIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert token event for token %d", e.TokenIndex), tag.RowsAffected(), 1)
	}

	transferCountDelta := int64(0)
	if e.IsTransfer {
		transferCountDelta = 1
	}
	tag, err = tx.Exec(ctx, `UPDATE tokens SET
			total_supply = total_supply + $2,
			cumulative_event_count = cumulative_event_count + 1,
			cumulative_transfer_count = cumulative_transfer_count + $3
		WHERE index = $1`, e.TokenIndex, e.SupplyDelta, transferCountDelta)
	if err != nil {
		return fmt.Errorf("update token %d totals: %w", e.TokenIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update token %d totals", e.TokenIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// TokenModuleCreated inserts a newly observed protocol-level token.
type TokenModuleCreated struct {
	TokenID  string
	Decimals int32
	Issuer   string
}

func (e TokenModuleCreated) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `INSERT INTO tokens (token_id, decimals, issuer) VALUES ($1, $2, $3)
		ON CONFLICT (token_id) DO NOTHING`, e.TokenID, e.Decimals, e.Issuer)
	if err != nil {
		return fmt.Errorf("insert token %s: %w", e.TokenID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	return nil
}
