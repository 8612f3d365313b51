package prepare

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/balance"
	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
	"github.com/concordium/ccdscan-indexer/internal/indexer/statistics"
	"github.com/concordium/ccdscan-indexer/internal/models"
)

// Transferred moves CCD from one account to another, applied as two
// balance.PreparedUpdateAccountBalance changes sharing one transaction
// index, grounded on
// original_source/backend-rust/src/transaction_event/transfers.rs.
type Transferred struct {
	FromAccountIndex int64
	ToAccountIndex   int64
	Amount           int64
	BlockHeight      int64
}

func (e Transferred) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	idx := txIndex
	out := balance.New(e.FromAccountIndex, -e.Amount, e.BlockHeight, models.EntryTransferOut)
	if err := out.Save(ctx, tx, &idx); err != nil {
		return fmt.Errorf("debit transfer sender %d: %w", e.FromAccountIndex, err)
	}
	in := balance.New(e.ToAccountIndex, e.Amount, e.BlockHeight, models.EntryTransferIn)
	if err := in.Save(ctx, tx, &idx); err != nil {
		return fmt.Errorf("credit transfer recipient %d: %w", e.ToAccountIndex, err)
	}
	return nil
}

// TransferredWithSchedule moves CCD from one account to another in a
// sequence of future-dated releases, applied as an immediate debit from the
// sender and credit to the recipient of the scheduled total, plus one
// scheduled_releases row per release. internal/indexer/process's
// release-purge step deletes matured rows; it does not change balances.
type TransferredWithSchedule struct {
	FromAccountIndex int64
	ToAccountIndex   int64
	BlockHeight      int64
	Releases         []ScheduledRelease
}

// ScheduledRelease is one (time, amount) pair of a scheduled transfer.
type ScheduledRelease struct {
	ReleaseTime time.Time
	Amount      int64
}

func (e TransferredWithSchedule) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	var total int64
	for _, r := range e.Releases {
		total += r.Amount
	}
	idx := txIndex
	out := balance.New(e.FromAccountIndex, -total, e.BlockHeight, models.EntryTransferOut)
	if err := out.Save(ctx, tx, &idx); err != nil {
		return fmt.Errorf("debit scheduled transfer sender %d: %w", e.FromAccountIndex, err)
	}
	in := balance.New(e.ToAccountIndex, total, e.BlockHeight, models.EntryTransferIn)
	if err := in.Save(ctx, tx, &idx); err != nil {
		return fmt.Errorf("credit scheduled transfer recipient %d: %w", e.ToAccountIndex, err)
	}

	for _, r := range e.Releases {
		tag, err := tx.Exec(ctx, `INSERT INTO scheduled_releases (account_index, transaction_id, release_time, amount)
			VALUES ($1, $2, $3, $4)`, e.ToAccountIndex, txIndex, r.ReleaseTime, r.Amount)
		if err != nil {
			return fmt.Errorf("insert scheduled release for account %d: %w", e.ToAccountIndex, err)
		}
		if tag.RowsAffected() != 1 {
			return errs.AffectedRows(fmt.Sprintf("insert scheduled release for account %d", e.ToAccountIndex), tag.RowsAffected(), 1)
		}
	}
	return nil
}

// AmountAddedByDecryption and EncryptedAmountsRemoved move CCD between an
// account's public and shielded balances; only the public side is tracked
// by this schema (spec.md's Non-goals exclude shielded-balance contents),
// so both are modeled as a single signed public-balance adjustment.
type ShieldingBalanceChanged struct {
	AccountIndex int64
	// Change is positive for AmountAddedByDecryption (shielded -> public)
	// and negative for EncryptedAmountsRemoved (public -> shielded).
	Change      int64
	BlockHeight int64
}

func (e ShieldingBalanceChanged) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	entryType := models.EntryAmountDecrypted
	if e.Change < 0 {
		entryType = models.EntryAmountEncrypted
	}
	idx := txIndex
	upd := balance.New(e.AccountIndex, e.Change, e.BlockHeight, entryType)
	if err := upd.Save(ctx, tx, &idx); err != nil {
		return fmt.Errorf("apply shielding balance change for account %d: %w", e.AccountIndex, err)
	}
	return nil
}
