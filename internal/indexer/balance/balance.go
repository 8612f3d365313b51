// Package balance implements the single path for mutating an account's
// amount column and appending the append-only account_statements ledger
// entry that explains the change, grounded on
// original_source/backend/src/indexer/db/update_account_balance.rs. Every
// other part of the indexer that needs to move CCD in or out of an account
// goes through PreparedUpdateAccountBalance rather than writing to
// `accounts` directly, so the ledger can never drift from the balance.
package balance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
	"github.com/concordium/ccdscan-indexer/internal/models"
)

// PreparedUpdateAccountBalance changes one account's balance by Change and
// records why in account_statements.
type PreparedUpdateAccountBalance struct {
	AccountIndex int64
	Change       int64
	BlockHeight  int64
	EntryType    models.AccountStatementEntryType
}

// New builds a PreparedUpdateAccountBalance. change may be negative.
func New(accountIndex, change, blockHeight int64, entryType models.AccountStatementEntryType) PreparedUpdateAccountBalance {
	return PreparedUpdateAccountBalance{
		AccountIndex: accountIndex,
		Change:       change,
		BlockHeight:  blockHeight,
		EntryType:    entryType,
	}
}

// Save applies the balance change and appends the ledger entry in the same
// transaction. transactionIndex is nil for protocol-level changes (block
// rewards, finalization rewards) that have no originating transaction.
//
// A change of exactly 0 is a deliberate no-op: some callers compute a delta
// that can legitimately net to zero (e.g. a scheduled transfer to self),
// and writing a zero-amount statement row would misrepresent the ledger.
func (p PreparedUpdateAccountBalance) Save(ctx context.Context, tx pgx.Tx, transactionIndex *int64) error {
	if p.Change == 0 {
		return nil
	}

	tag, err := tx.Exec(ctx, `UPDATE accounts SET amount = amount + $1 WHERE index = $2`, p.Change, p.AccountIndex)
	if err != nil {
		return fmt.Errorf("update account %d balance by %d: %w", p.AccountIndex, p.Change, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update account %d balance", p.AccountIndex), tag.RowsAffected(), 1)
	}

	tag, err = tx.Exec(ctx, `WITH account_info AS (
			SELECT index AS account_index, amount AS current_balance FROM accounts WHERE index = $1
		)
		INSERT INTO account_statements (account_index, entry_type, amount, block_height, transaction_id, account_balance)
		SELECT account_index, $2, $3, $4, $5, current_balance FROM account_info`,
		p.AccountIndex, string(p.EntryType), p.Change, p.BlockHeight, transactionIndex)
	if err != nil {
		return fmt.Errorf("insert account statement for account %d: %w", p.AccountIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert account statement for account %d", p.AccountIndex), tag.RowsAffected(), 1)
	}
	return nil
}
