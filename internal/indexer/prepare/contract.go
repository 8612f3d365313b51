package prepare

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
	"github.com/concordium/ccdscan-indexer/internal/indexer/statistics"
	"github.com/concordium/ccdscan-indexer/internal/models"
)

// ModuleDeployed records a newly deployed smart contract module and its
// embedded schema, fetched from the node during preprocessing since the
// schema itself isn't part of the transaction event.
type ModuleDeployed struct {
	ModuleReference string
	Schema          []byte // nil when the module carries no embedded schema
}

func (e ModuleDeployed) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `INSERT INTO smart_contract_modules (module_reference, transaction_index, schema)
		VALUES ($1, $2, $3)`, e.ModuleReference, txIndex, e.Schema)
	if err != nil {
		return fmt.Errorf("insert smart contract module %s: %w", e.ModuleReference, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert smart contract module %s", e.ModuleReference), tag.RowsAffected(), 1)
	}
	return nil
}

// ModuleLinkChanged records a module being linked to (on init) or unlinked
// from (on upgrade-away) a contract.
type ModuleLinkChanged struct {
	ModuleReference  string
	ContractIndex    int64
	ContractSubIndex int64
	Action           models.ModuleReferenceContractLinkAction
}

func (e ModuleLinkChanged) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `INSERT INTO module_reference_contract_link_events
		(module_reference, contract_index, contract_sub_index, transaction_index, action)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ModuleReference, e.ContractIndex, e.ContractSubIndex, txIndex, string(e.Action))
	if err != nil {
		return fmt.Errorf("insert module link event for %s: %w", e.ModuleReference, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert module link event for %s", e.ModuleReference), tag.RowsAffected(), 1)
	}
	return nil
}

// ContractInitialized inserts the new contracts row created by an init
// transaction.
type ContractInitialized struct {
	ContractIndex    int64
	ContractSubIndex int64
	ModuleReference  string
	ContractName     string
	Amount           int64
}

func (e ContractInitialized) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `INSERT INTO contracts (index, sub_index, module_reference, name, amount, transaction_index)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ContractIndex, e.ContractSubIndex, e.ModuleReference, e.ContractName, e.Amount, txIndex)
	if err != nil {
		return fmt.Errorf("insert contract %d,%d: %w", e.ContractIndex, e.ContractSubIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert contract %d,%d", e.ContractIndex, e.ContractSubIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// ContractEvent appends one logged event emitted by a contract during init,
// update, or interrupt/resume handling, numbering it among that contract's
// own event history rather than the block's.
type ContractEvent struct {
	ContractIndex    int64
	ContractSubIndex int64
	EventBytes       []byte
}

func (e ContractEvent) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `INSERT INTO contract_events (contract_index, contract_sub_index, event_index_per_contract, transaction_index, event)
		SELECT $1, $2, COALESCE(MAX(event_index_per_contract) + 1, 0), $3, $4
		FROM contract_events WHERE contract_index = $1 AND contract_sub_index = $2`,
		e.ContractIndex, e.ContractSubIndex, txIndex, e.EventBytes)
	if err != nil {
		return fmt.Errorf("insert contract event for %d,%d: %w", e.ContractIndex, e.ContractSubIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert contract event for %d,%d", e.ContractIndex, e.ContractSubIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// ContractUpdated adjusts a contract's held amount by Delta, positive when
// it receives CCD and negative when it sends CCD out as part of an update.
type ContractUpdated struct {
	ContractIndex    int64
	ContractSubIndex int64
	Delta            int64
}

func (e ContractUpdated) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	if e.Delta == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, `UPDATE contracts SET amount = amount + $3 WHERE index = $1 AND sub_index = $2`,
		e.ContractIndex, e.ContractSubIndex, e.Delta)
	if err != nil {
		return fmt.Errorf("update contract %d,%d amount: %w", e.ContractIndex, e.ContractSubIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("update contract %d,%d amount", e.ContractIndex, e.ContractSubIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// ContractUpgraded repoints a contract at a new module and records the
// transaction that performed the upgrade. The module unlink/link rows are
// written by the separate ModuleLinkChanged events built alongside it.
type ContractUpgraded struct {
	ContractIndex    int64
	ContractSubIndex int64
	NewModuleRef     string
}

func (e ContractUpgraded) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `UPDATE contracts SET module_reference = $3, last_upgrade_transaction_index = $4
		WHERE index = $1 AND sub_index = $2`,
		e.ContractIndex, e.ContractSubIndex, e.NewModuleRef, txIndex)
	if err != nil {
		return fmt.Errorf("upgrade contract %d,%d: %w", e.ContractIndex, e.ContractSubIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("upgrade contract %d,%d", e.ContractIndex, e.ContractSubIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// ContractRejected records a failed update/init attempt against an existing
// contract, numbered among that contract's own rejection history.
type ContractRejected struct {
	ContractIndex    int64
	ContractSubIndex int64
}

func (e ContractRejected) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `INSERT INTO contract_reject_transactions (contract_index, contract_sub_index, reject_index_per_contract, transaction_index)
		SELECT $1, $2, COALESCE(MAX(reject_index_per_contract) + 1, 0), $3
		FROM contract_reject_transactions WHERE contract_index = $1 AND contract_sub_index = $2`,
		e.ContractIndex, e.ContractSubIndex, txIndex)
	if err != nil {
		return fmt.Errorf("insert contract reject for %d,%d: %w", e.ContractIndex, e.ContractSubIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert contract reject for %d,%d", e.ContractIndex, e.ContractSubIndex), tag.RowsAffected(), 1)
	}
	return nil
}
