package prepare

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
	"github.com/concordium/ccdscan-indexer/internal/indexer/statistics"
	"github.com/concordium/ccdscan-indexer/internal/models"
)

// RejectOutcome classifies what a rejected transaction's reason should
// produce: nothing, a lightweight reject row, or (outside the allow-list) a
// fatal error.
type RejectOutcome int

const (
	// RejectNoEvent means the reason is known and expected to produce no
	// indexed row at all (the module/contract reference never resolved).
	RejectNoEvent RejectOutcome = iota
	// RejectIndexed means the reason gets a lightweight reject row.
	RejectIndexed
)

// ClassifyRejectReason is the allow-list of reject reasons the indexer
// understands for InitContract/DeployModule/Update transactions. Grounded
// on
// original_source/backend/src/indexer/block/block_item/account_transaction/rejected_events.rs.
// Transaction types outside that set (Transfer, ConfigureDelegation, ...)
// never produce a reject row regardless of reason, since the allow-list
// only governs module/contract indexing. A reason that falls within
// InitContract/DeployModule/Update but isn't on the list is a
// node-compatibility bug, not a silently-ignorable case, and is reported
// via errs.ErrUnhandledRejectReason so the block fails loudly instead of
// dropping data.
func ClassifyRejectReason(transactionType models.TransactionType, reason models.RejectReason) (RejectOutcome, error) {
	switch transactionType {
	case models.TransactionTypeInitContract, models.TransactionTypeDeployModule:
		switch reason {
		case models.RejectModuleNotWF, models.RejectInvalidModuleReference:
			return RejectNoEvent, nil
		case models.RejectInvalidInitMethod:
			return RejectIndexed, nil
		default:
			return RejectNoEvent, errs.UnhandledRejectReason(string(transactionType), string(reason))
		}
	case models.TransactionTypeUpdate:
		switch reason {
		case models.RejectInvalidContractAddress:
			return RejectNoEvent, nil
		case models.RejectInvalidReceiveMethod, models.RejectRuntimeFailure, models.RejectAmountTooLarge,
			models.RejectOutOfEnergy, models.RejectRejectedReceive, models.RejectInvalidAccountReference:
			return RejectIndexed, nil
		default:
			return RejectNoEvent, errs.UnhandledRejectReason(string(transactionType), string(reason))
		}
	default:
		return RejectNoEvent, nil
	}
}

// RejectModuleTransaction records a rejected DeployModule or InitContract
// transaction that targeted an otherwise-known module reference, e.g. an
// init call naming an init method the module does not have
// (InvalidInitMethod).
// ModuleNotWF and InvalidModuleReference rejections produce no event at all
// (the module reference doesn't resolve to anything indexable).
type RejectModuleTransaction struct {
	ModuleReference string
}

func (e RejectModuleTransaction) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `INSERT INTO rejected_smart_contract_module_transactions (index, module_reference, transaction_index)
		SELECT COALESCE(MAX(index) + 1, 0), $1, $2
		FROM rejected_smart_contract_module_transactions WHERE module_reference = $1`,
		e.ModuleReference, txIndex)
	if err != nil {
		return fmt.Errorf("insert rejected module transaction for %s: %w", e.ModuleReference, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert rejected module transaction for %s", e.ModuleReference), tag.RowsAffected(), 1)
	}
	return nil
}

// RejectContractUpdateTransaction records a rejected Update transaction
// against a known contract address, e.g. a runtime failure or an energy
// exhaustion. InvalidContractAddress rejections (the address doesn't exist)
// produce no event.
type RejectContractUpdateTransaction struct {
	ContractIndex    int64
	ContractSubIndex int64
}

func (e RejectContractUpdateTransaction) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `INSERT INTO contract_reject_transactions (contract_index, contract_sub_index, reject_index_per_contract, transaction_index)
		SELECT $1, $2, COALESCE(MAX(reject_index_per_contract) + 1, 0), $3
		FROM contract_reject_transactions WHERE contract_index = $1 AND contract_sub_index = $2`,
		e.ContractIndex, e.ContractSubIndex, txIndex)
	if err != nil {
		return fmt.Errorf("insert contract reject transaction for %d,%d: %w", e.ContractIndex, e.ContractSubIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert contract reject transaction for %d,%d", e.ContractIndex, e.ContractSubIndex), tag.RowsAffected(), 1)
	}
	return nil
}
