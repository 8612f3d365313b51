package prepare

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
	"github.com/concordium/ccdscan-indexer/internal/indexer/statistics"
)

// UpdateTransactionType mirrors the update_transaction_type Postgres enum,
// grounded on
// original_source/backend-rust/src/transaction_event/chain_update.rs's
// ChainUpdatePayload variants.
type UpdateTransactionType string

const (
	UpdateMicroCcdPerEuro                 UpdateTransactionType = "MicroCcdPerEuro"
	UpdateEuroPerEnergy                   UpdateTransactionType = "EuroPerEnergy"
	UpdateTransactionFeeDistribution      UpdateTransactionType = "TransactionFeeDistribution"
	UpdateFoundationAccount               UpdateTransactionType = "FoundationAccount"
	UpdateMintDistribution                UpdateTransactionType = "MintDistribution"
	UpdateProtocolUpdate                  UpdateTransactionType = "ProtocolUpdate"
	UpdateGasRewards                      UpdateTransactionType = "GasRewards"
	UpdateBakerStakeThreshold             UpdateTransactionType = "BakerStakeThreshold"
	UpdateElectionDifficulty              UpdateTransactionType = "ElectionDifficulty"
	UpdateAddAnonymityRevoker             UpdateTransactionType = "AddAnonymityRevoker"
	UpdateAddIdentityProvider             UpdateTransactionType = "AddIdentityProvider"
	UpdateRootKeys                        UpdateTransactionType = "RootKeys"
	UpdateLevel1Keys                      UpdateTransactionType = "Level1Keys"
	UpdateLevel2Keys                      UpdateTransactionType = "Level2Keys"
	UpdateCooldownParameters              UpdateTransactionType = "CooldownParameters"
	UpdatePoolParameters                  UpdateTransactionType = "PoolParameters"
	UpdateTimeParameters                  UpdateTransactionType = "TimeParameters"
	UpdateGasRewardsCpv2                  UpdateTransactionType = "GasRewardsCpv2"
	UpdateTimeoutParameters               UpdateTransactionType = "TimeoutParameters"
	UpdateMinBlockTime                    UpdateTransactionType = "MinBlockTime"
	UpdateBlockEnergyLimit                UpdateTransactionType = "BlockEnergyLimit"
	UpdateFinalizationCommitteeParameters UpdateTransactionType = "FinalizationCommitteeParameters"
	UpdateValidatorScoreParameters        UpdateTransactionType = "ValidatorScoreParameters"
	UpdateTokenUpdate                     UpdateTransactionType = "TokenUpdate"
)

// ChainUpdateEnqueued records one governance chain-update transaction. The
// payload's shape is specific to its Type and is kept as opaque JSON, since
// every read of it belongs to the (out of scope) GraphQL API rather than
// the indexer itself.
type ChainUpdateEnqueued struct {
	Type        UpdateTransactionType
	PayloadJSON []byte
}

func (e ChainUpdateEnqueued) Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error {
	tag, err := tx.Exec(ctx, `INSERT INTO chain_update_events (transaction_index, update_type, payload)
		VALUES ($1, $2, $3)`, txIndex, string(e.Type), e.PayloadJSON)
	if err != nil {
		return fmt.Errorf("insert chain update event %s: %w", e.Type, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert chain update event %s", e.Type), tag.RowsAffected(), 1)
	}
	return nil
}
