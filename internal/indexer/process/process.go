package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/dbconn"
	"github.com/concordium/ccdscan-indexer/internal/indexer/errs"
	"github.com/concordium/ccdscan-indexer/internal/indexer/preprocess"
	"github.com/concordium/ccdscan-indexer/internal/indexer/statistics"
	"github.com/concordium/ccdscan-indexer/internal/logging"
	"github.com/concordium/ccdscan-indexer/internal/metrics"
	"github.com/concordium/ccdscan-indexer/internal/models"
)

// Processor owns the single write-path database connection and applies
// batches of preprocessed blocks to it in height order, one batch per SQL
// transaction. Grounded on BlockProcessor in block_processor.rs: a single
// dedicated connection rather than a pool, since writes are strictly
// serial and a pool would buy nothing but connection overhead.
type Processor struct {
	conn                  *pgx.Conn
	databaseURL           string
	lockTimeout           time.Duration
	maxSuccessiveFailures uint32

	context BlockProcessingContext

	metrics *metrics.Registry
	log     logging.Logger
}

// New constructs a Processor from an already-connected, already-locked
// conn and the context loaded from it at startup.
func New(conn *pgx.Conn, databaseURL string, lockTimeout time.Duration, maxSuccessiveFailures uint32, bc BlockProcessingContext, reg *metrics.Registry, log logging.Logger) *Processor {
	return &Processor{
		conn:                  conn,
		databaseURL:           databaseURL,
		lockTimeout:           lockTimeout,
		maxSuccessiveFailures: maxSuccessiveFailures,
		context:               bc,
		metrics:               reg,
		log:                   log,
	}
}

// Process applies one batch of preprocessed blocks inside a single
// transaction, in height order, and reports the hash of the last block
// applied. Mirrors block_processor.rs's ProcessEvent::process body: clone
// the running context, mutate the clone throughout the transaction, and
// only adopt it into the Processor once the transaction commits.
func (p *Processor) Process(ctx context.Context, batch []*preprocess.PreparedBlock) (string, error) {
	if len(batch) == 0 {
		return "", errors.New("process: empty batch")
	}

	start := time.Now()
	bc := p.context

	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin batch transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := batchSaveBlocks(ctx, tx, batch, &bc); err != nil {
		return "", err
	}

	for _, pb := range batch {
		if err := applyBlockContent(ctx, tx, pb, p.log); err != nil {
			return "", fmt.Errorf("apply block %d content: %w", pb.Block.Height, err)
		}
	}

	if err := purgeMaturedScheduledReleases(ctx, tx, bc.LastBlockSlotTime); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit batch transaction: %w", err)
	}

	p.context = bc
	p.metrics.BatchSize.Observe(float64(len(batch)))
	p.metrics.ProcessingDurationSecond.Observe(time.Since(start).Seconds())

	return batch[len(batch)-1].Block.Hash, nil
}

// applyBlockContent applies one block's BlockPreparers first (the protocol
// migration, the side effects of special events such as rewards, payday
// snapshots and suspensions, and the suspension-priming sweep, in the order
// preprocessing built them), then transaction rows and their event
// preparers, then block-level statistics, and last the special transaction
// outcome rows. Special-event side effects therefore land before the
// block's transactions, not after them. Mirrors
// PreparedBlock::process_block_content in block.rs.
func applyBlockContent(ctx context.Context, tx pgx.Tx, pb *preprocess.PreparedBlock, log logging.Logger) error {
	for _, prep := range pb.BlockPreparers {
		if err := prep.Apply(ctx, tx); err != nil {
			return fmt.Errorf("apply block preparer: %w", err)
		}
	}

	stats := statistics.New(pb.Block.Height, pb.Block.SlotTime)

	for _, ptx := range pb.Transactions {
		if err := insertTransaction(ctx, tx, ptx.Row); err != nil {
			return fmt.Errorf("insert transaction %d: %w", ptx.Row.Index, err)
		}
		for _, preparer := range ptx.Preparers {
			if err := preparer.Save(ctx, tx, ptx.Row.Index, stats); err != nil {
				return fmt.Errorf("save event for transaction %d: %w", ptx.Row.Index, err)
			}
		}
	}

	if err := stats.Save(ctx, tx, log); err != nil {
		return fmt.Errorf("save block statistics: %w", err)
	}

	for _, outcome := range pb.SpecialOutcomes {
		if err := insertSpecialTransactionOutcome(ctx, tx, outcome); err != nil {
			return err
		}
	}

	return nil
}

// insertTransaction inserts one transactions row, grounded on
// PreparedBlockItem::save's leading INSERT INTO transactions in
// block_item.rs.
func insertTransaction(ctx context.Context, tx pgx.Tx, row models.Transaction) error {
	tag, err := tx.Exec(ctx, `INSERT INTO transactions (
			index, block_height, hash, ccd_cost, energy_cost, sender_index, kind, sub_type, success, events, reject
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.Index, row.BlockHeight, row.Hash, row.CcdCost, row.EnergyCost, row.SenderIndex,
		string(row.Kind), row.SubType, row.Success, nullableJSON(row.Events), nullableJSON(row.Reject))
	if err != nil {
		return fmt.Errorf("insert transaction %d: %w", row.Index, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert transaction %d", row.Index), tag.RowsAffected(), 1)
	}
	return nil
}

// nullableJSON turns an empty/nil raw JSON payload into a SQL NULL rather
// than writing an empty byte slice, since Events and Reject are mutually
// exclusive and exactly one is ever populated.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// insertSpecialTransactionOutcome inserts one special_transaction_outcomes
// row, grounded on PreparedSpecialTransactionOutcomes::save in
// special_transaction_outcomes.rs.
func insertSpecialTransactionOutcome(ctx context.Context, tx pgx.Tx, row models.SpecialTransactionOutcome) error {
	tag, err := tx.Exec(ctx, `INSERT INTO special_transaction_outcomes (block_height, block_outcome_index, outcome_type, outcome)
		VALUES ($1, $2, $3, $4)`,
		row.BlockHeight, row.BlockOutcomeIndex, row.OutcomeType, row.Outcome)
	if err != nil {
		return fmt.Errorf("insert special transaction outcome %d/%d: %w", row.BlockHeight, row.BlockOutcomeIndex, err)
	}
	if tag.RowsAffected() != 1 {
		return errs.AffectedRows(fmt.Sprintf("insert special transaction outcome %d/%d", row.BlockHeight, row.BlockOutcomeIndex), tag.RowsAffected(), 1)
	}
	return nil
}

// purgeMaturedScheduledReleases deletes every scheduled_releases row whose
// release time has passed as of the batch's last block, mirroring
// process_release_schedules in block_processor.rs.
func purgeMaturedScheduledReleases(ctx context.Context, tx pgx.Tx, lastBlockSlotTime time.Time) error {
	if _, err := tx.Exec(ctx, `DELETE FROM scheduled_releases WHERE release_time <= $1`, lastBlockSlotTime); err != nil {
		return fmt.Errorf("purge matured scheduled releases: %w", err)
	}
	return nil
}

// OnFailure is invoked by the pipeline driver when Process returns an
// error: it records the failure, drops and reopens the owned connection,
// and re-acquires the indexer lock, mirroring ProcessEvent::on_failure's
// reconnect loop. It returns whether the pipeline should keep retrying.
func (p *Processor) OnFailure(ctx context.Context, cause error, successiveFailures uint32) (bool, error) {
	p.metrics.ProcessingFailures.Inc()
	p.log.Error("failed to process batch", "error", cause, "successive_failures", successiveFailures)

	if p.conn != nil {
		_ = p.conn.Close(ctx)
	}

	conn, err := dbconn.NewConnection(ctx, p.databaseURL)
	if err != nil {
		return false, fmt.Errorf("reconnect after processing failure: %w", err)
	}
	if err := dbconn.AcquireIndexerLock(ctx, conn, p.lockTimeout); err != nil {
		_ = conn.Close(ctx)
		return false, fmt.Errorf("reacquire indexer lock after processing failure: %w", err)
	}
	p.conn = conn

	return successiveFailures < p.maxSuccessiveFailures, nil
}
