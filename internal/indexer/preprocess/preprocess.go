// Package preprocess implements the concurrent, database-free first stage
// of the pipeline: for each finalized block it fans six RPC calls out
// across the node connection, then folds the raw responses into an
// immutable PreparedBlock the serial process stage can apply without
// touching the network again. Grounded on
// original_source/backend/src/indexer/block_preprocessor.rs.
package preprocess

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/concordium/ccdscan-indexer/internal/indexer/prepare"
	"github.com/concordium/ccdscan-indexer/internal/indexer/statistics"
	"github.com/concordium/ccdscan-indexer/internal/logging"
	"github.com/concordium/ccdscan-indexer/internal/metrics"
	"github.com/concordium/ccdscan-indexer/internal/models"
	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

// BlockData is the raw, unprocessed response set fetched for one block.
type BlockData struct {
	FinalizedBlockInfo nodeapi.FinalizedBlockInfo
	BlockInfo          nodeapi.BlockInfo
	Certificates       nodeapi.BlockCertificates
	ChainParameters    nodeapi.ChainParameters
	TokenomicsInfo     nodeapi.Tokenomics
	TotalStakedCapital uint64
	Events             []nodeapi.BlockItemSummary
	Items              [][]byte
	SpecialEvents      []nodeapi.SpecialEvent
	ProtocolMigration  *prepare.P4ProtocolMigration
}

// Processor concurrently fetches and assembles PreparedBlocks. One
// Processor instance is shared by every worker goroutine in the pipeline
// driver's pool, so all state here must be safe for concurrent use.
type Processor struct {
	genesisHash           nodeapi.BlockHash
	maxSuccessiveFailures uint32
	recomputeEveryBlocks  uint64
	schemas               *nodeapi.ModuleSchemaCache
	metrics               *metrics.Registry
	log                   logging.Logger
}

// moduleSchemaCacheSize bounds how many distinct modules' schemas are kept
// in memory at once; deployed modules are frequently reused across many
// contracts, but unbounded growth over a full chain replay isn't worth it.
const moduleSchemaCacheSize = 1024

// NewProcessor constructs a Processor bound to the expected genesis hash;
// on_connect (mirrored by VerifyConnection) rejects any node not on that
// chain, matching block_preprocessor.rs's on_connect check.
func NewProcessor(genesisHash nodeapi.BlockHash, maxSuccessiveFailures uint32, recomputeEveryBlocks uint64, reg *metrics.Registry, log logging.Logger) *Processor {
	schemas, err := nodeapi.NewModuleSchemaCache(moduleSchemaCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// moduleSchemaCacheSize never is.
		panic(err)
	}
	return &Processor{
		genesisHash:           genesisHash,
		maxSuccessiveFailures: maxSuccessiveFailures,
		recomputeEveryBlocks:  recomputeEveryBlocks,
		schemas:               schemas,
		metrics:               reg,
		log:                   log,
	}
}

// VerifyConnection checks a freshly dialled client is on the expected
// network before the pipeline driver starts handing it blocks.
func (p *Processor) VerifyConnection(ctx context.Context, client nodeapi.Client, endpoint string) error {
	info, err := client.GetConsensusInfo(ctx)
	if err != nil {
		return fmt.Errorf("get consensus info from %s: %w", endpoint, err)
	}
	if info.GenesisBlock != p.genesisHash {
		return fmt.Errorf("endpoint %s is on a chain with genesis %s, expected %s", endpoint, info.GenesisBlock, p.genesisHash)
	}
	p.metrics.NodeConnections.WithLabelValues(endpoint).Inc()
	p.log.Info("connection established", "endpoint", endpoint)
	return nil
}

// ShouldStop implements the on_failure backoff-or-give-up decision: the
// driver has already retried successiveFailures times in a row.
func (p *Processor) ShouldStop(successiveFailures uint32) bool {
	return successiveFailures > p.maxSuccessiveFailures
}

// PreprocessBlock fetches everything needed for one block via a six-way
// fan-out, then prepares it. Safe to call concurrently for distinct blocks
// from the same client.
func (p *Processor) PreprocessBlock(ctx context.Context, client nodeapi.Client, endpoint string, fbi nodeapi.FinalizedBlockInfo) (*PreparedBlock, error) {
	p.metrics.BlocksBeingPreprocessed.WithLabelValues(endpoint).Inc()
	defer p.metrics.BlocksBeingPreprocessed.WithLabelValues(endpoint).Dec()

	id := nodeapi.AtHeight(uint64(fbi.Height))
	start := time.Now()

	data := BlockData{FinalizedBlockInfo: fbi}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		info, err := client.GetBlockInfo(gctx, id)
		if err != nil {
			return fmt.Errorf("get block info: %w", err)
		}
		data.BlockInfo = info

		// Certificates are only queryable from P6 onward; older protocols
		// return an RPC error so we skip the call entirely (empty value is
		// the correct "no certificate data" representation).
		if info.ProtocolVersion >= protocolVersionP6 {
			certs, err := client.GetBlockCertificates(gctx, id)
			if err != nil {
				return fmt.Errorf("get block certificates: %w", err)
			}
			data.Certificates = certs
		}
		return nil
	})

	g.Go(func() error {
		params, err := client.GetBlockChainParameters(gctx, id)
		if err != nil {
			return fmt.Errorf("get chain parameters: %w", err)
		}
		data.ChainParameters = params
		return nil
	})

	g.Go(func() error {
		tokenomics, err := client.GetTokenomicsInfo(gctx, id)
		if err != nil {
			return fmt.Errorf("get tokenomics info: %w", err)
		}
		data.TokenomicsInfo = tokenomics
		if tokenomics.TotalStakedCapital != nil {
			data.TotalStakedCapital = *tokenomics.TotalStakedCapital
			return nil
		}
		total, err := p.computeTotalStakedCapital(gctx, client, id)
		if err != nil {
			return fmt.Errorf("compute total staked capital: %w", err)
		}
		data.TotalStakedCapital = total
		return nil
	})

	g.Go(func() error {
		stream, err := client.GetBlockTransactionEvents(gctx, id)
		if err != nil {
			return fmt.Errorf("get block transaction events: %w", err)
		}
		defer stream.Close()
		events, err := drain[nodeapi.BlockItemSummary](gctx, stream)
		if err != nil {
			return fmt.Errorf("stream block transaction events: %w", err)
		}
		data.Events = events
		return nil
	})

	g.Go(func() error {
		items, err := client.GetBlockItems(gctx, id)
		if err != nil {
			return fmt.Errorf("get block items: %w", err)
		}
		data.Items = items
		return nil
	})

	g.Go(func() error {
		stream, err := client.GetBlockSpecialEvents(gctx, id)
		if err != nil {
			return fmt.Errorf("get block special events: %w", err)
		}
		defer stream.Close()
		events, err := drain[nodeapi.SpecialEvent](gctx, stream)
		if err != nil {
			return fmt.Errorf("stream block special events: %w", err)
		}
		data.SpecialEvents = events
		return nil
	})

	if err := g.Wait(); err != nil {
		p.metrics.PreprocessingFailures.WithLabelValues(endpoint).Inc()
		return nil, err
	}
	p.metrics.NodeResponseTimeSeconds.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err := p.fillPaydayRewardPeriod(ctx, client, id, &data); err != nil {
		return nil, fmt.Errorf("fill payday reward period: %w", err)
	}
	if err := p.fillProtocolUpdateMigration(ctx, client, id, &data); err != nil {
		return nil, fmt.Errorf("fill protocol update migration: %w", err)
	}

	return p.prepare(ctx, client, &data)
}

// protocolVersionP6 is the first protocol version that supports
// get_block_certificates (spec.md GLOSSARY "P6", "P8").
const protocolVersionP6 = 6

// protocolVersionP4 is the protocol version that introduced baker pool
// configuration (open status, metadata URL, commission rates), requiring a
// one-time backfill onto every pre-existing baker.
const protocolVersionP4 = 4

// fillProtocolUpdateMigration backfills pool configuration for every baker
// at the first block of protocol version 4. It is a no-op for every other
// block. Grounded on
// original_source/backend-rust/src/indexer/block/protocol_update_migration.rs.
func (p *Processor) fillProtocolUpdateMigration(ctx context.Context, client nodeapi.Client, id nodeapi.BlockIdentifier, data *BlockData) error {
	if data.BlockInfo.EraBlockHeight != 0 || data.BlockInfo.ProtocolVersion != protocolVersionP4 {
		return nil
	}

	bakers, err := client.GetBakerList(ctx, id)
	if err != nil {
		return fmt.Errorf("get baker list: %w", err)
	}
	defer bakers.Close()

	migration := &prepare.P4ProtocolMigration{}
	for {
		bakerID, ok, err := bakers.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		info, err := client.GetPoolInfo(ctx, bakerID, id)
		if err != nil {
			return fmt.Errorf("get pool info for baker %d: %w", bakerID, err)
		}
		migration.BakerIDs = append(migration.BakerIDs, int64(bakerID))
		migration.OpenStatuses = append(migration.OpenStatuses, models.BakerPoolOpenStatus(info.OpenStatus))
		migration.MetadataURLs = append(migration.MetadataURLs, info.MetadataURL)
		migration.TransactionCommissions = append(migration.TransactionCommissions, int64(info.TransactionCommission))
		migration.BakingCommissions = append(migration.BakingCommissions, int64(info.BakingCommission))
		migration.FinalizationCommissions = append(migration.FinalizationCommissions, int64(info.FinalizationCommission))
	}
	data.ProtocolMigration = migration
	return nil
}

func (p *Processor) computeTotalStakedCapital(ctx context.Context, client nodeapi.Client, id nodeapi.BlockIdentifier) (uint64, error) {
	bakers, err := client.GetBakerList(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("get baker list: %w", err)
	}
	defer bakers.Close()

	var total uint64
	for {
		bakerID, ok, err := bakers.Next(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		info, err := client.GetAccountInfo(ctx, fmt.Sprintf("%d", bakerID), id)
		if err != nil {
			return 0, fmt.Errorf("get account info for baker %d: %w", bakerID, err)
		}
		if info.Baker == nil {
			return 0, fmt.Errorf("expected baker %d to have account stake information", bakerID)
		}
		total += info.Baker.Staked
		if info.Delegation != nil {
			total += info.Delegation.StakedAmount
		}
	}
	return total, nil
}

// specialEventKindPayday is the SpecialEvent.Kind tag the node reports for
// a payday block (spec.md GLOSSARY "payday").
const specialEventKindPayday = "PaydayBlock"

// fillPaydayRewardPeriod issues the extra reward-period RPCs the original
// only makes at payday blocks: one call for every baker pool's commission
// and effective stake, then one delegator-drain per pool (or the passive
// pool) to compute the stake and delegator count the payday snapshot
// needs. It mutates data.SpecialEvents in place, replacing the payday
// event's Data with the aggregated nodeapi.SpecialEventData.
func (p *Processor) fillPaydayRewardPeriod(ctx context.Context, client nodeapi.Client, id nodeapi.BlockIdentifier, data *BlockData) error {
	idx := -1
	for i, se := range data.SpecialEvents {
		if se.Kind == specialEventKindPayday {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	bakerStream, err := client.GetBakersRewardPeriod(ctx, id)
	if err != nil {
		return fmt.Errorf("get bakers reward period: %w", err)
	}
	defer bakerStream.Close()
	bakers, err := drain[nodeapi.BakerRewardPeriodInfo](ctx, bakerStream)
	if err != nil {
		return fmt.Errorf("stream bakers reward period: %w", err)
	}

	poolStakes := make([]nodeapi.PaydayPoolStake, 0, len(bakers))
	for _, b := range bakers {
		delegatorStream, err := client.GetPoolDelegatorsRewardPeriod(ctx, b.BakerID, id)
		if err != nil {
			return fmt.Errorf("get pool delegators reward period for baker %d: %w", b.BakerID, err)
		}
		delegators, err := drain[nodeapi.PassiveDelegatorRewardPeriodInfo](ctx, delegatorStream)
		delegatorStream.Close()
		if err != nil {
			return fmt.Errorf("stream pool delegators reward period for baker %d: %w", b.BakerID, err)
		}
		var delegated uint64
		for _, d := range delegators {
			delegated += d.StakedAmount
		}
		poolStakes = append(poolStakes, nodeapi.PaydayPoolStake{
			BakerID:        b.BakerID,
			BakerStake:     b.EffectiveStake,
			DelegatedStake: delegated,
			DelegatorCount: uint64(len(delegators)),
		})
	}

	passiveStream, err := client.GetPassiveDelegatorsRewardPeriod(ctx, id)
	if err != nil {
		return fmt.Errorf("get passive delegators reward period: %w", err)
	}
	defer passiveStream.Close()
	passiveDelegators, err := drain[nodeapi.PassiveDelegatorRewardPeriodInfo](ctx, passiveStream)
	if err != nil {
		return fmt.Errorf("stream passive delegators reward period: %w", err)
	}
	var passiveStake *nodeapi.PaydayPoolStake
	// The node has no get_passive_pool_info call distinct from
	// get_passive_delegators_reward_period; its fixed commission rates are
	// chain parameters, not fetched here.
	var passiveCommission *nodeapi.BakerPoolInfo
	if len(passiveDelegators) > 0 || len(bakers) > 0 {
		var delegated uint64
		for _, d := range passiveDelegators {
			delegated += d.StakedAmount
		}
		passiveStake = &nodeapi.PaydayPoolStake{DelegatedStake: delegated, DelegatorCount: uint64(len(passiveDelegators))}
	}

	payday := nodeapi.PaydaySpecialEvent{
		BakerCommissionRates:   bakers,
		PassiveCommissionRates: passiveCommission,
		BakerPoolStakes:        poolStakes,
		PassivePoolStake:       passiveStake,
	}

	existing, _ := data.SpecialEvents[idx].Data.(nodeapi.SpecialEventData)
	existing.Payday = &payday
	data.SpecialEvents[idx].Data = existing
	return nil
}

func drain[T any](ctx context.Context, s nodeapi.Stream[T]) ([]T, error) {
	var out []T
	for {
		item, ok, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}

// PreparedBlock is the immutable, database-free result of preprocessing
// one finalized block, ready for the process stage's single SQL
// transaction to apply in height order.
type PreparedBlock struct {
	Block             models.Block
	Transactions      []PreparedTransaction
	SpecialOutcomes   []models.SpecialTransactionOutcome
	BlockPreparers    []BlockPreparer
	QuorumSignatories []uint64
	ProtocolVersion   uint32
	EraBlockHeight    uint64
	// LastFinalizedBlockHash is the hash this block reports as the chain's
	// last finalized block, used by the process stage to detect a new
	// finalization and retroactively stamp finalization_time_ms on every
	// still-unfinalized block at or below it.
	LastFinalizedBlockHash nodeapi.BlockHash
}

// Height satisfies pipeline.Heighted so the driver's reordering buffer can
// sort preprocessor output without depending on this package.
func (pb *PreparedBlock) Height() uint64 { return uint64(pb.Block.Height) }

// PreparedTransaction pairs a transaction row with the preparer chain that
// will apply its effects during the process stage (spec.md §4.5).
type PreparedTransaction struct {
	Row       models.Transaction
	Preparers []EventPreparer
}

// EventPreparer is satisfied by every prepared side-effect of a
// transaction or special event: account balance changes, baker events,
// contract events, and so on. Save must check its own affected-row
// expectation and return an error if violated (spec.md §4.5, §7); stats
// accumulates the block-level counters that flush once at the end of the
// block instead of per event.
type EventPreparer interface {
	Save(ctx context.Context, tx pgx.Tx, txIndex int64, stats *statistics.Statistics) error
}

// BlockPreparer is satisfied by side effects that apply once per block
// rather than once per transaction: the suspension-priming sweep and
// payday-block bookkeeping.
type BlockPreparer interface {
	Apply(ctx context.Context, tx pgx.Tx) error
}
