package preprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/concordium/ccdscan-indexer/internal/indexer/balance"
	"github.com/concordium/ccdscan-indexer/internal/indexer/prepare"
	"github.com/concordium/ccdscan-indexer/internal/models"
	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

// protocolVersionP8 is the first protocol version with validator
// suspension (spec.md GLOSSARY "P8").
const protocolVersionP8 = 8

// prepare folds one block's raw BlockData into an immutable PreparedBlock.
// It does not touch the database; its one network use is fetching a
// deployed module's source for its embedded schema (through p.schemas).
// Every preparer it builds defers its own SQL to the process stage's
// single transaction.
func (p *Processor) prepare(ctx context.Context, client nodeapi.Client, data *BlockData) (*PreparedBlock, error) {
	height := int64(data.FinalizedBlockInfo.Height)

	block := models.Block{
		Height: height,
		Hash:   string(data.BlockInfo.Hash),
		SlotTime: data.BlockInfo.SlotTime,
		// BlockTimeMs and FinalizationTimeMs depend on the previous block's
		// slot time and this block's eventual finalization, both only known
		// to the process stage's running BlockProcessingContext; preprocess
		// leaves them zero/nil here and process fills them in.
		TotalAmount: int64(data.TokenomicsInfo.TotalAmount),
		TotalStaked: int64(data.TotalStakedCapital),
	}
	if data.BlockInfo.BakerID != nil {
		id := int64(*data.BlockInfo.BakerID)
		block.BakerID = &id
	}

	transactions := make([]PreparedTransaction, 0, len(data.Events))
	for _, ev := range data.Events {
		pt, err := p.prepareTransaction(ctx, client, height, ev)
		if err != nil {
			return nil, fmt.Errorf("prepare transaction %d: %w", ev.Index, err)
		}
		transactions = append(transactions, pt)
	}

	specialOutcomes := make([]models.SpecialTransactionOutcome, 0, len(data.SpecialEvents))
	var blockPreparers []BlockPreparer
	if data.ProtocolMigration != nil {
		blockPreparers = append(blockPreparers, *data.ProtocolMigration)
	}
	for _, se := range data.SpecialEvents {
		row, preparers, err := p.prepareSpecialEvent(height, se)
		if err != nil {
			return nil, fmt.Errorf("prepare special event %d: %w", se.Index, err)
		}
		specialOutcomes = append(specialOutcomes, row)
		blockPreparers = append(blockPreparers, preparers...)
	}

	quorumSignatories := make([]uint64, 0, len(data.Certificates.QuorumSignatories))
	for _, s := range data.Certificates.QuorumSignatories {
		quorumSignatories = append(quorumSignatories, s.BakerID)
	}
	if data.BlockInfo.ProtocolVersion >= protocolVersionP8 {
		ids := make([]int64, 0, len(quorumSignatories)+1)
		if data.BlockInfo.BakerID != nil {
			ids = append(ids, int64(*data.BlockInfo.BakerID))
		}
		for _, id := range quorumSignatories {
			ids = append(ids, int64(id))
		}
		if len(ids) > 0 {
			blockPreparers = append(blockPreparers, prepare.ClearSuspensionPriming{SignatoryBakerIDs: ids})
		}
	}

	return &PreparedBlock{
		Block:                  block,
		Transactions:           transactions,
		SpecialOutcomes:        specialOutcomes,
		BlockPreparers:         blockPreparers,
		QuorumSignatories:      quorumSignatories,
		ProtocolVersion:        data.BlockInfo.ProtocolVersion,
		EraBlockHeight:         data.BlockInfo.EraBlockHeight,
		LastFinalizedBlockHash: data.BlockInfo.LastFinalizedBlock,
	}, nil
}

func (p *Processor) prepareTransaction(ctx context.Context, client nodeapi.Client, blockHeight int64, ev nodeapi.BlockItemSummary) (PreparedTransaction, error) {
	row := models.Transaction{
		Index:       int64(ev.Index),
		BlockHeight: blockHeight,
		Hash:        ev.Hash,
		CcdCost:     int64(ev.CcdCost),
		EnergyCost:  int64(ev.EnergyCost),
	}
	if ev.Sender != nil {
		idx, err := strconv.ParseInt(*ev.Sender, 10, 64)
		if err == nil {
			row.SenderIndex = &idx
		}
	}

	effects, ok := ev.Effects.(nodeapi.AccountTransactionEffects)
	if !ok {
		// Credential deployments and chain updates carry no account-transaction
		// effects struct; fall back on a typed switch for the rest.
		switch e := ev.Effects.(type) {
		case nodeapi.ChainUpdateEffects:
			row.Kind = models.TxKindUpdate
			row.SubType = e.UpdateType
			row.Success = true
			row.Events, _ = json.Marshal(e)
			return PreparedTransaction{Row: row, Preparers: []EventPreparer{
				prepare.ChainUpdateEnqueued{Type: prepare.UpdateTransactionType(e.UpdateType), PayloadJSON: e.PayloadJSON},
			}}, nil
		default:
			row.Kind = models.TxKindCredentialDeployment
			row.Success = true
			row.Events, _ = json.Marshal(ev.Effects)
			return PreparedTransaction{Row: row}, nil
		}
	}

	row.Kind = models.TxKindAccount
	row.SubType = effects.TransactionType

	if effects.Rejected != nil {
		row.Success = false
		reject := effects.Rejected
		row.Reject, _ = json.Marshal(reject)
		ev, err := rejectEventFor(effects.TransactionType, *reject)
		if err != nil {
			return PreparedTransaction{}, err
		}
		if ev == nil {
			return PreparedTransaction{Row: row}, nil
		}
		return PreparedTransaction{Row: row, Preparers: []EventPreparer{ev}}, nil
	}

	row.Success = true
	row.Events, _ = json.Marshal(effects)
	preparers := make([]EventPreparer, 0, 4)

	if effects.Transferred != nil {
		t := effects.Transferred
		preparers = append(preparers, prepare.Transferred{
			FromAccountIndex: int64(t.FromAccountIndex),
			ToAccountIndex:   int64(t.ToAccountIndex),
			Amount:           int64(t.Amount),
			BlockHeight:      blockHeight,
		})
	}
	if effects.TransferredWithSchedule != nil {
		t := effects.TransferredWithSchedule
		releases := make([]prepare.ScheduledRelease, 0, len(t.Releases))
		for _, r := range t.Releases {
			releases = append(releases, prepare.ScheduledRelease{
				ReleaseTime: millisToTime(r.ReleaseTimeUnixMillis),
				Amount:      int64(r.Amount),
			})
		}
		preparers = append(preparers, prepare.TransferredWithSchedule{
			FromAccountIndex: int64(t.FromAccountIndex),
			ToAccountIndex:   int64(t.ToAccountIndex),
			BlockHeight:      blockHeight,
			Releases:         releases,
		})
	}
	if effects.ShieldingBalanceChange != nil {
		s := effects.ShieldingBalanceChange
		preparers = append(preparers, prepare.ShieldingBalanceChanged{
			AccountIndex: int64(s.AccountIndex),
			Change:       s.Change,
			BlockHeight:  blockHeight,
		})
	}
	for _, be := range effects.BakerEvents {
		ev, err := bakerEventPreparer(be)
		if err != nil {
			return PreparedTransaction{}, err
		}
		preparers = append(preparers, ev)
	}
	for _, de := range effects.DelegationEvents {
		ev, err := delegationEventPreparer(de)
		if err != nil {
			return PreparedTransaction{}, err
		}
		preparers = append(preparers, ev)
	}
	if effects.ModuleDeployed != nil {
		ref := effects.ModuleDeployed.ModuleReference
		schema, err := p.schemas.Get(ctx, client, ref)
		if err != nil {
			return PreparedTransaction{}, fmt.Errorf("fetch schema for module %s: %w", ref, err)
		}
		preparers = append(preparers, prepare.ModuleDeployed{ModuleReference: ref, Schema: schema})
	}
	if effects.ContractInitialized != nil {
		c := effects.ContractInitialized
		preparers = append(preparers,
			prepare.ModuleLinkChanged{
				ModuleReference: c.ModuleReference, ContractIndex: int64(c.ContractIndex),
				ContractSubIndex: int64(c.ContractSubIndex), Action: models.LinkActionAdded,
			},
			prepare.ContractInitialized{
				ContractIndex: int64(c.ContractIndex), ContractSubIndex: int64(c.ContractSubIndex),
				ModuleReference: c.ModuleReference, ContractName: c.ContractName, Amount: int64(c.Amount),
			},
		)
		for _, log := range c.Logs {
			preparers = append(preparers, prepare.ContractEvent{
				ContractIndex: int64(c.ContractIndex), ContractSubIndex: int64(c.ContractSubIndex), EventBytes: log,
			})
		}
	}
	for _, u := range effects.ContractUpdated {
		preparers = append(preparers, prepare.ContractUpdated{
			ContractIndex: int64(u.ContractIndex), ContractSubIndex: int64(u.ContractSubIndex), Delta: u.AmountDelta,
		})
		for _, log := range u.Logs {
			preparers = append(preparers, prepare.ContractEvent{
				ContractIndex: int64(u.ContractIndex), ContractSubIndex: int64(u.ContractSubIndex), EventBytes: log,
			})
		}
	}
	if effects.ContractUpgraded != nil {
		u := effects.ContractUpgraded
		preparers = append(preparers,
			prepare.ModuleLinkChanged{
				ModuleReference: u.FromModuleRef, ContractIndex: int64(u.ContractIndex),
				ContractSubIndex: int64(u.ContractSubIndex), Action: models.LinkActionRemoved,
			},
			prepare.ModuleLinkChanged{
				ModuleReference: u.ToModuleRef, ContractIndex: int64(u.ContractIndex),
				ContractSubIndex: int64(u.ContractSubIndex), Action: models.LinkActionAdded,
			},
			prepare.ContractUpgraded{
				ContractIndex: int64(u.ContractIndex), ContractSubIndex: int64(u.ContractSubIndex), NewModuleRef: u.ToModuleRef,
			},
		)
	}

	return PreparedTransaction{Row: row, Preparers: preparers}, nil
}

func bakerEventPreparer(be nodeapi.BakerEffect) (EventPreparer, error) {
	switch be.Kind {
	case "Added":
		return prepare.BakerAdded{BakerID: int64(be.BakerID), Staked: int64(be.Staked), RestakeEarnings: be.RestakeEarnings}, nil
	case "Removed":
		return prepare.BakerRemoved{BakerID: int64(be.BakerID)}, nil
	case "StakeChanged":
		return prepare.BakerStakeChanged{BakerID: int64(be.BakerID), NewStake: int64(be.Staked)}, nil
	case "RestakeEarnings":
		return prepare.BakerSetRestakeEarnings{BakerID: int64(be.BakerID), RestakeEarnings: be.RestakeEarnings}, nil
	case "OpenStatus":
		return prepare.BakerSetOpenStatus{BakerID: int64(be.BakerID), OpenStatus: models.BakerPoolOpenStatus(be.OpenStatus)}, nil
	case "MetadataURL":
		return prepare.BakerSetMetadataURL{BakerID: int64(be.BakerID), MetadataURL: be.MetadataURL}, nil
	case "Commission":
		kind, err := commissionKindFrom(be.CommissionKind)
		if err != nil {
			return nil, err
		}
		return prepare.BakerSetCommission{BakerID: int64(be.BakerID), Kind: kind, Rate: be.CommissionRate}, nil
	case "Suspension":
		var height *int64
		if be.SelfSuspended != nil {
			h := int64(*be.SelfSuspended)
			height = &h
		}
		return prepare.BakerSuspensionChanged{BakerID: int64(be.BakerID), SelfSuspendedHeight: height}, nil
	default:
		return nil, fmt.Errorf("unrecognized baker event kind %q", be.Kind)
	}
}

func commissionKindFrom(s string) (prepare.CommissionKind, error) {
	switch s {
	case "Transaction":
		return prepare.CommissionTransaction, nil
	case "Baking":
		return prepare.CommissionBaking, nil
	case "Finalization":
		return prepare.CommissionFinalization, nil
	default:
		return 0, fmt.Errorf("unrecognized commission kind %q", s)
	}
}

func delegationEventPreparer(de nodeapi.DelegationEffect) (EventPreparer, error) {
	switch de.Kind {
	case "Added":
		return prepare.DelegationAdded{AccountIndex: int64(de.AccountIndex)}, nil
	case "Removed":
		return prepare.DelegationRemoved{AccountIndex: int64(de.AccountIndex)}, nil
	case "StakeChanged":
		return prepare.DelegationStakeChanged{AccountIndex: int64(de.AccountIndex), NewStake: int64(de.Staked)}, nil
	case "RestakeEarnings":
		return prepare.DelegationSetRestakeEarnings{AccountIndex: int64(de.AccountIndex), RestakeEarnings: de.RestakeEarnings}, nil
	case "SetTarget":
		var target *int64
		if de.TargetBakerID != nil {
			t := int64(*de.TargetBakerID)
			target = &t
		}
		return prepare.DelegationSetTarget{AccountIndex: int64(de.AccountIndex), TargetBakerID: target}, nil
	case "RemoveBaker":
		return prepare.DelegationRemoveBaker{BakerRemoved: prepare.BakerRemoved{BakerID: int64(de.RemovedBakerID)}}, nil
	default:
		return nil, fmt.Errorf("unrecognized delegation event kind %q", de.Kind)
	}
}

// rejectEventFor classifies a rejected transaction via
// prepare.ClassifyRejectReason and builds the matching preparer, if any.
func rejectEventFor(transactionType string, r nodeapi.RejectedTransaction) (EventPreparer, error) {
	outcome, err := prepare.ClassifyRejectReason(models.TransactionType(transactionType), models.RejectReason(r.Reason))
	if err != nil {
		return nil, err
	}
	if outcome == prepare.RejectNoEvent {
		return nil, nil
	}
	switch models.TransactionType(transactionType) {
	case models.TransactionTypeInitContract, models.TransactionTypeDeployModule:
		return prepare.RejectModuleTransaction{ModuleReference: r.ModuleReference}, nil
	case models.TransactionTypeUpdate:
		return prepare.RejectContractUpdateTransaction{ContractIndex: int64(r.ContractIndex), ContractSubIndex: int64(r.ContractSubIndex)}, nil
	default:
		return nil, nil
	}
}

func (p *Processor) prepareSpecialEvent(blockHeight int64, se nodeapi.SpecialEvent) (models.SpecialTransactionOutcome, []BlockPreparer, error) {
	raw, err := json.Marshal(se.Data)
	if err != nil {
		return models.SpecialTransactionOutcome{}, nil, fmt.Errorf("marshal special event %d: %w", se.Index, err)
	}
	row := models.SpecialTransactionOutcome{
		BlockHeight:       blockHeight,
		BlockOutcomeIndex: int64(se.Index),
		OutcomeType:       se.Kind,
		Outcome:           raw,
	}

	data, ok := se.Data.(nodeapi.SpecialEventData)
	if !ok {
		return row, nil, nil
	}

	var preparers []BlockPreparer
	if len(data.AccountRewards) > 0 {
		preparers = append(preparers, rewardPreparer{rewards: data.AccountRewards, blockHeight: blockHeight})
	}
	if data.Payday != nil {
		preparers = append(preparers, paydayFromSpecialEvent(blockHeight, data.Payday))
	}
	if data.SuspendedBakerID != nil {
		bakerID := int64(*data.SuspendedBakerID)
		if data.PrimedForSuspension {
			preparers = append(preparers, bakerSuspensionPreparer{prepare.PrimedForSuspensionAt(bakerID, blockHeight)})
		} else {
			preparers = append(preparers, bakerSuspensionPreparer{prepare.ValidatorSuspendedAt(bakerID, blockHeight)})
		}
	}
	return row, preparers, nil
}

func paydayFromSpecialEvent(blockHeight int64, pd *nodeapi.PaydaySpecialEvent) prepare.PaydayBlock {
	pb := prepare.PaydayBlock{BlockHeight: blockHeight}
	for _, b := range pd.BakerCommissionRates {
		pb.BakerCommissionRates = append(pb.BakerCommissionRates, prepare.BakerPaydayCommissionRate{
			BakerID:                int64(b.BakerID),
			TransactionCommission:  int64(b.Commission.TransactionCommission),
			BakingCommission:       int64(b.Commission.BakingCommission),
			FinalizationCommission: int64(b.Commission.FinalizationCommission),
		})
	}
	if pd.PassiveCommissionRates != nil {
		pb.PassiveCommissionRates = &prepare.PassiveDelegationPaydayCommissionRate{
			TransactionCommission:  int64(pd.PassiveCommissionRates.TransactionCommission),
			BakingCommission:       int64(pd.PassiveCommissionRates.BakingCommission),
			FinalizationCommission: int64(pd.PassiveCommissionRates.FinalizationCommission),
		}
	}
	for _, b := range pd.BakerPoolStakes {
		pb.BakerPoolStakes = append(pb.BakerPoolStakes, prepare.BakerPaydayPoolStake{
			BakerID:        int64(b.BakerID),
			BakerStake:     int64(b.BakerStake),
			DelegatedStake: int64(b.DelegatedStake),
			DelegatorCount: int64(b.DelegatorCount),
		})
	}
	if pd.PassivePoolStake != nil {
		pb.PassivePoolStake = &prepare.PassivePaydayPoolStake{
			DelegatedStake: int64(pd.PassivePoolStake.DelegatedStake),
			DelegatorCount: int64(pd.PassivePoolStake.DelegatorCount),
		}
	}
	return pb
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// rewardPreparer adapts a batch of protocol-level account reward payouts
// (no originating transaction) to BlockPreparer, routing each through
// balance.PreparedUpdateAccountBalance so the append-only statement ledger
// stays consistent with every other balance change.
type rewardPreparer struct {
	rewards     []nodeapi.AccountReward
	blockHeight int64
}

func (r rewardPreparer) Apply(ctx context.Context, tx pgx.Tx) error {
	for _, reward := range r.rewards {
		upd := balance.New(int64(reward.AccountIndex), reward.Amount, r.blockHeight, models.AccountStatementEntryType(reward.EntryType))
		if err := upd.Save(ctx, tx, nil); err != nil {
			return fmt.Errorf("apply reward for account %d: %w", reward.AccountIndex, err)
		}
	}
	return nil
}

// bakerSuspensionPreparer adapts BakerSuspensionChanged (an EventPreparer,
// since it can also occur inside an account transaction) to BlockPreparer
// for the special-transaction-outcome case, which has no transaction index.
type bakerSuspensionPreparer struct {
	event prepare.BakerSuspensionChanged
}

func (b bakerSuspensionPreparer) Apply(ctx context.Context, tx pgx.Tx) error {
	return b.event.Save(ctx, tx, 0, nil)
}
