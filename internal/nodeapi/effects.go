package nodeapi

// This file defines the concrete shape of the Effects/Data fields left as
// `any` on BlockItemSummary and SpecialEvent. The node's wire format
// represents a transaction's effects as a Rust enum with dozens of
// variants; the idiomatic Go rendering is a struct with one optional field
// per variant rather than a sealed interface hierarchy, since callers need
// to inspect, not dispatch polymorphically over, the populated variant.
// Exactly one field (or, for events, one populated slice) is set per value;
// a generated client wired into invoke()/invokeStream() is responsible for
// populating these from the node's protobuf response.

// AccountTransactionEffects is the Effects value for an account
// transaction's BlockItemSummary.
type AccountTransactionEffects struct {
	TransactionType string // e.g. "Transfer", "InitContract", "Update", "DeployModule"

	Rejected *RejectedTransaction

	Transferred             *TransferEffect
	TransferredWithSchedule *TransferWithScheduleEffect
	ShieldingBalanceChange  *ShieldingBalanceEffect

	BakerEvents      []BakerEffect
	DelegationEvents []DelegationEffect

	ModuleDeployed      *ModuleDeployedEffect
	ContractInitialized *ContractInitializedEffect
	ContractUpdated     []ContractUpdatedEffect
	ContractUpgraded    *ContractUpgradedEffect
}

// RejectedTransaction carries just enough of a failed transaction's payload
// to classify it against prepare.ClassifyRejectReason's allow-list.
type RejectedTransaction struct {
	Reason           string
	ModuleReference  string // set for InitContract/DeployModule rejections
	ContractIndex    uint64 // set for Update rejections
	ContractSubIndex uint64
}

type TransferEffect struct {
	FromAccountIndex uint64
	ToAccountIndex   uint64
	Amount           uint64
}

type ScheduledRelease struct {
	ReleaseTimeUnixMillis int64
	Amount                uint64
}

type TransferWithScheduleEffect struct {
	FromAccountIndex uint64
	ToAccountIndex   uint64
	Releases         []ScheduledRelease
}

// ShieldingBalanceEffect covers both AmountAddedByDecryption (Change > 0)
// and EncryptedAmountsRemoved (Change < 0).
type ShieldingBalanceEffect struct {
	AccountIndex uint64
	Change       int64
}

// BakerEffect is one baker-pool-management event nested in an account
// transaction, grounded on
// original_source/backend/src/indexer/block/block_item/account_transaction/baker_events.rs.
type BakerEffect struct {
	Kind            string // Added, Removed, StakeChanged, RestakeEarnings, OpenStatus, MetadataURL, Commission, Suspension
	BakerID         uint64
	Staked          uint64
	RestakeEarnings bool
	OpenStatus      string
	MetadataURL     string
	CommissionKind  string // Transaction, Baking, Finalization
	CommissionRate  int64
	SelfSuspended   *uint64
}

// DelegationEffect is one delegation-management event nested in an account
// transaction.
type DelegationEffect struct {
	Kind            string // Added, Removed, StakeChanged, RestakeEarnings, SetTarget, RemoveBaker
	AccountIndex    uint64
	Staked          uint64
	RestakeEarnings bool
	TargetBakerID   *uint64 // nil means passive pool, for SetTarget
	RemovedBakerID  uint64  // for RemoveBaker
}

type ModuleDeployedEffect struct {
	ModuleReference string
}

type ContractInitializedEffect struct {
	ContractIndex    uint64
	ContractSubIndex uint64
	ModuleReference  string
	ContractName     string
	Amount           uint64
	Logs             [][]byte
}

type ContractUpdatedEffect struct {
	ContractIndex    uint64
	ContractSubIndex uint64
	AmountDelta      int64
	Logs             [][]byte
}

type ContractUpgradedEffect struct {
	ContractIndex    uint64
	ContractSubIndex uint64
	FromModuleRef    string
	ToModuleRef      string
}

// ChainUpdateEffects is the Effects value for a chain-update BlockItemSummary.
type ChainUpdateEffects struct {
	UpdateType  string
	PayloadJSON []byte
}

// SpecialEventData is the Data value for a SpecialEvent, keyed by
// SpecialEvent.Kind.
type SpecialEventData struct {
	// BlockReward / BakingReward / FinalizationReward / foundation minting.
	AccountRewards []AccountReward

	// PaydayBlock carries everything computed once at a payday block.
	Payday *PaydaySpecialEvent

	// ValidatorPrimedForSuspension / ValidatorSuspended.
	SuspendedBakerID    *uint64
	PrimedForSuspension bool
}

type AccountReward struct {
	AccountIndex uint64
	Amount       int64
	EntryType    string // TransactionFeeReward, BakerReward, FoundationReward, FinalizationReward
}

// PaydaySpecialEvent mirrors prepare.PaydayBlock's inputs, gathered during
// preprocessing via the extra get_bakers_reward_period /
// get_passive_delegators_reward_period / get_pool_delegators_reward_period
// calls the original issues only at payday blocks.
type PaydaySpecialEvent struct {
	BakerCommissionRates   []BakerRewardPeriodInfo
	PassiveCommissionRates *BakerPoolInfo
	BakerPoolStakes        []PaydayPoolStake
	PassivePoolStake       *PaydayPoolStake
}

// PaydayPoolStake is a pool's stake composition aggregated from the
// get_bakers_reward_period effective stake plus a full drain of either
// get_pool_delegators_reward_period (per-baker pool) or
// get_passive_delegators_reward_period (passive pool).
type PaydayPoolStake struct {
	BakerID        uint64 // zero for the passive pool
	BakerStake     uint64
	DelegatedStake uint64
	DelegatorCount uint64
}
