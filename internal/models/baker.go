package models

// BakerPoolOpenStatus mirrors the pool_open_status Postgres enum.
type BakerPoolOpenStatus string

const (
	OpenStatusOpenForAll        BakerPoolOpenStatus = "OpenForAll"
	OpenStatusClosedForNew      BakerPoolOpenStatus = "ClosedForNew"
	OpenStatusClosedForAll      BakerPoolOpenStatus = "ClosedForAll"
)

// Baker is the projection of a validator/baker (spec.md §3 "Baker").
// A row exists iff the validator is currently active (invariant §3(5));
// removal tombstones into BakerRemoved instead.
type Baker struct {
	ID                         int64 // == account index
	Staked                     int64
	RestakeEarnings            bool
	PoolTotalStaked            int64
	PoolDelegatorCount         int64
	OpenStatus                 *BakerPoolOpenStatus
	MetadataURL                *string
	TransactionCommission      *int64
	BakingCommission           *int64
	FinalizationCommission     *int64
	// SelfSuspended carries the transaction index of the BakerSuspended
	// event that suspended this validator, or nil if not self-suspended.
	SelfSuspended      *int64
	InactiveSuspended  bool
	PrimedForSuspension bool
}

// BakerRemoved tombstones a removed baker (spec.md §3 "BakerRemoved"). A
// baker may be re-added later; re-adding deletes this row.
type BakerRemoved struct {
	ID              int64
	RemovedByTxIndex int64
}
