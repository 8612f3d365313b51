// Package schema tracks the database schema version and drives migrations
// between them, mirroring original_source/backend-rust/src/migrations.rs:
// a totally ordered enum of versions, each either a plain DDL script or a
// Go-driven data migration, with a migrations table recording when each
// version was reached and whether it was destructive.
package schema

import "fmt"

// Version identifies a point in the schema's migration history. Values are
// stored verbatim in the migrations table, so the ordering below must never
// be renumbered — only appended to.
type Version int64

const (
	Empty Version = iota
	InitialSchema
	BlocksCumulativeFinTimeIndex
	PaydayPoolCommissionRates
	BakerMetrics
	TrackRemovedBakers
	PaydayPoolRewardsPartial
	PaydayPoolRewards
	PassiveDelegation
	RewardMetrics
	PaydayPoolStakePartial
	PaydayPoolStake
	ChainUpdateEvents
	SuspendedValidators
	TokenPLT
	GenesisValidatorInfo
	LatestVersion = GenesisValidatorInfo
)

// APISupportedVersion is the oldest schema version this build can run
// against without a migration: any destructive version introduced since
// this one makes the database incompatible (spec.md §4.1).
const APISupportedVersion = LatestVersion

var descriptions = map[Version]string{
	Empty:                        "Empty database with no tables yet.",
	InitialSchema:                "Initial schema: blocks, transactions, accounts, contracts, tokens, bakers.",
	BlocksCumulativeFinTimeIndex: "Index over blocks without cumulative finalization time.",
	PaydayPoolCommissionRates:    "Track commission rates at payday pool snapshots.",
	BakerMetrics:                 "Add metrics_bakers table.",
	TrackRemovedBakers:           "Add bakers_removed table.",
	PaydayPoolRewardsPartial:     "Add tracking of payday pool rewards (partial).",
	PaydayPoolRewards:            "Finish backfilling payday pool rewards.",
	PassiveDelegation:            "Passive delegation tables.",
	RewardMetrics:                "Add metrics_rewards table.",
	PaydayPoolStakePartial:       "Add tracking of payday pool stake (partial).",
	PaydayPoolStake:              "Finish backfilling payday pool stake.",
	ChainUpdateEvents:            "Track chain update transactions.",
	SuspendedValidators:          "Track validator suspension state.",
	TokenPLT:                     "Protocol-level token (PLT) tables.",
	GenesisValidatorInfo:         "Update genesis validator pool information.",
}

// destructive marks versions that remove or narrow previously available
// information. Mirrors the Rust enum's exhaustive match so a new version
// forces an explicit decision here.
var destructive = map[Version]bool{
	Empty:                        false,
	InitialSchema:                false,
	BlocksCumulativeFinTimeIndex: false,
	PaydayPoolCommissionRates:    false,
	BakerMetrics:                 false,
	TrackRemovedBakers:           false,
	PaydayPoolRewardsPartial:     false,
	PaydayPoolRewards:            false,
	PassiveDelegation:            false,
	RewardMetrics:                false,
	PaydayPoolStakePartial:       false,
	PaydayPoolStake:              false,
	ChainUpdateEvents:            false,
	SuspendedValidators:          false,
	TokenPLT:                     false,
	GenesisValidatorInfo:         false,
}

// partial marks versions reached by a resumable migration that may commit
// before all outstanding work is done (spec.md §9 bounded wall-clock slices).
var partial = map[Version]bool{
	PaydayPoolRewardsPartial: true,
	PaydayPoolStakePartial:   true,
}

func (v Version) String() string {
	return fmt.Sprintf("%04d:%s", int64(v), descriptions[v])
}

// FromInt64 validates an integer read from the migrations table.
func FromInt64(n int64) (Version, error) {
	v := Version(n)
	if _, ok := descriptions[v]; !ok {
		return 0, fmt.Errorf("unknown database schema version %d", n)
	}
	return v, nil
}

func (v Version) IsDestructive() bool { return destructive[v] }
func (v Version) IsPartial() bool     { return partial[v] }
