// Package models holds the row-level Go types backing every entity in
// spec.md §3. These are plain data carriers; no third-party library models
// this better than hand-written structs (see DESIGN.md).
package models

import "time"

// Block is the projection of a finalized block (spec.md §3 "Block").
type Block struct {
	Height                        int64
	Hash                          string
	SlotTime                      time.Time
	BlockTimeMs                   int64
	FinalizationTimeMs            *int64
	FinalizedByHeight             *int64
	BakerID                       *int64
	TotalAmount                   int64
	TotalStaked                   int64
	CumulativeNumTxs              int64
	CumulativeFinalizationTimeMs  *int64
}

// TransactionKind enumerates the dense tx_type column of the Transaction
// entity.
type TransactionKind string

const (
	TxKindAccount             TransactionKind = "Account"
	TxKindCredentialDeployment TransactionKind = "CredentialDeployment"
	TxKindUpdate              TransactionKind = "Update"
	TxKindTokenUpdate         TransactionKind = "TokenUpdate"
)

// Transaction is the projection of a single block item (spec.md §3
// "Transaction"). Exactly one of Events/Reject is populated.
type Transaction struct {
	Index        int64
	BlockHeight  int64
	Hash         string
	CcdCost      int64
	EnergyCost   int64
	SenderIndex  *int64
	Kind         TransactionKind
	SubType      string
	Success      bool
	Events       []byte // raw JSON
	Reject       []byte // raw JSON
}

// SpecialTransactionOutcome is a block-level event not tied to a user
// transaction (rewards, suspension, priming) — spec.md §3.
type SpecialTransactionOutcome struct {
	BlockHeight      int64
	BlockOutcomeIndex int64
	OutcomeType      string
	Outcome          []byte // raw JSON
}

// MigrationRecord backs the `migrations` bookkeeping table (spec.md §6).
type MigrationRecord struct {
	Version     int64
	Description string
	Destructive bool
	StartTime   time.Time
	EndTime     *time.Time
}
