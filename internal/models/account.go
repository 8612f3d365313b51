package models

import "time"

// Account is the projection of an account (spec.md §3 "Account"). The index
// is assigned at first sight of the account on chain. Balance mutations
// (see internal/indexer/balance) are keyed by the account index;
// canonical_address is stored but is not used as a key for them.
type Account struct {
	Index                          int64
	Address                        string
	CanonicalAddress               []byte
	Amount                         int64
	NumTxs                         int64
	DelegatedStake                 int64
	DelegatedRestakeEarnings       *bool
	DelegatedTargetBakerID         *int64
}

// AccountStatementEntryType enumerates the append-only ledger's entry_type
// column (spec.md §3 "AccountStatement").
type AccountStatementEntryType string

const (
	EntryTransactionFee     AccountStatementEntryType = "TransactionFee"
	EntryBakerReward        AccountStatementEntryType = "BakerReward"
	EntryFoundationReward   AccountStatementEntryType = "FoundationReward"
	EntryFinalizationReward AccountStatementEntryType = "FinalizationReward"
	EntryTransactionFeeReward AccountStatementEntryType = "TransactionFeeReward"
	EntryAmountEncrypted    AccountStatementEntryType = "AmountEncrypted"
	EntryAmountDecrypted    AccountStatementEntryType = "AmountDecrypted"
	EntryTransferIn         AccountStatementEntryType = "TransferIn"
	EntryTransferOut        AccountStatementEntryType = "TransferOut"
	EntryAmountLocked       AccountStatementEntryType = "AmountLocked"
	EntryAmountUnlocked     AccountStatementEntryType = "AmountUnlocked"
)

// AccountStatement is one append-only ledger row (spec.md §3
// "AccountStatement"). AccountBalance is the snapshot of the balance AFTER
// applying Amount.
type AccountStatement struct {
	AccountIndex     int64
	EntryType        AccountStatementEntryType
	Amount           int64
	BlockHeight      int64
	TransactionID    *int64
	AccountBalance   int64
}

// ScheduledRelease backs the scheduled_releases table used by scheduled
// transfers (spec.md §4.4); expired rows are purged by the block processor
// after each batch (spec.md §4.6 step 5).
type ScheduledRelease struct {
	AccountIndex  int64
	TransactionID int64
	ReleaseTime   time.Time
	Amount        int64
}
