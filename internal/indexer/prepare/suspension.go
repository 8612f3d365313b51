package prepare

// Helpers for building BakerSuspensionChanged events from the two special
// transaction outcomes that changed a validator's suspension state before
// protocol version 8's quorum-signatory sweep (ClearSuspensionPriming, in
// baker.go) had a chance to run. Grounded on
// original_source/backend-rust/src/indexer/block/special_transaction_outcomes/validator_suspension.rs.

// PrimedForSuspensionAt marks a validator at risk of suspension for missing
// its turn; the priming is cleared again the moment it next signs a quorum
// certificate (ClearSuspensionPriming).
func PrimedForSuspensionAt(bakerID, blockHeight int64) BakerSuspensionChanged {
	t := true
	return BakerSuspensionChanged{BakerID: bakerID, PrimedForSuspension: &t}
}

// ValidatorSuspendedAt marks a validator suspended for inactivity,
// clearing any prior self-suspension and priming state in the same update.
func ValidatorSuspendedAt(bakerID, blockHeight int64) BakerSuspensionChanged {
	t := true
	f := false
	return BakerSuspensionChanged{BakerID: bakerID, InactiveSuspended: &t, PrimedForSuspension: &f}
}
