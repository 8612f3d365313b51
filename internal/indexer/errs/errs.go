// Package errs collects the sentinel and typed errors that make up the
// indexer's error taxonomy (spec.md §7): transient RPC errors, RPC
// semantic mismatches, preprocessing parse errors, affected-row
// mismatches, DB connectivity errors, schema-incompatibility errors, and
// lock contention. Callers wrap these with fmt.Errorf("...: %w", err) so
// errors.Is/errors.As keep working up the call stack; nothing here is a
// catch-all "internal error" string.
package errs

import (
	"errors"
	"fmt"
)

// ErrTransientRPC marks a node RPC failure the pipeline driver should
// retry (with backoff) rather than treat as fatal: connection refused,
// deadline exceeded, or a 5xx-equivalent gRPC status.
var ErrTransientRPC = errors.New("transient node RPC error")

// ErrRPCSemanticMismatch marks a node response that is well-formed but
// violates an invariant the indexer depends on (a baker account with no
// staking information, a reward-period stream with no entries for a known
// pool). These are never retried: the same node will return the same
// answer.
var ErrRPCSemanticMismatch = errors.New("node RPC response violated an expected invariant")

// ErrPreprocessingParse marks a failure decoding a block item's payload
// during the preprocess stage (malformed transaction effects, an unknown
// update-transaction variant).
var ErrPreprocessingParse = errors.New("failed to parse preprocessed block data")

// ErrAffectedRowMismatch is returned by an event preparer's Save method
// when a write affected a different number of rows than it declared it
// would — the primary invariant guard for every preparer (spec.md §4.5).
var ErrAffectedRowMismatch = errors.New("affected row count did not match expectation")

// ErrDBConnectivity marks a database connection failure distinct from a
// constraint violation or row-count mismatch.
var ErrDBConnectivity = errors.New("database connectivity error")

// ErrSchemaIncompatible marks a schema version mismatch detected at
// startup. internal/schema reports such mismatches with its own
// ErrIncompatibleOlder/ErrIncompatibleNewer types, which do not wrap this
// sentinel, so errors.Is(err, ErrSchemaIncompatible) is false for them.
var ErrSchemaIncompatible = errors.New("database schema is incompatible with this build")

// ErrLockContention marks failure to acquire the cross-process advisory
// lock within the configured timeout.
var ErrLockContention = errors.New("could not acquire indexer advisory lock")

// ErrUnhandledRejectReason marks a rejected InitContract/DeployModule/Update
// transaction whose reject reason falls outside the known allow-list
// (prepare.ClassifyRejectReason): rather than silently indexing nothing or
// guessing, the indexer treats this as a node-compatibility bug and fails
// the block.
var ErrUnhandledRejectReason = errors.New("unhandled reject reason")

// AffectedRows builds an ErrAffectedRowMismatch-wrapping error naming the
// operation, the row count observed, and the count expected.
func AffectedRows(operation string, got, want int64) error {
	return fmt.Errorf("%s: %w (affected %d rows, expected %d)", operation, ErrAffectedRowMismatch, got, want)
}

// UnhandledRejectReason builds an ErrUnhandledRejectReason-wrapping error
// naming the transaction type and reject reason that had no allow-list entry.
func UnhandledRejectReason(transactionType, reason string) error {
	return fmt.Errorf("transaction type %q, reject reason %q: %w", transactionType, reason, ErrUnhandledRejectReason)
}
