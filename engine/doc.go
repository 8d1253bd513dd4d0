// Package engine implements the batched-operation execution engine for a
// single smart account.
//
// The engine orchestrates validation, nonce consumption, signature
// verification, and atomic in-order sub-operation execution. Two paths
// authorize a batch: the account acting on itself directly, or a detached
// signature from the account's single controlling key submitted by an
// untrusted relayer. A third, relaxed path previews a batch best-effort
// without committing state.
//
// Every call runs as one unit of work over a snapshot/revert Ledger and the
// nonce registry: abort at any gate rolls back everything, including nonce
// advancement, so partial commits are impossible.
package engine
