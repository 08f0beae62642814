// Package txn serializes mutating transactions against the whole system and
// undoes partially applied ones.
//
// A transaction carries an explicit undo journal (Tx) through the apply call
// chain. Each field touched during the transaction registers exactly one undo
// action, the first time it is written, restoring the value it had when the
// transaction began. Rollback replays the journal in first-touch order; since
// every entry restores a pre-transaction value, ordering between different
// fields does not affect the result.
//
// A failing undo leaves the in-memory state diverged from the durable log.
// That is reported as an *InconsistencyError, never as an ordinary failure,
// and the Manager refuses every later transaction.
package txn
