// Package ledger implements the pay-to-vote round ledger.
//
// # Rounds
//
// The owner opens a round with a fixed roster of candidates. Anyone may cast
// one vote per round by attaching exactly the configured fee. Once the lock
// duration has elapsed anyone may close the round: the candidates with the
// highest tally share the prize, and a tenth of the pot accrues to the owner
// as commission until it is withdrawn.
//
// # Value transfers
//
// Money moves through a Settler. Every operation hands its transfers to the
// Settler as one batch while it still holds the write lock; a rejected batch
// aborts the operation and leaves the ledger untouched. A Settler that calls
// back into the ledger with the context it was given receives
// ErrReentrantCall instead of deadlocking.
//
// # Balance invariant
//
// At any time the contract balance equals the pots of all open rounds plus the
// commission owed. Division remainders from uneven prize splits are folded
// into the commission so the invariant holds exactly.
package ledger
