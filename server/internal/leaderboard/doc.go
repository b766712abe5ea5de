// Package leaderboard keeps, per betting offer, the bounded list of the
// highest stakes placed, one entry per customer.
//
// Each offer owns a Board guarded by its own lock, so submissions to
// different offers never contend. A Store maps offer IDs to Boards and creates
// them lazily on first submission.
//
// A submission replaces the customer's previous entry (it does not keep the
// maximum), keeps the board in descending stake order, and drops everything
// past the capacity (DefaultCapacity = 20). Entries with equal stakes keep
// arrival order; callers must not rely on it.
package leaderboard
