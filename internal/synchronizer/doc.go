// Package synchronizer keeps one in-memory profile consistent with the active
// identity and its backing store.
//
// A guest identity is backed by the local snapshot store: the snapshot is
// decoded on sign-in, or a default profile is derived and written when it is
// missing or unreadable. An account identity is backed by a remote record
// with a live feed: a missing record is created with defaults, a missing
// avatar is picked deterministically and backfilled, and every push replaces
// the held profile.
//
// All state changes happen on a single loop (Run) that applies queued events
// one at a time. Collaborator callbacks only enqueue. Results of background
// writes are enqueued as events tagged with the identity and feed generation
// they were issued for, and are dropped when either is no longer current.
package synchronizer
