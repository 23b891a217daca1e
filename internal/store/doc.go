// Package store provides SQLite-backed storage for the local backend.
//
// The store keeps JSON documents grouped by index, plus optional declared
// column types per index:
//   - documents: one row per (index, id), source kept as JSON text
//   - columns: SQL type of a column of an index
//
// # Ordering
//
// Every document gets a monotonically increasing seq on first insert.
// Replacing a document keeps its seq, so index order is stable across
// updates. Queries that page over documents must order by seq as the final
// tiebreaker.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
