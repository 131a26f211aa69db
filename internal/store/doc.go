// Package store persists bridge annotations in SQLite.
//
// A session is one run of a bridge. Each session owns an append-only
// annotation log ordered by seq, a per-session logical counter; wall-clock
// time is recorded only for the session itself. The last observation of
// every instance is kept in last_observations, overwritten in place.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
