// Package journal provides SQLite-backed storage for repair decisions.
//
// Every run gets a row in runs, keyed by a UUIDv7 run ID. Every accepted or
// declined field repair gets a row in decisions, carrying the record
// identity, the dotted field path, the SHA-256 of the original raw bytes and
// both renderings of the text.
//
// The raw bytes themselves are not stored: they are invalid UTF-8 and the
// hash is enough to recognise the same corruption on a later run.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All listings are ordered by seq, the insertion counter.
package journal
