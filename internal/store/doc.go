// Package store is the generation ledger: a durable record of every
// translation run and the artifacts it produced.
//
// The ledger holds three tables:
//   - runs: one row per pipeline run, keyed by a UUIDv7 and ordered by
//     a logical seq
//   - generations: one row per (run, model, variant), successful or not
//   - export_tags: the first (model, variant) to claim each
//     serialization key
//
// Writes are idempotent (ON CONFLICT DO NOTHING). Before a run is
// recorded its generations are checked against the history: a
// (model, variant) whose export tag moved, a tag claimed by a different
// class, and output that changed although neither the model nor the
// translator did are all reported as StabilityIssues.
//
// # Backends
//
// SQLite (github.com/mattn/go-sqlite3) is the default:
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Postgres is reached through the pgx database/sql driver when the DSN
// is a postgres:// URL. Both share one schema and one set of queries;
// placeholders are rebound for Postgres.
package store
