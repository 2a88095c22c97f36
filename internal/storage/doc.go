// Package storage persists everything that must survive a restart:
//
//   - The content catalog (seeded from the YAML file, insert-only)
//   - The delivery ledger (one row per delivered item until reset)
//   - The user's schedule preferences (single row, source of truth)
//   - Pending scheduled work units (re-armed on startup)
package storage
