// Package storage persists job configuration and run history.
//
// Drivers:
//   - "file": JSON snapshot of job configs plus a JSON Lines run log
//   - "sqlite": single SQLite database (modernc.org/sqlite, pure Go)
package storage
