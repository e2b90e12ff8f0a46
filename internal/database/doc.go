// Package database provides SQLite-based storage for audit history.
//
// Every completed run can be persisted: one row in the runs table plus
// one row per record. This is what powers the history listing and the
// run-to-run diff.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
