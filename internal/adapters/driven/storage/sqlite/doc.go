// Package sqlite provides the SQLite-backed driven stores.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. One database holds:
//
//   - FileMetadataStore: tracked SharePoint files and sync history
//   - SchedulerStore: scheduled task state and run results
//
// # Schema
//
// The schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sppurge/data/sppurge.db
package sqlite
