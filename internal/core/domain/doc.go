// Package domain defines the core entities of the SharePoint index reconciler.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - IndexDocument / IndexedChunk: rows read from the search index
//   - FileKey: one distinct SharePoint file referenced by one or more chunks
//   - Existence: the tri-state result of checking a file against Graph
//   - PurgeOutcome / PreviewOutcome: aggregate results of a reconciliation run
//   - FileMetadata / ChangeSet / SyncRecord: change tracking state
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
