// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - GraphClient: Microsoft Graph site, drive and item lookups
//   - SearchIndex: Search index queries and batched deletes (Azure AI Search)
//   - FileMetadataStore: Tracked file metadata and sync history (SQLite)
//   - SchedulerStore: Scheduled task state and run history (SQLite)
//   - ConfigStore: Application configuration (TOML)
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - FileIndexer: Indexes new and modified files during a change sync.
//     Without it, those files are recorded as pending.
//   - Metrics: Run and Graph request instrumentation. Without it nothing is recorded.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
