// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
//   - PurgeService: finds index chunks whose SharePoint file is gone and deletes them
//   - ChangeTracker: diffs the library against stored metadata and purges deletions
//   - Scheduler: runs both on their configured intervals
//
// Services never import adapters. Tracing goes through the OpenTelemetry API;
// without a configured provider the spans are no-ops.
package services
