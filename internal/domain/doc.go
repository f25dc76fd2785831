// Package domain defines the core types shared by the pipeline orchestrator.
//
// The main pieces are:
//   - Unit: the contract every pipeline step (agent) satisfies
//   - RunState: the shared, mutable record threaded through one run
//   - Snapshot: an immutable copy of a RunState for reporting
//   - Event: lifecycle notifications published while a run executes
//
// The error taxonomy (configuration, cycle, unit execution, aborted run) also
// lives here so adapters and the CLI can classify failures with errors.Is.
package domain
