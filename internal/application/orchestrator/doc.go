// Package orchestrator implements the core orchestration logic for pipeline runs.
//
// The orchestrator manager coordinates a run by:
//   - Validating the units and their dependency map
//   - Partitioning units into layers (every unit depends only on earlier layers)
//   - Wrapping each unit with its retry policy
//   - Executing layers in order, fanning out the units of a layer concurrently
//   - Publishing events and saving snapshots while the run progresses
//
// A run stops launching layers after the first layer with a terminal unit
// failure; the returned state still carries every output and error produced
// up to that point.
package orchestrator
