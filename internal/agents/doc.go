// Package agents provides the stages of the video essay pipeline as
// orchestrator units.
//
// Each agent reads what it needs from the run state (caller inputs and the
// outputs of its prerequisites) and returns its own output; the orchestrator
// stores it under the agent's unit name. Generation logic is placeholder
// only: agents produce deterministic stub artifacts so the whole pipeline can
// run end to end.
//
// A Registry maps agent kinds to constructors. Pipeline definitions refer to
// agents by kind, and DefaultPipeline assembles the standard research to
// quality-control chain.
package agents
