// Package storage holds run snapshot stores.
//
// Implementations:
//   - memory: process-local map of the latest snapshot per run
package storage
