// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package runs

import "fmt"

// =============================================================================
// RUN STATE
// =============================================================================

// State is the lifecycle state of a run as tracked in the status database.
type State string

const (
	// StateSequencing: the instrument is still writing data
	StateSequencing State = "sequencing"

	// StateTransferring: an rsync to destination storage is in flight
	StateTransferring State = "transferring"

	// StateTransferred: data fully at destination, sync marker written
	StateTransferred State = "transferred"

	// StateProcessing: downstream processing (demultiplexing) started
	StateProcessing State = "processing"

	// StateArchived: local copy moved to the archive directory
	StateArchived State = "archived"

	// StateFailed: a transfer or processing step failed and needs attention
	StateFailed State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateSequencing, StateTransferring, StateTransferred,
		StateProcessing, StateArchived, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateArchived
}

// CanTransition validates a state change. Runs only ever move forward
// through the lifecycle; failed is reachable from every active state,
// and a failed run may be retried back into transferring.
func CanTransition(from, to State) bool {
	if from == to {
		// Idempotent updates are fine.
		return true
	}
	switch from {
	case StateSequencing:
		return to == StateTransferring || to == StateFailed
	case StateTransferring:
		return to == StateTransferred || to == StateFailed
	case StateTransferred:
		return to == StateProcessing || to == StateArchived || to == StateFailed
	case StateProcessing:
		return to == StateArchived || to == StateFailed
	case StateFailed:
		return to == StateTransferring
	case StateArchived:
		return false
	default:
		return false
	}
}

// Transition returns an error when the change from -> to is not allowed.
func Transition(from, to State) error {
	if !to.Valid() {
		return fmt.Errorf("unknown run state %q", to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid state transition from %s to %s", from, to)
	}
	return nil
}
