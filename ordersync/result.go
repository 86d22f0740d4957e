package ordersync

import (
	"errors"
	"fmt"
)

// errNotReady marks a propagation attempt skipped because its prerequisite
// is unmet (e.g. the owning customer has no remote id yet). Not a failure:
// the record stays local-only and becomes eligible on a later sweep.
var errNotReady = errors.New("dependency not ready")

// PropagationError is a failed attempt to create a record's counterpart in
// the ERP or to push it to the mirror. Save paths record these and discard
// them; they are never surfaced to the caller of a Save, only counted by
// explicit retry sweeps.
type PropagationError struct {
	Entity  string // "customer", "contact", "address", "order", "lead", "item"
	LocalID string
	Err     error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagation failed for %s %s: %v", e.Entity, e.LocalID, e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }

func propagationErr(entity, localID string, err error) error {
	return &PropagationError{Entity: entity, LocalID: localID, Err: err}
}

// SweepResult is the aggregate outcome of a retry sweep.
type SweepResult struct {
	Synced int
	Failed int
}

// Add folds another sweep's counts in.
func (r *SweepResult) Add(other SweepResult) {
	r.Synced += other.Synced
	r.Failed += other.Failed
}
