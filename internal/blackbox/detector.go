package blackbox

import "github.com/pianista215/mam-acars/internal/model"

// Detector is the stateful wrapper around ComputeChanges used by the sampler
// loop: it owns the baseline for the currently recorded flight.
type Detector struct {
	policy   Policy
	baseline Baseline
}

// NewDetector creates a detector with a fresh (empty) baseline, so the next
// sample is treated as the first of the flight.
func NewDetector(policy Policy) *Detector {
	return &Detector{policy: policy}
}

// Compute diffs the snapshot against the baseline and advances it.
func (d *Detector) Compute(cur model.TelemetrySnapshot) model.ChangeSet {
	cs, next := ComputeChanges(d.policy, d.baseline, cur)
	d.baseline = next
	return cs
}

// Reset discards the baseline. Called when a new flight starts recording.
func (d *Detector) Reset() {
	d.baseline = Baseline{}
}
