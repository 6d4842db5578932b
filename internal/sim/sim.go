// Package sim is the simulator-interop boundary: the snapshot source
// abstraction, the fixed-period sampling loop that feeds the recorder, and
// the pre-flight proximity monitor.
package sim

import (
	"github.com/pianista215/mam-acars/internal/model"
)

// SnapshotSource is implemented by the simulator bridge. All methods may be
// called from the sampler and monitor goroutines.
type SnapshotSource interface {
	// Connect opens (or re-validates) the simulator connection. Idempotent;
	// an error means the simulator is not reachable right now.
	Connect() error

	// Snapshot reads the current telemetry state.
	Snapshot() (model.TelemetrySnapshot, error)

	// EngineCount reports the engine count of the loaded aircraft.
	EngineCount() (int, error)

	// AircraftName describes the loaded aircraft (type and registration).
	AircraftName() (string, error)
}
