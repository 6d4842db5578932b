package model

import (
	"strconv"
	"time"
)

// TelemetrySnapshot is an immutable record of aircraft state at one sampler
// tick, already decoded to physical units by the simulator interop layer.
// Latitude and longitude carry 5-decimal precision; heading is magnetic,
// normalized into [0, 360).
type TelemetrySnapshot struct {
	Latitude  float64
	Longitude float64
	OnGround  bool

	Altitude         int // feet MSL
	AGLAltitude      int // feet above ground level
	Altimeter        int
	VerticalSpeedFPM int

	Heading          int
	GroundSpeedKnots int
	IASKnots         int

	QNHSet          int
	FlapsPercentage int
	GearUp          bool
	FuelKg          float64
	Squawk          int
	APMaster        bool

	// EnginesRunning has one flag per engine. Its length is fixed for the
	// whole flight, sized once at recording start from the aircraft's
	// engine count.
	EnginesRunning []bool

	Timestamp time.Time
}

// Field names are the stable wire identifiers used in change rows and in the
// exported document. They must not change between releases or the server
// cannot interpret historical reports.
const (
	FieldLatitude     = "Latitude"
	FieldLongitude    = "Longitude"
	FieldOnGround     = "onGround"
	FieldAltitude     = "Altitude"
	FieldAGLAltitude  = "AGLAltitude"
	FieldAltimeter    = "Altimeter"
	FieldVSFpm        = "VSFpm"
	FieldLandingVSFpm = "LandingVSFpm"
	FieldHeading      = "Heading"
	FieldGSKnots      = "GSKnots"
	FieldIASKnots     = "IASKnots"
	FieldQNHSet       = "QNHSet"
	FieldFlaps        = "Flaps"
	FieldGear         = "Gear"
	FieldFuelKg       = "FuelKg"
	FieldSquawk       = "Squawk"
	FieldAPMaster     = "AP"
)

// FieldEngine returns the wire name of the running flag for engine at index
// i (zero-based): "Engine 1", "Engine 2", ...
func FieldEngine(i int) string {
	return "Engine " + strconv.Itoa(i+1)
}
