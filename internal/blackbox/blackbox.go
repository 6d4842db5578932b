// Package blackbox decides which telemetry fields must be persisted for a
// sampled tick. The comparison baseline is always the last value that was
// actually logged, never the previous raw sample, so slow drift cannot evade
// the thresholds.
package blackbox

import (
	"time"

	"github.com/pianista215/mam-acars/internal/model"
)

// Policy holds the change-detection tuning constants. Deployments disagree on
// the exact numbers, so they are configuration rather than invariants; the
// defaults match the reports the server currently expects.
type Policy struct {
	// FullResyncInterval is the maximum time between full writes.
	FullResyncInterval time.Duration
	// LowAGLResyncInterval applies instead when airborne at or below
	// LowAGLCutoffFt (denser sampling near terrain).
	LowAGLResyncInterval time.Duration
	LowAGLCutoffFt       int

	// Threshold deltas, all strict (a delta equal to the threshold does
	// not trigger).
	AltitudeThresholdFt       int
	VerticalSpeedThresholdFPM int
	HeadingThresholdDeg       int
	IASThresholdKt            int
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		FullResyncInterval:        60 * time.Second,
		LowAGLResyncInterval:      10 * time.Second,
		LowAGLCutoffFt:            1000,
		AltitudeThresholdFt:       800,
		VerticalSpeedThresholdFPM: 400,
		HeadingThresholdDeg:       25,
		IASThresholdKt:            15,
	}
}

// Baseline is the engine's cursor: the last-logged value of every field plus
// the time of the last full write. The zero Baseline means no sample has been
// logged yet, which forces a full write on the first tick.
type Baseline struct {
	Last          model.TelemetrySnapshot
	LastFullWrite time.Time
	Valid         bool
}

// ComputeChanges diffs the current snapshot against the baseline and returns
// the change set to persist for this tick together with the advanced
// baseline. It is a pure function of its inputs: fields that are not emitted
// keep their previously logged value in the returned baseline.
func ComputeChanges(p Policy, b Baseline, cur model.TelemetrySnapshot) (model.ChangeSet, Baseline) {
	t := &tick{next: b}
	// The returned baseline must never alias the caller's engine slice.
	t.next.Last.EnginesRunning = append([]bool(nil), b.Last.EnginesRunning...)

	if b.Valid && cur.OnGround && !b.Last.OnGround {
		t.landingVS(cur.VerticalSpeedFPM)
	}

	if shouldLogFullState(p, b, cur) {
		t.position(cur)
		t.onGround(cur.OnGround)
		t.altitude(cur.Altitude)
		t.aglAltitude(cur.AGLAltitude)
		t.altimeter(cur.Altimeter)
		t.verticalSpeed(cur.VerticalSpeedFPM)
		t.heading(cur.Heading)
		t.groundSpeed(cur.GroundSpeedKnots)
		t.ias(cur.IASKnots)
		t.qnh(cur.QNHSet)
		t.flaps(cur.FlapsPercentage)
		t.gear(cur.GearUp)
		t.fuel(cur.FuelKg)
		t.squawk(cur.Squawk)
		t.apMaster(cur.APMaster)
		for i, on := range cur.EnginesRunning {
			t.engine(i, on)
		}

		t.next.LastFullWrite = cur.Timestamp
		t.next.Valid = true
		return t.cs, t.next
	}

	if abs(b.Last.Altitude-cur.Altitude) > p.AltitudeThresholdFt ||
		abs(b.Last.VerticalSpeedFPM-cur.VerticalSpeedFPM) > p.VerticalSpeedThresholdFPM {
		t.position(cur)
		t.altitude(cur.Altitude)
		t.aglAltitude(cur.AGLAltitude)
		t.altimeter(cur.Altimeter)
		t.verticalSpeed(cur.VerticalSpeedFPM)
	}

	if abs(b.Last.Heading-cur.Heading) > p.HeadingThresholdDeg {
		t.position(cur)
		t.heading(cur.Heading)
	}

	if abs(b.Last.IASKnots-cur.IASKnots) > p.IASThresholdKt {
		t.position(cur)
		t.groundSpeed(cur.GroundSpeedKnots)
		t.ias(cur.IASKnots)
	}

	if b.Last.QNHSet != cur.QNHSet {
		t.position(cur)
		t.altitude(cur.Altitude)
		t.aglAltitude(cur.AGLAltitude)
		t.altimeter(cur.Altimeter)
		t.qnh(cur.QNHSet)
	}

	if b.Last.FlapsPercentage != cur.FlapsPercentage {
		t.position(cur)
		t.flaps(cur.FlapsPercentage)
	}

	if b.Last.GearUp != cur.GearUp {
		t.position(cur)
		t.gear(cur.GearUp)
	}

	if b.Last.Squawk != cur.Squawk {
		t.squawk(cur.Squawk)
	}

	if b.Last.APMaster != cur.APMaster {
		t.apMaster(cur.APMaster)
	}

	for i, on := range cur.EnginesRunning {
		if i < len(b.Last.EnginesRunning) && b.Last.EnginesRunning[i] != on {
			t.engine(i, on)
		}
	}

	return t.cs, t.next
}

// shouldLogFullState decides whether this tick is a full write: the first
// sample ever, any ground transition, or a periodic re-sync.
func shouldLogFullState(p Policy, b Baseline, cur model.TelemetrySnapshot) bool {
	if !b.Valid {
		return true
	}
	if b.Last.OnGround != cur.OnGround {
		return true
	}
	since := cur.Timestamp.Sub(b.LastFullWrite)
	if since >= p.FullResyncInterval {
		return true
	}
	if !cur.OnGround && cur.AGLAltitude <= p.LowAGLCutoffFt && since >= p.LowAGLResyncInterval {
		return true
	}
	return false
}

// tick accumulates the emitted change set and mirrors every emitted field
// into the next baseline, so unemitted fields keep their last-logged value.
type tick struct {
	cs   model.ChangeSet
	next Baseline
}

func (t *tick) position(cur model.TelemetrySnapshot) {
	t.latitude(cur.Latitude)
	t.longitude(cur.Longitude)
}

func (t *tick) latitude(v float64) {
	t.next.Last.Latitude = v
	t.cs.Put(model.FieldLatitude, model.NumberValue(v))
}

func (t *tick) longitude(v float64) {
	t.next.Last.Longitude = v
	t.cs.Put(model.FieldLongitude, model.NumberValue(v))
}

func (t *tick) onGround(v bool) {
	t.next.Last.OnGround = v
	t.cs.Put(model.FieldOnGround, model.BoolValue(v))
}

func (t *tick) altitude(v int) {
	t.next.Last.Altitude = v
	t.cs.Put(model.FieldAltitude, model.IntValue(v))
}

func (t *tick) aglAltitude(v int) {
	t.next.Last.AGLAltitude = v
	t.cs.Put(model.FieldAGLAltitude, model.IntValue(v))
}

func (t *tick) altimeter(v int) {
	t.next.Last.Altimeter = v
	t.cs.Put(model.FieldAltimeter, model.IntValue(v))
}

func (t *tick) verticalSpeed(v int) {
	t.next.Last.VerticalSpeedFPM = v
	t.cs.Put(model.FieldVSFpm, model.IntValue(v))
}

func (t *tick) landingVS(v int) {
	t.cs.Put(model.FieldLandingVSFpm, model.IntValue(v))
}

func (t *tick) heading(v int) {
	t.next.Last.Heading = v
	t.cs.Put(model.FieldHeading, model.IntValue(v))
}

func (t *tick) groundSpeed(v int) {
	t.next.Last.GroundSpeedKnots = v
	t.cs.Put(model.FieldGSKnots, model.IntValue(v))
}

func (t *tick) ias(v int) {
	t.next.Last.IASKnots = v
	t.cs.Put(model.FieldIASKnots, model.IntValue(v))
}

func (t *tick) qnh(v int) {
	t.next.Last.QNHSet = v
	t.cs.Put(model.FieldQNHSet, model.IntValue(v))
}

func (t *tick) flaps(v int) {
	t.next.Last.FlapsPercentage = v
	t.cs.Put(model.FieldFlaps, model.IntValue(v))
}

func (t *tick) gear(up bool) {
	t.next.Last.GearUp = up
	state := "Down"
	if up {
		state = "Up"
	}
	t.cs.Put(model.FieldGear, model.TextValue(state))
}

func (t *tick) fuel(v float64) {
	t.next.Last.FuelKg = v
	t.cs.Put(model.FieldFuelKg, model.NumberValue(v))
}

func (t *tick) squawk(v int) {
	t.next.Last.Squawk = v
	t.cs.Put(model.FieldSquawk, model.IntValue(v))
}

func (t *tick) apMaster(on bool) {
	t.next.Last.APMaster = on
	state := "Off"
	if on {
		state = "On"
	}
	t.cs.Put(model.FieldAPMaster, model.TextValue(state))
}

func (t *tick) engine(i int, on bool) {
	for len(t.next.Last.EnginesRunning) <= i {
		t.next.Last.EnginesRunning = append(t.next.Last.EnginesRunning, false)
	}
	t.next.Last.EnginesRunning[i] = on
	state := "Off"
	if on {
		state = "On"
	}
	t.cs.Put(model.FieldEngine(i), model.TextValue(state))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
