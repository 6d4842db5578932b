package sim

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pianista215/mam-acars/internal/geo"
)

// MonitorCallbacks receive edge-triggered status updates from the monitor.
// Both are optional and are invoked from the monitor goroutine.
type MonitorCallbacks struct {
	SimStatusChanged        func(connected bool)
	AircraftLocationChanged func(onAirport bool)
}

// Monitor polls the simulator before recording starts: is the simulator
// reachable, and is the aircraft parked within the departure airport radius.
type Monitor struct {
	source   SnapshotSource
	log      zerolog.Logger
	interval time.Duration
	radiusKm float64

	simConnected bool
	onAirport    bool

	stopChan chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

func NewMonitor(source SnapshotSource, log zerolog.Logger, interval time.Duration, radiusKm float64) *Monitor {
	return &Monitor{
		source:   source,
		log:      log,
		interval: interval,
		radiusKm: radiusKm,
		stopChan: make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start launches the polling loop against the departure airport position.
func (m *Monitor) Start(airportLat, airportLon float64, cb MonitorCallbacks) {
	go func() {
		defer close(m.loopDone)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.check(airportLat, airportLon, cb)
			}
		}
	}()
}

// Stop terminates the polling loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		<-m.loopDone
	})
}

func (m *Monitor) check(airportLat, airportLon float64, cb MonitorCallbacks) {
	connected := m.source.Connect() == nil
	if connected != m.simConnected {
		m.simConnected = connected
		m.log.Info().Bool("connected", connected).Msg("Simulator status changed")
		if cb.SimStatusChanged != nil {
			cb.SimStatusChanged(connected)
		}
	}
	if !connected {
		return
	}

	snap, err := m.source.Snapshot()
	if err != nil {
		return
	}

	within := geo.DistanceKm(snap.Latitude, snap.Longitude, airportLat, airportLon) <= m.radiusKm
	if within != m.onAirport {
		m.onAirport = within
		m.log.Info().Bool("onAirport", within).Msg("Aircraft location status changed")
		if cb.AircraftLocationChanged != nil {
			cb.AircraftLocationChanged(within)
		}
	}
}
