package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pianista215/mam-acars/internal/blackbox"
	"github.com/pianista215/mam-acars/internal/storage"
)

// Sampler drives the recording of one flight: a fixed-period loop that reads
// a snapshot, diffs it against the baseline and appends the resulting change
// set to the event store.
type Sampler struct {
	source   SnapshotSource
	store    *storage.Store
	log      zerolog.Logger
	interval time.Duration

	detector *blackbox.Detector
	engines  int

	stopChan chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

func NewSampler(source SnapshotSource, store *storage.Store, log zerolog.Logger, policy blackbox.Policy, interval time.Duration) *Sampler {
	return &Sampler{
		source:   source,
		store:    store,
		log:      log,
		interval: interval,
		detector: blackbox.NewDetector(policy),
		stopChan: make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start registers the flight and launches the sampling loop. The engine
// count is read once here and fixes the length of the per-engine flag array
// for the whole recording.
func (s *Sampler) Start(flightID uint64, network string) error {
	aircraft, err := s.source.AircraftName()
	if err != nil {
		return fmt.Errorf("reading aircraft info: %w", err)
	}
	engines, err := s.source.EngineCount()
	if err != nil {
		return fmt.Errorf("reading engine count: %w", err)
	}

	if err := s.store.RegisterFlight(flightID, aircraft, network, engines); err != nil {
		return err
	}

	s.engines = engines
	s.detector.Reset()
	s.log.Info().Uint64("flightId", flightID).Dur("interval", s.interval).Msg("Start saving blackbox")

	go s.loop(flightID)
	return nil
}

// Stop terminates the sampling loop. Buffered events stay in the store; the
// export path flushes them.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.loopDone
	})
	s.log.Info().Msg("Stop saving blackbox")
}

func (s *Sampler) loop(flightID uint64) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sample(flightID)
		}
	}
}

func (s *Sampler) sample(flightID uint64) {
	snap, err := s.source.Snapshot()
	if err != nil {
		s.log.Warn().Err(err).Msg("Snapshot read failed, tick skipped")
		return
	}

	// The engine array length is fixed at recording start.
	for len(snap.EnginesRunning) < s.engines {
		snap.EnginesRunning = append(snap.EnginesRunning, false)
	}
	snap.EnginesRunning = snap.EnginesRunning[:s.engines]

	changes := s.detector.Compute(snap)
	if changes.Empty() {
		return
	}

	err = s.store.RecordEvent(flightID, changes, snap.Timestamp)
	if errors.Is(err, storage.ErrInvalidState) {
		s.log.Warn().Uint64("flightId", flightID).Msg("Flight already exporting, tick dropped")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to record event")
	}
}
