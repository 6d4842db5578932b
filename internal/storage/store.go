// Package storage is the durable event store: flight registry, append-only
// buffered event writes, and the query primitives the export and submission
// stages depend on.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"

	"github.com/pianista215/mam-acars/internal/model"
	"github.com/pianista215/mam-acars/internal/queue"
)

// Config holds the store settings.
type Config struct {
	// FlightsDir is the directory holding exported artifacts and chunk
	// files; PurgeAll removes it.
	FlightsDir string

	// FlushInterval is the period of the background batch flush.
	FlushInterval time.Duration
}

// FlushObserver receives a notification after every flush attempt. Optional;
// the metrics manager implements it.
type FlushObserver interface {
	ObserveFlush(events int, d time.Duration, err error)
}

type bufferedEvent struct {
	flightID  uint64
	timestamp time.Time
	changes   model.ChangeSet
}

// Store provides durable, crash-tolerant persistence of flights and their
// events over a single shared database handle. Appends from the sampler tick
// and the periodic batch flush are serialized by one mutex, and every
// mutation runs inside one transaction, so an event row is never committed
// without its change rows.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
	cfg Config

	observer FlushObserver

	mu      sync.Mutex
	buffer  *queue.Queue[bufferedEvent]
	blocked map[uint64]bool // flights whose export has begun

	stopChan chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}

	eventsRecorded metric.Int64Counter
	eventsFlushed  metric.Int64Counter
	flushFailures  metric.Int64Counter
}

// New creates a store. Uses the global OTel meter for write-path counters
// (no-op if no provider is configured).
func New(db *gorm.DB, log zerolog.Logger, cfg Config) (*Store, error) {
	s := &Store{
		db:       db,
		log:      log,
		cfg:      cfg,
		buffer:   queue.New[bufferedEvent](),
		blocked:  make(map[uint64]bool),
		stopChan: make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	m := meter()
	var err error

	s.eventsRecorded, err = m.Int64Counter(
		"store.events.recorded",
		metric.WithDescription("Events accepted into the write buffer"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating recorded counter: %w", err)
	}

	s.eventsFlushed, err = m.Int64Counter(
		"store.events.flushed",
		metric.WithDescription("Events committed to durable storage"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flushed counter: %w", err)
	}

	s.flushFailures, err = m.Int64Counter(
		"store.flush.failures",
		metric.WithDescription("Failed flush transactions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failure counter: %w", err)
	}

	return s, nil
}

// SetFlushObserver installs an optional flush observer. Must be called
// before Start.
func (s *Store) SetFlushObserver(o FlushObserver) {
	s.observer = o
}

// Start launches the periodic flush loop.
func (s *Store) Start() {
	go s.flushLoop()
}

// Stop terminates the flush loop and flushes whatever is still buffered, so
// the store is consistent for export.
func (s *Store) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.loopDone
	})
	return s.Flush()
}

func (s *Store) flushLoop() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.log.Error().Err(err).Msg("Periodic flush failed; events retained in buffer")
			}
		}
	}
}

// RegisterFlight creates a new flight record in the recording state.
func (s *Store) RegisterFlight(id uint64, aircraft, network string, engineCount int) error {
	s.log.Info().Uint64("flightId", id).Str("aircraft", aircraft).Str("network", network).
		Int("engines", engineCount).Msg("Registering flight")

	var count int64
	if err := s.db.Model(&model.Flight{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return ioErr("register flight", err)
	}
	if count > 0 {
		return fmt.Errorf("flight %d: %w", id, ErrDuplicateFlight)
	}

	flight := model.Flight{
		ID:          id,
		Aircraft:    aircraft,
		Network:     network,
		EngineCount: engineCount,
		State:       model.FlightStateRecording,
	}
	if err := s.db.Create(&flight).Error; err != nil {
		return ioErr("register flight", err)
	}

	s.mu.Lock()
	delete(s.blocked, id)
	s.mu.Unlock()
	return nil
}

// RecordEvent buffers one non-empty change set for the flight. Safe to call
// from the sampler tick while a flush is running. Returns ErrInvalidState
// once export has begun for the flight.
func (s *Store) RecordEvent(id uint64, changes model.ChangeSet, timestamp time.Time) error {
	if changes.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocked[id] {
		return fmt.Errorf("flight %d is exporting: %w", id, ErrInvalidState)
	}

	s.buffer.Push(bufferedEvent{
		flightID:  id,
		timestamp: timestamp,
		changes:   changes,
	})
	s.eventsRecorded.Add(context.Background(), 1)
	return nil
}

// Flush commits all buffered events in one transaction, preserving the order
// RecordEvent accepted them. On failure the buffer is retained untouched so
// no accepted event is ever dropped.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.buffer.GetAndEmpty()
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i := range pending {
			ev := &pending[i]
			event := model.Event{FlightID: ev.flightID, Timestamp: ev.timestamp}
			if err := tx.Create(&event).Error; err != nil {
				return err
			}

			rows := make([]model.Change, 0, ev.changes.Len())
			var encodeErr error
			ev.changes.Each(func(field string, value model.Value) {
				raw, err := model.EncodeValue(value)
				if err != nil {
					encodeErr = err
					return
				}
				rows = append(rows, model.Change{
					EventID:  event.ID,
					Variable: field,
					Value:    raw,
				})
			})
			if encodeErr != nil {
				return encodeErr
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return nil
	})

	if s.observer != nil {
		s.observer.ObserveFlush(len(pending), time.Since(start), err)
	}

	if err != nil {
		// The batch keeps its place so ordering survives the retry.
		s.buffer.Requeue(pending)
		s.flushFailures.Add(context.Background(), 1)
		return ioErr("flush", err)
	}

	s.eventsFlushed.Add(context.Background(), int64(len(pending)))
	s.log.Debug().Int("events", len(pending)).Dur("duration", time.Since(start)).Msg("Flushed event buffer")
	return nil
}

// SetComment attaches the pilot's remarks to a flight, which also marks it
// pending for submission.
func (s *Store) SetComment(id uint64, text string) error {
	res := s.db.Model(&model.Flight{}).Where("id = ?", id).Update("pilot_comment", text)
	if res.Error != nil {
		return ioErr("set comment", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("flight %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetComment reads the pilot's remarks.
func (s *Store) GetComment(id uint64) (string, error) {
	flight, err := s.GetFlight(id)
	if err != nil {
		return "", err
	}
	return flight.PilotComment.String, nil
}

// SetReportID stores the remote report identifier acknowledged by the
// server, so a resumed submission skips the report-submit step.
func (s *Store) SetReportID(id uint64, reportID string) error {
	res := s.db.Model(&model.Flight{}).Where("id = ?", id).Update("report_id", reportID)
	if res.Error != nil {
		return ioErr("set report id", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("flight %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetFlight loads one flight record.
func (s *Store) GetFlight(id uint64) (model.Flight, error) {
	var flight model.Flight
	err := s.db.First(&flight, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Flight{}, fmt.Errorf("flight %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Flight{}, ioErr("get flight", err)
	}
	return flight, nil
}

// BeginExport flushes the buffer and transitions the flight to the exporting
// state; from then on RecordEvent rejects new events for it. Idempotent.
func (s *Store) BeginExport(id uint64) error {
	if err := s.Flush(); err != nil {
		return err
	}

	res := s.db.Model(&model.Flight{}).Where("id = ?", id).Update("state", model.FlightStateExporting)
	if res.Error != nil {
		return ioErr("begin export", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("flight %d: %w", id, ErrNotFound)
	}

	s.mu.Lock()
	s.blocked[id] = true
	s.mu.Unlock()
	return nil
}

// FlightEvents reads the full event history of a flight in timestamp order
// (ties broken by insertion id), with change rows in insertion order. Reads
// straight from durable storage, never from the buffer: callers go through
// BeginExport first.
func (s *Store) FlightEvents(id uint64) ([]model.Event, error) {
	var events []model.Event
	err := s.db.
		Where("flight_id = ?", id).
		Order("timestamp ASC, id ASC").
		Preload("Changes", func(db *gorm.DB) *gorm.DB {
			return db.Order("changes.id ASC")
		}).
		Find(&events).Error
	if err != nil {
		return nil, ioErr("flight events", err)
	}
	return events, nil
}

// GetLastValue returns the most recently recorded value of a field, ordered
// by event timestamp descending. ErrNoData if the field was never recorded
// for the flight.
func (s *Store) GetLastValue(id uint64, field string) (model.Value, error) {
	if err := s.Flush(); err != nil {
		return model.Value{}, err
	}

	var row model.Change
	err := s.db.
		Joins("JOIN events ON events.id = changes.event_id").
		Where("events.flight_id = ? AND changes.variable = ?", id, field).
		Order("events.timestamp DESC, events.id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Value{}, fmt.Errorf("flight %d field %q: %w", id, field, ErrNoData)
	}
	if err != nil {
		return model.Value{}, ioErr("get last value", err)
	}

	value, err := row.DecodeValue()
	if err != nil {
		return model.Value{}, ioErr("get last value", err)
	}
	return value, nil
}

// GetTimeRange returns the earliest and latest event timestamps of a flight.
// ErrNoData if the flight has zero events.
func (s *Store) GetTimeRange(id uint64) (time.Time, time.Time, error) {
	if err := s.Flush(); err != nil {
		return time.Time{}, time.Time{}, err
	}

	var first, last model.Event
	err := s.db.Where("flight_id = ?", id).Order("timestamp ASC, id ASC").First(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, time.Time{}, fmt.Errorf("flight %d: %w", id, ErrNoData)
	}
	if err != nil {
		return time.Time{}, time.Time{}, ioErr("get time range", err)
	}

	if err := s.db.Where("flight_id = ?", id).Order("timestamp DESC, id DESC").First(&last).Error; err != nil {
		return time.Time{}, time.Time{}, ioErr("get time range", err)
	}
	return first.Timestamp, last.Timestamp, nil
}

// GetPendingFlight returns the flight that was recorded and commented but
// whose submission never purged local state, or nil if none exists. Used to
// resume an interrupted submission across application runs.
func (s *Store) GetPendingFlight() (*model.Flight, error) {
	var flight model.Flight
	err := s.db.Where("pilot_comment IS NOT NULL").Limit(1).First(&flight).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, ioErr("get pending flight", err)
	}
	return &flight, nil
}

// SaveChunks replaces the chunk registry of a flight. Called after every
// split, which is idempotent, so replacing is correct.
func (s *Store) SaveChunks(id uint64, chunks []model.Chunk) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("flight_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.Create(&chunks).Error
	})
	if err != nil {
		return ioErr("save chunks", err)
	}
	return nil
}

// PendingChunks lists the chunks of a flight that still await upload, in
// sequence order.
func (s *Store) PendingChunks(id uint64) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := s.db.Where("flight_id = ?", id).Order("seq ASC").Find(&chunks).Error; err != nil {
		return nil, ioErr("pending chunks", err)
	}
	return chunks, nil
}

// DeleteChunk removes one chunk from the registry once its upload succeeded.
func (s *Store) DeleteChunk(id uint64, seq int) error {
	if err := s.db.Where("flight_id = ? AND seq = ?", id, seq).Delete(&model.Chunk{}).Error; err != nil {
		return ioErr("delete chunk", err)
	}
	return nil
}

// PurgeAll deletes every flight, event, change and chunk row plus all
// exported artifacts on disk. Runs after a successful submission, or when
// the user declines to resume a pending one.
func (s *Store) PurgeAll() error {
	s.mu.Lock()
	s.buffer.Clear()
	s.blocked = make(map[uint64]bool)
	s.mu.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range []string{
			"DELETE FROM changes;",
			"DELETE FROM events;",
			"DELETE FROM chunks;",
			"DELETE FROM flights;",
		} {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ioErr("purge", err)
	}

	// Reset autoincrement counters. The table only exists once a row has
	// been inserted, so a failure here is not an error.
	if err := s.db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('changes', 'events');").Error; err != nil {
		s.log.Debug().Err(err).Msg("sqlite_sequence reset skipped")
	}

	if s.cfg.FlightsDir != "" {
		if err := os.RemoveAll(s.cfg.FlightsDir); err != nil {
			return fmt.Errorf("purge artifacts: %w: %v", ErrStorageIO, err)
		}
	}

	s.log.Info().Msg("Purged all local flight data")
	return nil
}
