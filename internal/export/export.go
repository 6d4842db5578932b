// Package export turns a flight's recorded event history into the compressed
// artifact the acars server ingests: a JSON document gzipped on disk.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/pianista215/mam-acars/internal/model"
	"github.com/pianista215/mam-acars/internal/storage"
)

// ErrExportIO marks a filesystem failure while writing the artifact.
var ErrExportIO = errors.New("export I/O failure")

// TimestampLayout is the wire format of event timestamps in the exported
// document and in report payloads.
const TimestampLayout = "2006-01-02 15:04:05"

// Document is the exported artifact before compression.
type Document struct {
	FlightID     uint64          `json:"flightId"`
	Aircraft     string          `json:"aircraft"`
	PilotComment string          `json:"pilotComment"`
	Events       []DocumentEvent `json:"events"`
}

// DocumentEvent is one recorded tick: its timestamp plus the field changes in
// the order they were detected.
type DocumentEvent struct {
	Timestamp string          `json:"timestamp"`
	Changes   model.ChangeSet `json:"changes"`
}

// Exporter reads a flight out of the event store and writes the compressed
// artifact under <flightsDir>/<id>.json.gz.
type Exporter struct {
	store      *storage.Store
	log        zerolog.Logger
	flightsDir string
}

func NewExporter(store *storage.Store, log zerolog.Logger, flightsDir string) *Exporter {
	return &Exporter{
		store:      store,
		log:        log,
		flightsDir: flightsDir,
	}
}

// Export freezes the flight (no further events accepted), serializes its full
// history and gzips it. Returns the path of the compressed artifact.
// Idempotent: re-running overwrites the previous artifact with identical
// content. Returns storage.ErrNoData for a flight with zero events.
func (e *Exporter) Export(flightID uint64) (string, error) {
	if err := e.store.BeginExport(flightID); err != nil {
		return "", err
	}

	flight, err := e.store.GetFlight(flightID)
	if err != nil {
		return "", err
	}

	events, err := e.store.FlightEvents(flightID)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", fmt.Errorf("flight %d: %w", flightID, storage.ErrNoData)
	}

	doc := Document{
		FlightID:     flightID,
		Aircraft:     flight.Aircraft,
		PilotComment: flight.PilotComment.String,
		Events:       make([]DocumentEvent, 0, len(events)),
	}
	for i := range events {
		cs, err := model.ChangeSetFromRows(events[i].Changes)
		if err != nil {
			return "", fmt.Errorf("flight %d event %d: %w", flightID, events[i].ID, err)
		}
		doc.Events = append(doc.Events, DocumentEvent{
			Timestamp: events[i].Timestamp.UTC().Format(TimestampLayout),
			Changes:   cs,
		})
	}

	if err := os.MkdirAll(e.flightsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating flights dir: %w: %v", ErrExportIO, err)
	}

	jsonPath := filepath.Join(e.flightsDir, fmt.Sprintf("%d.json", flightID))
	if err := writeJSON(jsonPath, &doc); err != nil {
		return "", err
	}

	gzPath := jsonPath + ".gz"
	if err := compressFile(jsonPath, gzPath); err != nil {
		return "", err
	}

	e.log.Info().Uint64("flightId", flightID).Int("events", len(events)).
		Str("artifact", gzPath).Msg("Exported flight")
	return gzPath, nil
}

func writeJSON(path string, doc *Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w: %v", path, ErrExportIO, err)
	}

	enc := json.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w: %v", path, ErrExportIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w: %v", path, ErrExportIO, err)
	}
	return nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w: %v", src, ErrExportIO, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w: %v", dst, ErrExportIO, err)
	}

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		return fmt.Errorf("compressing %s: %w: %v", dst, ErrExportIO, err)
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("compressing %s: %w: %v", dst, ErrExportIO, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w: %v", dst, ErrExportIO, err)
	}
	return nil
}
