// Package submission drives the post-flight pipeline: export, split, report
// submission, chunk upload and local cleanup. Every step is idempotent or
// resumable, so a failed or interrupted submission re-runs only what is left.
package submission

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/pianista215/mam-acars/internal/api"
	"github.com/pianista215/mam-acars/internal/chunker"
	"github.com/pianista215/mam-acars/internal/export"
	"github.com/pianista215/mam-acars/internal/model"
	"github.com/pianista215/mam-acars/internal/storage"
	"github.com/pianista215/mam-acars/internal/token"
)

// reportTool identifies this client in submitted reports.
const reportTool = "mam-acars-go"

// Step is the orchestrator's position in the pipeline.
type Step int

const (
	StepIdle Step = iota
	StepExporting
	StepSplitting
	StepSubmittingReport
	StepUploadingChunks
	StepCleaningUp
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepExporting:
		return "exporting"
	case StepSplitting:
		return "splitting"
	case StepSubmittingReport:
		return "submitting-report"
	case StepUploadingChunks:
		return "uploading-chunks"
	case StepCleaningUp:
		return "cleaning-up"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// ReportAPI is the server surface the orchestrator depends on.
type ReportAPI interface {
	SubmitReport(flightPlanID uint64, req api.SubmitReportRequest) (string, error)
	UploadChunk(flightReportID string, chunkID int, chunkPath string) error
}

// ProgressFunc receives the submission progress: a percentage in [0, 100]
// and a human-readable status line.
type ProgressFunc func(percent int, status string)

// Orchestrator walks one flight through the submission pipeline. After an
// error it stays parked on the failing step; calling Run again retries from
// there, never re-doing completed work.
type Orchestrator struct {
	store    *storage.Store
	exporter *export.Exporter
	splitter *chunker.Splitter
	client   ReportAPI
	tokens   *token.Store
	log      zerolog.Logger

	flightsDir string
	onProgress ProgressFunc

	step         Step
	artifactPath string
	reportID     string
	totalChunks  int
	uploaded     int
}

func NewOrchestrator(
	store *storage.Store,
	exporter *export.Exporter,
	splitter *chunker.Splitter,
	client ReportAPI,
	tokens *token.Store,
	log zerolog.Logger,
	flightsDir string,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		exporter:   exporter,
		splitter:   splitter,
		client:     client,
		tokens:     tokens,
		log:        log,
		flightsDir: flightsDir,
		step:       StepIdle,
	}
}

// SetProgressFunc installs the progress callback. Optional.
func (o *Orchestrator) SetProgressFunc(fn ProgressFunc) {
	o.onProgress = fn
}

// Step reports the orchestrator's current pipeline position.
func (o *Orchestrator) Step() Step {
	return o.step
}

// Run drives the pipeline for one flight until Done or until a step fails.
// On failure the orchestrator keeps its position, so a subsequent Run call
// retries the failing step only. An authentication failure additionally
// deletes the stored bearer token: the caller must re-authenticate before
// retrying, never retry blindly.
func (o *Orchestrator) Run(flightID uint64) error {
	if o.step == StepIdle {
		if err := o.resumePoint(flightID); err != nil {
			return err
		}
	}

	for o.step != StepDone {
		if err := o.runStep(flightID); err != nil {
			if errors.Is(err, api.ErrAuthFailure) {
				o.log.Warn().Uint64("flightId", flightID).Msg("Token rejected, deleting stored token")
				if delErr := o.tokens.Delete(); delErr != nil {
					o.log.Error().Err(delErr).Msg("Failed to delete stored token")
				}
			}
			o.log.Error().Err(err).Stringer("step", o.step).Uint64("flightId", flightID).
				Msg("Submission step failed, awaiting retry")
			return fmt.Errorf("step %s: %w", o.step, err)
		}
	}

	o.progress("Flight report submitted")
	return nil
}

// resumePoint decides where a fresh Run starts, based on persisted state. A
// flight whose report was already acknowledged resumes at chunk upload: the
// surviving chunk rows are exactly the uploads that never finished.
func (o *Orchestrator) resumePoint(flightID uint64) error {
	flight, err := o.store.GetFlight(flightID)
	if err != nil {
		return err
	}

	if flight.ReportID.Valid {
		o.reportID = flight.ReportID.String
		o.step = StepUploadingChunks
		o.log.Info().Uint64("flightId", flightID).Str("reportId", o.reportID).
			Msg("Resuming interrupted submission at chunk upload")
		return nil
	}

	o.step = StepExporting
	return nil
}

func (o *Orchestrator) runStep(flightID uint64) error {
	switch o.step {
	case StepExporting:
		o.progress("Exporting events to blackbox file...")
		artifact, err := o.exporter.Export(flightID)
		if err != nil {
			return err
		}
		o.artifactPath = artifact
		o.step = StepSplitting

	case StepSplitting:
		o.progress("Splitting blackbox in pieces...")
		pieces, err := o.splitter.Split(o.artifactPath, o.chunksDir(flightID))
		if err != nil {
			return err
		}
		rows := make([]model.Chunk, 0, len(pieces))
		for _, p := range pieces {
			rows = append(rows, model.Chunk{
				FlightID: flightID,
				Seq:      p.Seq,
				Path:     p.Path,
				SHA256:   p.SHA256,
			})
		}
		if err := o.store.SaveChunks(flightID, rows); err != nil {
			return err
		}
		o.totalChunks = len(rows)
		o.step = StepSubmittingReport

	case StepSubmittingReport:
		o.progress("Sending basic information...")
		if err := o.submitReport(flightID); err != nil {
			return err
		}
		o.step = StepUploadingChunks

	case StepUploadingChunks:
		if err := o.uploadChunks(flightID); err != nil {
			return err
		}
		o.step = StepCleaningUp

	case StepCleaningUp:
		o.progress("Cleaning up...")
		// Cleanup failure is reported but never blocks completion: the
		// report is already on the server.
		if err := o.store.PurgeAll(); err != nil {
			o.log.Error().Err(err).Msg("Cleanup failed, local data left behind")
		}
		o.step = StepDone

	default:
		return fmt.Errorf("cannot run from step %s", o.step)
	}
	return nil
}

func (o *Orchestrator) submitReport(flightID uint64) error {
	flight, err := o.store.GetFlight(flightID)
	if err != nil {
		return err
	}

	lat, err := o.store.GetLastValue(flightID, model.FieldLatitude)
	if err != nil {
		return err
	}
	lon, err := o.store.GetLastValue(flightID, model.FieldLongitude)
	if err != nil {
		return err
	}

	start, end, err := o.store.GetTimeRange(flightID)
	if err != nil {
		return err
	}

	pending, err := o.store.PendingChunks(flightID)
	if err != nil {
		return err
	}
	manifest := make([]api.ChunkRef, 0, len(pending))
	for _, c := range pending {
		manifest = append(manifest, api.ChunkRef{ID: c.Seq, SHA256Sum: c.SHA256})
	}

	req := api.SubmitReportRequest{
		PilotComments:   flight.PilotComment.String,
		LastPositionLat: lat.Num,
		LastPositionLon: lon.Num,
		Network:         flight.Network,
		SimAircraftName: flight.Aircraft,
		ReportTool:      reportTool,
		StartTime:       start.UTC().Format(export.TimestampLayout),
		EndTime:         end.UTC().Format(export.TimestampLayout),
		Chunks:          manifest,
	}

	reportID, err := o.client.SubmitReport(flightID, req)
	if err != nil {
		return err
	}
	if err := o.store.SetReportID(flightID, reportID); err != nil {
		return err
	}

	o.reportID = reportID
	return nil
}

// uploadChunks sends the remaining chunks in sequence order, deleting each
// registry row as its upload is acknowledged. A failure on chunk k leaves
// rows k..N in place; earlier chunks are never re-uploaded.
func (o *Orchestrator) uploadChunks(flightID uint64) error {
	pending, err := o.store.PendingChunks(flightID)
	if err != nil {
		return err
	}

	if o.totalChunks < o.uploaded+len(pending) {
		o.totalChunks = o.uploaded + len(pending)
	}

	for _, chunk := range pending {
		o.progress(fmt.Sprintf("Uploading black box file %d of %d...", o.uploaded+1, o.totalChunks))

		if err := o.client.UploadChunk(o.reportID, chunk.Seq, chunk.Path); err != nil {
			return err
		}
		if err := o.store.DeleteChunk(flightID, chunk.Seq); err != nil {
			return err
		}
		o.uploaded++
	}
	return nil
}

func (o *Orchestrator) chunksDir(flightID uint64) string {
	return filepath.Join(o.flightsDir, fmt.Sprintf("%d_chunks", flightID))
}

// progress reports the current completion percentage. Completed units are
// the finished steps plus uploaded chunks, out of 4 + N.
func (o *Orchestrator) progress(status string) {
	if o.onProgress == nil {
		return
	}

	completed := 0
	if o.step > StepExporting {
		completed++
	}
	if o.step > StepSplitting {
		completed++
	}
	if o.step > StepSubmittingReport {
		completed++
	}
	completed += o.uploaded
	if o.step > StepCleaningUp {
		completed++
	}

	total := 4 + o.totalChunks
	percent := completed * 100 / total
	if o.step == StepDone {
		percent = 100
	}
	o.onProgress(percent, status)
}
