package submission

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pianista215/mam-acars/internal/api"
	"github.com/pianista215/mam-acars/internal/chunker"
	"github.com/pianista215/mam-acars/internal/database"
	"github.com/pianista215/mam-acars/internal/export"
	"github.com/pianista215/mam-acars/internal/model"
	"github.com/pianista215/mam-acars/internal/storage"
	"github.com/pianista215/mam-acars/internal/token"
)

// fakeReportAPI stands in for the server. failOnChunk makes the next upload of
// that sequence number fail once, then succeed.
type fakeReportAPI struct {
	reportID string

	submitErr     error
	submittedPlan uint64
	submitted     []api.SubmitReportRequest

	failOnChunk int
	attempts    []int
	uploaded    []int
}

func (f *fakeReportAPI) SubmitReport(flightPlanID uint64, req api.SubmitReportRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submittedPlan = flightPlanID
	f.submitted = append(f.submitted, req)
	return f.reportID, nil
}

func (f *fakeReportAPI) UploadChunk(_ string, chunkID int, _ string) error {
	f.attempts = append(f.attempts, chunkID)
	if chunkID == f.failOnChunk {
		f.failOnChunk = 0
		return errors.New("connection reset")
	}
	f.uploaded = append(f.uploaded, chunkID)
	return nil
}

type fixture struct {
	store      *storage.Store
	exporter   *export.Exporter
	splitter   *chunker.Splitter
	tokens     *token.Store
	flightsDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	dir := t.TempDir()
	db := database.NewManager(zerolog.Nop(), filepath.Join(dir, "test.db"))
	require.NoError(t, db.Connect())
	require.NoError(t, db.Setup())
	t.Cleanup(func() { db.Close() })

	flightsDir := filepath.Join(dir, "flights")
	store, err := storage.New(db.DB, zerolog.Nop(), storage.Config{
		FlightsDir:    flightsDir,
		FlushInterval: time.Second,
	})
	require.NoError(t, err)

	return fixture{
		store:      store,
		exporter:   export.NewExporter(store, zerolog.Nop(), flightsDir),
		splitter:   chunker.NewSplitter(zerolog.Nop()),
		tokens:     token.NewStore(filepath.Join(dir, "data")),
		flightsDir: flightsDir,
	}
}

func (f fixture) orchestrator(client ReportAPI) *Orchestrator {
	return NewOrchestrator(f.store, f.exporter, f.splitter, client, f.tokens, zerolog.Nop(), f.flightsDir)
}

// seedFlight registers a completed flight with a couple of events and a
// pilot comment, ready for submission.
func seedFlight(t *testing.T, store *storage.Store, id uint64) {
	t.Helper()

	require.NoError(t, store.RegisterFlight(id, "B738 | EC-ABC", "IVAO", 2))

	base := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	var first model.ChangeSet
	first.Put(model.FieldLatitude, model.NumberValue(40.49181))
	first.Put(model.FieldLongitude, model.NumberValue(-3.56948))
	first.Put(model.FieldOnGround, model.BoolValue(true))
	require.NoError(t, store.RecordEvent(id, first, base))

	var second model.ChangeSet
	second.Put(model.FieldLatitude, model.NumberValue(41.29707))
	second.Put(model.FieldLongitude, model.NumberValue(2.07846))
	require.NoError(t, store.RecordEvent(id, second, base.Add(90*time.Second)))

	require.NoError(t, store.SetComment(id, "smooth flight"))
}

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(t)
	seedFlight(t, f.store, 42)

	fake := &fakeReportAPI{reportID: "rep-9"}
	orch := f.orchestrator(fake)

	var lastPercent int
	var statuses []string
	orch.SetProgressFunc(func(percent int, status string) {
		lastPercent = percent
		statuses = append(statuses, status)
	})

	require.NoError(t, orch.Run(42))
	assert.Equal(t, StepDone, orch.Step())
	assert.Equal(t, 100, lastPercent)
	assert.Equal(t, "Flight report submitted", statuses[len(statuses)-1])

	require.Len(t, fake.submitted, 1)
	req := fake.submitted[0]
	assert.Equal(t, uint64(42), fake.submittedPlan)
	assert.Equal(t, "smooth flight", req.PilotComments)
	assert.Equal(t, 41.29707, req.LastPositionLat)
	assert.Equal(t, 2.07846, req.LastPositionLon)
	assert.Equal(t, "IVAO", req.Network)
	assert.Equal(t, "B738 | EC-ABC", req.SimAircraftName)
	assert.Equal(t, "mam-acars-go", req.ReportTool)
	assert.Equal(t, "2025-03-14 12:00:00", req.StartTime)
	assert.Equal(t, "2025-03-14 12:01:30", req.EndTime)
	require.Len(t, req.Chunks, 1)
	assert.Equal(t, 1, req.Chunks[0].ID)
	assert.Len(t, req.Chunks[0].SHA256Sum, 64)

	assert.Equal(t, []int{1}, fake.uploaded)

	// Cleanup wiped the local state.
	_, err := f.store.GetFlight(42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, statErr := os.Stat(f.flightsDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_ChunkFailureNeverReuploadsEarlierChunks(t *testing.T) {
	f := newFixture(t)
	seedFlight(t, f.store, 7)

	// The report was already acknowledged in a previous run; three chunk
	// uploads are still pending.
	require.NoError(t, f.store.SetReportID(7, "rep-7"))
	chunksDir := filepath.Join(f.flightsDir, "7_chunks")
	require.NoError(t, os.MkdirAll(chunksDir, 0o755))
	rows := make([]model.Chunk, 3)
	for i := range rows {
		path := filepath.Join(chunksDir, fmt.Sprintf("chunk_%04d.bin", i+1))
		require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
		rows[i] = model.Chunk{FlightID: 7, Seq: i + 1, Path: path, SHA256: "aa"}
	}
	require.NoError(t, f.store.SaveChunks(7, rows))

	fake := &fakeReportAPI{reportID: "rep-7", failOnChunk: 2}
	orch := f.orchestrator(fake)

	err := orch.Run(7)
	require.Error(t, err)
	assert.Equal(t, StepUploadingChunks, orch.Step())
	assert.Equal(t, []int{1}, fake.uploaded, "only chunk 1 made it through")

	// The retry picks up at chunk 2. Chunk 1 is gone from the registry and
	// is never sent again.
	require.NoError(t, orch.Run(7))
	assert.Equal(t, StepDone, orch.Step())
	assert.Equal(t, []int{1, 2, 2, 3}, fake.attempts)
	assert.Equal(t, []int{1, 2, 3}, fake.uploaded)
	assert.Empty(t, fake.submitted, "resume never re-submits an acknowledged report")
}

func TestRun_AuthFailureDeletesToken(t *testing.T) {
	f := newFixture(t)
	seedFlight(t, f.store, 3)
	require.NoError(t, f.tokens.Save("tok-stale"))

	fake := &fakeReportAPI{reportID: "rep-3", submitErr: api.ErrAuthFailure}
	orch := f.orchestrator(fake)

	err := orch.Run(3)
	require.ErrorIs(t, err, api.ErrAuthFailure)
	assert.Equal(t, StepSubmittingReport, orch.Step())

	_, tokErr := f.tokens.Get()
	assert.ErrorIs(t, tokErr, token.ErrNoToken, "rejected token must not be reused")

	// After re-authenticating, the retry finishes the pipeline.
	fake.submitErr = nil
	require.NoError(t, orch.Run(3))
	assert.Equal(t, StepDone, orch.Step())
	assert.Len(t, fake.submitted, 1)
}

func TestRun_ExportFailureParksOnExportStep(t *testing.T) {
	f := newFixture(t)
	// A flight with no recorded events cannot be exported.
	require.NoError(t, f.store.RegisterFlight(9, "C172", "offline", 1))
	require.NoError(t, f.store.SetComment(9, "x"))

	orch := f.orchestrator(&fakeReportAPI{reportID: "rep-9"})
	err := orch.Run(9)
	require.ErrorIs(t, err, storage.ErrNoData)
	assert.Equal(t, StepExporting, orch.Step())
}
