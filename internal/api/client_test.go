package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_ReturnsAndInstallsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "123456", body["license"])
		assert.Equal(t, "hunter2", body["password"])

		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-abc"})
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	tok, err := client.Login("123456", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", tok)
	assert.Equal(t, "tok-abc", client.token)
}

func TestLogin_UnauthorizedIsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	_, err := client.Login("123456", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailure)
}

func TestCurrentFlightPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/flight-plan/current-fpl", r.URL.Path)
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"id":                  77,
			"departure_icao":      "LEMD",
			"departure_latitude":  40.49181,
			"departure_longitude": -3.56948,
			"arrival_icao":        "LEBL",
			"aircraft_type_icao":  "B738",
			"aircraft_reg":        "EC-ABC",
		})
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	client.SetBearerToken("tok-abc")

	plan, err := client.CurrentFlightPlan()
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, uint64(77), plan.ID)
	assert.Equal(t, "LEMD", plan.DepartureICAO)
	assert.Equal(t, 40.49181, plan.DepartureLatitude)
	assert.Equal(t, "B738", plan.AircraftTypeICAO)
}

func TestCurrentFlightPlan_NoneFiled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"EmptyFlightPlan": true})
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	plan, err := client.CurrentFlightPlan()
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestSubmitReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/flight-report/submit-report", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("flight_plan_id"))

		var req SubmitReportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "smooth", req.PilotComments)
		assert.Equal(t, "2025-03-14 12:00:00", req.StartTime)
		require.Len(t, req.Chunks, 2)
		assert.Equal(t, 1, req.Chunks[0].ID)

		json.NewEncoder(w).Encode(map[string]string{"flight_report_id": "rep-9"})
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	reportID, err := client.SubmitReport(42, SubmitReportRequest{
		PilotComments: "smooth",
		StartTime:     "2025-03-14 12:00:00",
		EndTime:       "2025-03-14 13:30:00",
		Chunks: []ChunkRef{
			{ID: 1, SHA256Sum: "aa"},
			{ID: 2, SHA256Sum: "bb"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "rep-9", reportID)
}

func TestUploadChunk_StreamsMultipart(t *testing.T) {
	payload := []byte("chunk-payload-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/flight-report/upload-chunk", r.URL.Path)
		assert.Equal(t, "rep-9", r.URL.Query().Get("flight_report_id"))
		assert.Equal(t, "2", r.URL.Query().Get("chunk_id"))

		file, header, err := r.FormFile("chunkFile")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "chunk_0002.bin", header.Filename)

		got, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, payload, got)

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	chunkPath := filepath.Join(t.TempDir(), "chunk_0002.bin")
	require.NoError(t, os.WriteFile(chunkPath, payload, 0o644))

	client := New(srv.URL, 5*time.Second)
	client.SetBearerToken("tok-abc")
	require.NoError(t, client.UploadChunk("rep-9", 2, chunkPath))
}

func TestUploadChunk_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	chunkPath := filepath.Join(t.TempDir(), "chunk_0001.bin")
	require.NoError(t, os.WriteFile(chunkPath, []byte("x"), 0o644))

	client := New(srv.URL, 5*time.Second)
	err := client.UploadChunk("rep-9", 1, chunkPath)
	assert.ErrorIs(t, err, ErrNetworkTransient)
}

func TestDoJSON_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing is listening anymore

	client := New(srv.URL, time.Second)
	_, err := client.CurrentFlightPlan()
	assert.ErrorIs(t, err, ErrNetworkTransient)
}
