// Package api is the HTTP client for the acars server: authentication,
// flight-plan lookup, report submission and chunk upload.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Error taxonomy of the transport layer. errors.Is against these decides
// whether the submission orchestrator retries or re-authenticates.
var (
	// ErrAuthFailure means the server rejected the bearer token (HTTP 401).
	// Never retried with the same token.
	ErrAuthFailure = errors.New("authentication rejected")

	// ErrNetworkTransient marks timeouts, connection failures and 5xx
	// responses. Safe to retry.
	ErrNetworkTransient = errors.New("transient network failure")
)

// Client handles communication with the acars server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBearerToken installs the token sent on subsequent requests.
func (c *Client) SetBearerToken(token string) {
	c.token = token
}

// FlightPlan is the active flight plan assigned to the pilot.
type FlightPlan struct {
	ID                 uint64  `json:"id"`
	DepartureICAO      string  `json:"departure_icao"`
	DepartureLatitude  float64 `json:"departure_latitude"`
	DepartureLongitude float64 `json:"departure_longitude"`
	ArrivalICAO        string  `json:"arrival_icao"`
	Alt1ICAO           string  `json:"alt1_icao"`
	Alt2ICAO           string  `json:"alt2_icao"`
	AircraftTypeICAO   string  `json:"aircraft_type_icao"`
	AircraftReg        string  `json:"aircraft_reg"`
}

// ChunkRef names one chunk of the report manifest.
type ChunkRef struct {
	ID        int    `json:"id"`
	SHA256Sum string `json:"sha256sum"`
}

// SubmitReportRequest is the report metadata submitted before any chunk
// upload. Times use the "2006-01-02 15:04:05" layout.
type SubmitReportRequest struct {
	PilotComments   string     `json:"pilot_comments"`
	LastPositionLat float64    `json:"last_position_lat"`
	LastPositionLon float64    `json:"last_position_lon"`
	Network         string     `json:"network"`
	SimAircraftName string     `json:"sim_aircraft_name"`
	ReportTool      string     `json:"report_tool"`
	StartTime       string     `json:"start_time"`
	EndTime         string     `json:"end_time"`
	Chunks          []ChunkRef `json:"chunks"`
}

// Login authenticates with the pilot's license and password and returns the
// bearer token. The token is also installed on the client.
func (c *Client) Login(license, password string) (string, error) {
	payload := struct {
		License  string `json:"license"`
		Password string `json:"password"`
	}{License: license, Password: password}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.doJSON(http.MethodPost, "/api/v1/auth/login", &payload, &result); err != nil {
		return "", err
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("login: empty access token in response")
	}

	c.token = result.AccessToken
	return result.AccessToken, nil
}

// CurrentFlightPlan fetches the flight plan currently assigned to the pilot.
// Returns (nil, nil) when none is filed.
func (c *Client) CurrentFlightPlan() (*FlightPlan, error) {
	var result struct {
		EmptyFlightPlan bool `json:"EmptyFlightPlan"`
		FlightPlan
	}
	if err := c.doJSON(http.MethodGet, "/api/v1/flight-plan/current-fpl", nil, &result); err != nil {
		return nil, err
	}
	if result.EmptyFlightPlan || result.ID == 0 {
		return nil, nil
	}

	plan := result.FlightPlan
	return &plan, nil
}

// SubmitReport registers the report metadata for a completed flight plan and
// returns the report identifier the chunk uploads reference.
func (c *Client) SubmitReport(flightPlanID uint64, req SubmitReportRequest) (string, error) {
	var result struct {
		FlightReportID string `json:"flight_report_id"`
	}
	url := fmt.Sprintf("/api/v1/flight-report/submit-report?flight_plan_id=%d", flightPlanID)
	if err := c.doJSON(http.MethodPost, url, &req, &result); err != nil {
		return "", err
	}
	if result.FlightReportID == "" {
		return "", fmt.Errorf("submit report: empty report id in response")
	}
	return result.FlightReportID, nil
}

// UploadChunk streams one chunk file to the server as a multipart form.
func (c *Client) UploadChunk(flightReportID string, chunkID int, chunkPath string) error {
	file, err := os.Open(chunkPath)
	if err != nil {
		return fmt.Errorf("failed to open chunk: %w", err)
	}
	defer file.Close()

	// Create multipart form
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	// Write file in goroutine
	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		defer writer.Close()

		part, err := writer.CreateFormFile("chunkFile", filepath.Base(chunkPath))
		if err != nil {
			errCh <- fmt.Errorf("failed to create form file: %w", err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			errCh <- fmt.Errorf("failed to copy chunk: %w", err)
			return
		}
		errCh <- nil
	}()

	url := fmt.Sprintf("%s/api/v1/flight-report/upload-chunk?flight_report_id=%s&chunk_id=%d",
		c.baseURL, flightReportID, chunkID)
	req, err := http.NewRequest(http.MethodPost, url, pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload chunk %d: %w: %v", chunkID, ErrNetworkTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, fmt.Sprintf("upload chunk %d", chunkID)); err != nil {
		// An early error response may abort the body stream; the status
		// already tells the whole story.
		<-errCh
		return err
	}
	return <-errCh
}

// doJSON sends a JSON request and decodes the JSON response into out.
func (c *Client) doJSON(method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrNetworkTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, method+" "+path); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

func classifyStatus(status int, op string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrAuthFailure)
	case status >= 500:
		return fmt.Errorf("%s: status %d: %w", op, status, ErrNetworkTransient)
	default:
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
}
