package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Failure modes define how the mock transcription server behaves.
const (
	ModeNormal      = "normal"       // 200 with success=true
	ModeNotSuccess  = "not_success"  // 200 with success=false
	ModeDetailError = "detail_error" // 422 with {"detail": ...}
	ModeHTTPError   = "http_error"   // 500 with an undecodable body
	ModeMalformed   = "malformed"    // 200 with an undecodable body
	ModeSlow        = "slow"         // stalls until the request is cancelled
)

// ReceivedUpload records one multipart POST seen by the mock server.
type ReceivedUpload struct {
	Path     string
	Filename string
	Bytes    int
}

// MockTranscriptionServer simulates the MedASR HTTP server for testing:
// POST /transcribe, POST /transcribe/long, GET /health.
type MockTranscriptionServer struct {
	server *httptest.Server

	mu       sync.Mutex
	mode     string
	text     string
	detail   string
	healthy  bool
	received []ReceivedUpload
}

// NewMockTranscriptionServer starts a mock server on a dynamic port.
func NewMockTranscriptionServer() *MockTranscriptionServer {
	m := &MockTranscriptionServer{
		mode:    ModeNormal,
		text:    "mock transcript",
		detail:  "mock rejection",
		healthy: true,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the server's base address.
func (m *MockTranscriptionServer) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockTranscriptionServer) Close() {
	m.server.Close()
}

// SetMode configures how transcription requests are answered.
func (m *MockTranscriptionServer) SetMode(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// SetText sets the transcript returned in normal mode.
func (m *MockTranscriptionServer) SetText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
}

// SetHealthy controls the /health probe outcome.
func (m *MockTranscriptionServer) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// Received returns a copy of all uploads seen so far.
func (m *MockTranscriptionServer) Received() []ReceivedUpload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReceivedUpload, len(m.received))
	copy(out, m.received)
	return out
}

func (m *MockTranscriptionServer) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		m.handleHealth(w)
	case r.Method == http.MethodPost && (r.URL.Path == "/transcribe" || r.URL.Path == "/transcribe/long"):
		m.handleTranscribe(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail": "Not Found"}`)
	}
}

func (m *MockTranscriptionServer) handleHealth(w http.ResponseWriter) {
	m.mu.Lock()
	healthy := m.healthy
	m.mu.Unlock()
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	fmt.Fprint(w, `{"status": "healthy"}`)
}

func (m *MockTranscriptionServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	mode := m.mode
	text := m.text
	detail := m.detail
	m.mu.Unlock()

	if mode == ModeSlow {
		select {
		case <-time.After(30 * time.Second):
		case <-r.Context().Done():
		}
		return
	}

	var filename string
	var size int
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		if file, header, err := r.FormFile("file"); err == nil {
			filename = header.Filename
			size = int(header.Size)
			file.Close()
		}
	}
	m.mu.Lock()
	m.received = append(m.received, ReceivedUpload{Path: r.URL.Path, Filename: filename, Bytes: size})
	m.mu.Unlock()

	switch mode {
	case ModeNormal:
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true, "text": text, "filename": filename,
		})
	case ModeNotSuccess:
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false, "text": "", "filename": filename,
		})
	case ModeDetailError:
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": detail})
	case ModeHTTPError:
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "internal error")
	case ModeMalformed:
		fmt.Fprint(w, "not json")
	}
}
