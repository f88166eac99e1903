// Package transcribe is the HTTP client for the MedASR transcription
// server: one multipart POST per recording, a strict response contract,
// and an advisory health probe.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zameerb1/medasr/internal/diaglog"
)

// Route suffixes on the configured base address.
const (
	pathTranscribe     = "/transcribe"
	pathTranscribeLong = "/transcribe/long"
	pathHealth         = "/health"
)

// Config configures the transcription client.
type Config struct {
	ServerURL      string
	RequestTimeout time.Duration // default 120s
	HealthTimeout  time.Duration // default 5s
	Logger         *diaglog.Logger
}

// Client performs transcription exchanges. It also exposes two observable
// signals for front ends: a busy flag held for the duration of Transcribe,
// and the last failure message, cleared at the start of each attempt.
type Client struct {
	httpClient   *http.Client
	healthClient *http.Client
	logger       *diaglog.Logger

	mu        sync.RWMutex
	serverURL string
	busy      bool
	lastError string
	onBusy    func(bool)
}

// transcribeResponse mirrors the server's success payload.
type transcribeResponse struct {
	Success  bool    `json:"success"`
	Text     string  `json:"text"`
	Filename *string `json:"filename"`
}

// errorResponse mirrors the server's failure payload.
type errorResponse struct {
	Detail string `json:"detail"`
}

// NewClient creates a transcription client.
func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = diaglog.NewNoOp()
	}
	return &Client{
		serverURL:    cfg.ServerURL,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		healthClient: &http.Client{Timeout: cfg.HealthTimeout},
		logger:       logger,
	}
}

// SetServerURL changes the server base address for subsequent calls.
// In-flight exchanges are unaffected.
func (c *Client) SetServerURL(raw string) {
	c.mu.Lock()
	c.serverURL = raw
	c.mu.Unlock()
}

// ServerURL returns the configured base address.
func (c *Client) ServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverURL
}

// OnBusyChanged registers a callback invoked whenever the busy flag flips.
// It is called from the goroutine running Transcribe.
func (c *Client) OnBusyChanged(fn func(bool)) {
	c.mu.Lock()
	c.onBusy = fn
	c.mu.Unlock()
}

// Busy reports whether a transcription exchange is in flight.
func (c *Client) Busy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.busy
}

// LastError returns the most recent failure message, or "" after a
// successful or not-yet-run attempt.
func (c *Client) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Transcribe uploads the audio file at path and returns the transcript
// text verbatim. useLong selects the server's long-form route. The exchange
// is bounded by the request timeout and aborts when ctx is cancelled. No
// retries: every failure maps onto the closed *Error set and the caller
// decides what happens next.
func (c *Client) Transcribe(ctx context.Context, path string, useLong bool) (string, error) {
	c.setBusy(true)
	c.setLastError("")
	defer c.setBusy(false)

	text, err := c.doTranscribe(ctx, path, useLong)
	if err != nil {
		c.setLastError(err.Error())
		c.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentTranscribe,
			Event:     uploadFailureEvent(err),
			Reason:    err.Error(),
			Payload:   map[string]interface{}{"file": filepath.Base(path)},
		})
		return "", err
	}

	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentTranscribe,
		Event:     diaglog.EventUploadSuccess,
		Payload:   map[string]interface{}{"file": filepath.Base(path), "chars": len(text)},
	})
	return text, nil
}

func (c *Client) doTranscribe(ctx context.Context, path string, useLong bool) (string, error) {
	endpoint, err := c.endpointURL(useLong)
	if err != nil {
		return "", err
	}

	boundary := NewBoundary()
	body, err := BuildBody(path, boundary)
	if err != nil {
		return "", &Error{Kind: ErrInvalidResponse, Err: err}
	}

	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentTranscribe,
		Event:     diaglog.EventUploadStart,
		Payload: map[string]interface{}{
			"file":  filepath.Base(path),
			"bytes": len(body),
			"long":  useLong,
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: ErrInvalidResponse, Err: err}
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var server errorResponse
		if jsonErr := json.Unmarshal(payload, &server); jsonErr == nil && server.Detail != "" {
			return "", &Error{Kind: ErrServer, Status: resp.StatusCode, Detail: server.Detail}
		}
		return "", &Error{Kind: ErrHTTP, Status: resp.StatusCode}
	}

	var result transcribeResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", &Error{Kind: ErrMalformedResponse, Err: err}
	}
	if !result.Success {
		return "", &Error{Kind: ErrTranscriptionFailed}
	}
	return result.Text, nil
}

// CheckHealth probes GET {base}/health under the short timeout. It returns
// true only for HTTP 200; malformed addresses, network errors, timeouts,
// and every other status all yield false. Advisory: it never returns an
// error and never panics.
func (c *Client) CheckHealth(ctx context.Context) bool {
	base, err := c.baseURL()
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+pathHealth, nil)
	if err != nil {
		return false
	}

	resp, err := c.healthClient.Do(req)
	healthy := false
	if err == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		healthy = resp.StatusCode == http.StatusOK
	}

	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentTranscribe,
		Event:     diaglog.EventHealthCheck,
		Payload:   map[string]interface{}{"healthy": healthy},
	})
	return healthy
}

// baseURL validates the configured server address and returns it without a
// trailing slash.
func (c *Client) baseURL() (string, error) {
	raw := c.ServerURL()
	if raw == "" {
		return "", &Error{Kind: ErrInvalidEndpoint}
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", &Error{Kind: ErrInvalidEndpoint, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &Error{Kind: ErrInvalidEndpoint}
	}
	return strings.TrimRight(raw, "/"), nil
}

func (c *Client) endpointURL(useLong bool) (string, error) {
	base, err := c.baseURL()
	if err != nil {
		return "", err
	}
	if useLong {
		return base + pathTranscribeLong, nil
	}
	return base + pathTranscribe, nil
}

func (c *Client) setBusy(busy bool) {
	c.mu.Lock()
	c.busy = busy
	fn := c.onBusy
	c.mu.Unlock()
	if fn != nil {
		fn(busy)
	}
}

func (c *Client) setLastError(msg string) {
	c.mu.Lock()
	c.lastError = msg
	c.mu.Unlock()
}

// classifyTransportError maps a failed exchange onto Cancelled, Timeout, or
// InvalidResponse.
func classifyTransportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return &Error{Kind: ErrCancelled, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Err: err}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrTimeout, Err: err}
	}
	return &Error{Kind: ErrInvalidResponse, Err: err}
}

func uploadFailureEvent(err error) string {
	var terr *Error
	if errors.As(err, &terr) && terr.Kind == ErrCancelled {
		return diaglog.EventUploadCancelled
	}
	return diaglog.EventUploadFailed
}
