// Package speech provides the HTTP client for the external speech pipeline
// service that performs transcription, speaker diarization, and emotion
// tagging on uploaded call recordings.
//
// The service exposes a REST API at POST /transcribe that accepts a
// multipart-encoded audio file and returns diarized speech segments. ConvI
// treats the pipeline as a black box: whatever segments come back are handed
// to the conversation normalizer unchanged.
//
// Usage:
//
//	c, err := speech.New("http://localhost:9000",
//	    speech.WithTimeout(2*time.Minute),
//	)
//	tr, err := c.Transcribe(ctx, audioFile, "call.wav", "")
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/conviai/convi/internal/conversation"
)

// defaultTimeout bounds a single transcription call. Long recordings can take
// minutes to diarize.
const defaultTimeout = 5 * time.Minute

// Transcription is the speech pipeline's result for one audio file.
type Transcription struct {
	// Segments are the diarized speech segments in chronological order.
	Segments []conversation.SpeechSegment `json:"segments"`

	// Language is the dominant language detected across the recording
	// (ISO 639-1 code, e.g. "en"). May be empty if detection failed.
	Language string `json:"language"`

	// DurationSeconds is the total audio duration reported by the pipeline.
	DurationSeconds float64 `json:"duration_seconds"`
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Defaults to 5 minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely. Overrides any
// previously applied WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for request-level diagnostics.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client talks to a speech pipeline service instance. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for the speech pipeline service at baseURL
// (e.g. "http://localhost:9000"). baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("speech: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe uploads the audio stream to the pipeline's /transcribe endpoint
// and returns the diarized transcription. filename is forwarded as the
// multipart filename so the pipeline can pick a decoder by extension.
// language is an optional ISO 639-1 hint; pass "" to let the pipeline detect.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (*Transcription, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("speech: create form file: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return nil, fmt.Errorf("speech: copy audio data: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("speech: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("speech: close multipart writer: %w", err)
	}

	endpoint := c.baseURL + "/transcribe"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("speech: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("speech: pipeline returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(excerpt))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech: read response body: %w", err)
	}

	var result Transcription
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("speech: parse JSON response: %w", err)
	}

	c.logger.Info("transcription complete",
		"filename", filename,
		"segments", len(result.Segments),
		"language", result.Language,
		"duration", time.Since(start),
	)
	return &result, nil
}

// Healthy probes the pipeline's /healthz endpoint. Returns nil when the
// pipeline responds with HTTP 200.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("speech: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("speech: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("speech: pipeline returned HTTP %d", resp.StatusCode)
	}
	return nil
}
