package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/conviai/convi/internal/analysis"
	"github.com/conviai/convi/internal/conversation"
	"github.com/conviai/convi/internal/observe"
)

// analyzeTextRequest is the JSON body of POST /api/v1/analyze/text.
type analyzeTextRequest struct {
	// Transcript is the raw multi-line conversation text. Required.
	Transcript string `json:"transcript"`

	// Language is the transcript language code. Defaults to "en".
	Language string `json:"language"`

	// Domain selects the knowledge domain for retrieval and analysis.
	// Defaults to the server's configured domain.
	Domain string `json:"domain"`
}

// analyzeResponse is the JSON body returned by both analysis endpoints.
type analyzeResponse struct {
	Domain   string                          `json:"domain"`
	Language string                          `json:"language,omitempty"`
	Turns    []conversation.ConversationTurn `json:"turns"`
	Dialogue string                          `json:"dialogue"`

	// Findings is null when no analysis engine is configured.
	Findings *analysis.Result `json:"findings"`

	Timings timings `json:"timings"`
}

// timings reports wall-clock stage durations in milliseconds.
type timings struct {
	TranscribeMS int64 `json:"transcribe_ms,omitempty"`
	AnalyzeMS    int64 `json:"analyze_ms,omitempty"`
	TotalMS      int64 `json:"total_ms"`
}

// apiError is the typed error body of every non-2xx JSON response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req analyzeTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, "missing_transcript", "transcript must not be empty")
		return
	}
	domain := req.Domain
	if domain == "" {
		domain = s.defaultDomain
	}

	turns := s.normalizer.FromText(ctx, req.Transcript, req.Language)
	if len(turns) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "empty_conversation", "transcript produced no conversation turns")
		return
	}

	findings, tm, ok := s.analyze(w, r, turns, domain)
	if !ok {
		return
	}
	s.metrics.Conversations.Add(ctx, 1, metric.WithAttributes(
		observe.Attr("path", "text"),
		observe.Attr("domain", domain),
	))

	tm.TotalMS = time.Since(start).Milliseconds()
	language := req.Language
	if language == "" {
		language = conversation.DefaultLanguage
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		Domain:   domain,
		Language: language,
		Turns:    turns,
		Dialogue: conversation.RenderDialogue(turns),
		Findings: findings,
		Timings:  tm,
	})
}

func (s *Server) handleAnalyzeAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	if s.speech == nil {
		writeError(w, http.StatusServiceUnavailable, "speech_unavailable", "no speech pipeline is configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_audio_file", "multipart field \"audio_file\" is required: "+err.Error())
		return
	}
	defer file.Close()

	domain := r.FormValue("domain")
	if domain == "" {
		domain = s.defaultDomain
	}

	transcribeStart := time.Now()
	tr, err := s.speech.Transcribe(ctx, file, header.Filename, r.FormValue("language"))
	transcribeMS := time.Since(transcribeStart).Milliseconds()
	s.metrics.SpeechPipelineDuration.Record(ctx, time.Since(transcribeStart).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "speech_pipeline", "speech")
		s.logger.Error("transcription failed", "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadGateway, "transcription_failed", err.Error())
		return
	}

	turns := s.normalizer.FromSpeech(ctx, tr.Segments)
	if len(turns) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "empty_conversation", "recording produced no conversation turns")
		return
	}

	findings, tm, ok := s.analyze(w, r, turns, domain)
	if !ok {
		return
	}
	s.metrics.Conversations.Add(ctx, 1, metric.WithAttributes(
		observe.Attr("path", "speech"),
		observe.Attr("domain", domain),
	))

	tm.TranscribeMS = transcribeMS
	tm.TotalMS = time.Since(start).Milliseconds()
	writeJSON(w, http.StatusOK, analyzeResponse{
		Domain:   domain,
		Language: tr.Language,
		Turns:    turns,
		Dialogue: conversation.RenderDialogue(turns),
		Findings: findings,
		Timings:  tm,
	})
}

// analyze runs the engine over turns, translating failures into HTTP
// responses. ok is false when a response has already been written.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request, turns []conversation.ConversationTurn, domain string) (findings *analysis.Result, tm timings, ok bool) {
	if s.engine == nil {
		return nil, tm, true
	}

	analyzeStart := time.Now()
	findings, err := s.engine.Analyze(r.Context(), turns, domain)
	tm.AnalyzeMS = time.Since(analyzeStart).Milliseconds()
	if err != nil {
		s.logger.Error("analysis failed", "domain", domain, "error", err)
		code := "analysis_failed"
		if errors.Is(err, analysis.ErrBadResponse) {
			code = "bad_model_response"
		}
		writeError(w, http.StatusBadGateway, code, err.Error())
		return nil, tm, false
	}
	return findings, tm, true
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":{"code":"encoding_failed"}}`, http.StatusInternalServerError)
	}
}

// writeError writes the typed JSON error body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}
