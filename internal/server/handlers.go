package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/audiocut-api/internal/apperr"
	"github.com/maauso/audiocut-api/internal/metadata"
	"github.com/maauso/audiocut-api/internal/processing"
)

// Service is the set of use cases the handlers expose.
type Service interface {
	Metadata(ctx context.Context, url string) (*metadata.Record, error)
	Resolve(ctx context.Context, url string) (*metadata.Resolution, error)
	ProcessAudio(ctx context.Context, in processing.ProcessInput) (*processing.ProcessOutput, error)
	SplitAudio(ctx context.Context, in processing.SplitInput) (*processing.SplitOutput, error)
	ExtractRange(ctx context.Context, in processing.ExtractInput) (*processing.ExtractOutput, error)
}

var _ Service = (*processing.Service)(nil)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Handlers{
		service:   service,
		validator: v,
		logger:    logger,
	}
}

// Home handles GET / requests.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HomeResponse{Message: "Audio Processor API"})
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Metadata handles POST /metadata requests.
func (h *Handlers) Metadata(w http.ResponseWriter, r *http.Request) {
	var req MetadataRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.service.Metadata(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, apperr.ErrProbe) {
			msg := fmt.Sprintf("Failed to fetch metadata: %v. Try updating yt-dlp or checking URL access.", apperr.Cause(err))
			h.logger.Error("metadata lookup failed", slog.String("url", req.URL), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, msg, "PROBE_FAILED")
			return
		}
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Resolve handles POST /resolve requests.
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.Resolve(r.Context(), req.URL)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ProcessAudio handles POST /process-audio requests.
func (h *Handlers) ProcessAudio(w http.ResponseWriter, r *http.Request) {
	var req ProcessAudioRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.ProcessAudio(r.Context(), processing.ProcessInput{
		URL:         req.URL,
		SplitPoints: req.SplitPoints,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ProcessAudioResponse{
		Success:       true,
		WaveformData:  out.Waveform,
		WaveformImage: out.Image,
		Duration:      out.Duration,
		FilePath:      out.FilePath,
	})
}

// SplitAudio handles POST /split-audio requests.
func (h *Handlers) SplitAudio(w http.ResponseWriter, r *http.Request) {
	var req SplitAudioRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.SplitAudio(r.Context(), processing.SplitInput{
		URL:         req.URL,
		SplitPoints: req.SplitPoints,
		Format:      req.Format,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SplitAudioResponse{
		Success:  true,
		Segments: out.Segments,
	})
}

// ExtractSegment handles POST /extract-segment requests.
func (h *Handlers) ExtractSegment(w http.ResponseWriter, r *http.Request) {
	var req ExtractSegmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.ExtractRange(r.Context(), processing.ExtractInput{
		URL:    req.URL,
		Start:  *req.StartTime,
		End:    *req.EndTime,
		Format: req.Format,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ExtractSegmentResponse{
		Success: true,
		Segment: out.Segment,
	})
}

// DownloadSegment handles GET /download-segment/{filename...} requests.
func (h *Handlers) DownloadSegment(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotImplemented, "Download not implemented yet", "NOT_IMPLEMENTED")
}

// decode reads and validates a JSON body. It writes the error response and
// returns false when the request is unusable.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, validationMessage(err), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeServiceError maps a classified service error to a response.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("code", code), slog.String("error", err.Error()))
	}
	writeError(w, status, apperr.Cause(err).Error(), code)
}

type errorStatus struct {
	status int
	code   string
}

var kindStatus = map[error]errorStatus{
	apperr.ErrInput:      {http.StatusBadRequest, "INVALID_INPUT"},
	apperr.ErrUnresolved: {http.StatusUnprocessableEntity, "UNRESOLVABLE"},
	apperr.ErrDownload:   {http.StatusInternalServerError, "DOWNLOAD_FAILED"},
	apperr.ErrProbe:      {http.StatusInternalServerError, "PROBE_FAILED"},
	apperr.ErrDecode:     {http.StatusInternalServerError, "DECODE_FAILED"},
	apperr.ErrRender:     {http.StatusInternalServerError, "RENDER_FAILED"},
	apperr.ErrEncode:     {http.StatusInternalServerError, "ENCODE_FAILED"},
	apperr.ErrStorage:    {http.StatusInternalServerError, "STORAGE_FAILED"},
}

// statusFor returns the HTTP status and error code for err.
func statusFor(err error) (int, string) {
	if es, ok := kindStatus[apperr.KindOf(err)]; ok {
		return es.status, es.code
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// validationMessage turns validator errors into a short sentence naming the
// offending fields.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must contain at least %s element(s)", fe.Field(), fe.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.Join(strings.Fields(fe.Param()), ", ")))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
