package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/pipeline"
	"github.com/MeKo-Tech/docscan/internal/pixbuf"
	"github.com/MeKo-Tech/docscan/internal/preprocess"
	"github.com/MeKo-Tech/docscan/internal/recognition"
	"github.com/MeKo-Tech/docscan/internal/version"
)

// requestError is a client error detected before processing.
type requestError struct {
	status  int
	errType string
	msg     string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(errType, format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, errType: errType, msg: fmt.Sprintf(format, args...)}
}

var contentTypes = map[string]string{
	pipeline.FormatJSON: "application/json",
	pipeline.FormatYAML: "application/yaml",
	pipeline.FormatText: "text/plain; charset=utf-8",
	pipeline.FormatCSV:  "text/csv",
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.pool != nil {
		response.Pipelines = s.pool.size()
		response.Busy = s.pool.busy()
	}
	s.writeJSON(w, http.StatusOK, response)
}

// infoHandler describes the configured pipelines.
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := map[string]any{
		"version":             version.Version,
		"formats":             pipeline.Formats(),
		"supported_languages": engine.SupportedLanguages,
		"max_upload_mb":       s.maxUploadMB,
		"timeout_sec":         int(s.timeout.Seconds()),
	}
	if s.pool != nil && len(s.pool.all) > 0 {
		info["pipelines"] = s.pool.size()
		if d, ok := s.pool.all[0].(interface{ Info() map[string]any }); ok {
			info["pipeline"] = d.Info()
		}
	}
	s.writeJSON(w, http.StatusOK, info)
}

// ocrImageHandler runs one uploaded image through a pipeline.
func (s *Server) ocrImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	if err := s.parseForm(w, r); err != nil {
		documentRequestsTotal.WithLabelValues("image", "error").Inc()
		s.writeError(w, requestID, err)
		return
	}
	data, header, err := readFormFile(r, "image")
	if err != nil {
		documentRequestsTotal.WithLabelValues("image", "error").Inc()
		s.writeError(w, requestID, err)
		return
	}
	langs, format, err := s.requestOptions(r)
	if err != nil {
		documentRequestsTotal.WithLabelValues("image", "error").Inc()
		s.writeError(w, requestID, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.pool.run(ctx, pipeline.Request{Image: data, Filename: header.Filename, Languages: langs})
	observeRun("image", start, res, err)
	if err != nil {
		s.logger.Warn("image request failed", "request_id", requestID, "file", header.Filename, "error", err)
		s.writeError(w, requestID, err)
		return
	}
	s.writeResults(w, requestID, format, res)
}

// parseForm bounds the body and parses the multipart form.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) error {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "too large") {
			uploadsRejected.WithLabelValues("multipart").Inc()
			return &requestError{status: http.StatusRequestEntityTooLarge, errType: "too_large", msg: "file too large"}
		}
		return badRequest("invalid_request", "failed to parse form data: %v", err)
	}
	return nil
}

// readFormFile reads one uploaded file completely.
func readFormFile(r *http.Request, field string) ([]byte, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, badRequest("invalid_request", "no %s file provided", field)
	}
	defer func() { _ = file.Close() }()
	data, err := readPart(file, header)
	if err != nil {
		return nil, nil, err
	}
	return data, header, nil
}

func readPart(file io.Reader, header *multipart.FileHeader) ([]byte, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", header.Filename, err)
	}
	if len(data) == 0 {
		return nil, badRequest("invalid_image", "uploaded file %s is empty", header.Filename)
	}
	uploadSizeBytes.Observe(float64(len(data)))
	return data, nil
}

// requestOptions reads the languages and output format of a form request.
func (s *Server) requestOptions(r *http.Request) ([]string, string, error) {
	var langs []string
	if raw := r.Form["languages"]; len(raw) > 0 {
		normalized, err := engine.NormalizeLanguages(raw)
		if err != nil {
			return nil, "", badRequest("invalid_languages", "%v", err)
		}
		langs = normalized
	}
	format, err := s.outputFormat(r.FormValue("format"))
	if err != nil {
		return nil, "", err
	}
	return langs, format, nil
}

func (s *Server) outputFormat(raw string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		format = s.defaultFormat
	}
	if !slices.Contains(pipeline.Formats(), format) {
		return "", badRequest("invalid_format", "unsupported format %q (supported: %s)",
			raw, strings.Join(pipeline.Formats(), ", "))
	}
	return format, nil
}

// writeResults writes a result in the requested format. JSON responses carry
// the OCRResponse envelope; other formats are the rendered document.
func (s *Server) writeResults(w http.ResponseWriter, requestID, format string, res *pipeline.ExtractionResult) {
	if format == pipeline.FormatJSON {
		s.writeJSON(w, http.StatusOK, OCRResponse{Success: true, RequestID: requestID, Result: res})
		return
	}
	out, err := pipeline.Render([]*pipeline.ExtractionResult{res}, format)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	_, _ = io.WriteString(w, out)
}

// errorStatus maps processing errors onto HTTP status codes.
func errorStatus(err error) (int, string) {
	var reqErr *requestError
	var cancelled *pipeline.CancelledError
	var decodeErr *pixbuf.DecodeError
	var optsErr *preprocess.ValidationError
	var recErr *recognition.RecognitionError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, reqErr.errType
	case errors.As(err, &cancelled):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "timeout"
		}
		return http.StatusServiceUnavailable, "cancelled"
	case errors.Is(err, pixbuf.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, pipeline.ErrNoImage), errors.Is(err, pixbuf.ErrEmptyImage), errors.As(err, &decodeErr):
		return http.StatusBadRequest, "invalid_image"
	case errors.As(err, &optsErr):
		return http.StatusBadRequest, "invalid_options"
	case errors.As(err, &recErr):
		return http.StatusInternalServerError, "recognition_error"
	default:
		return http.StatusInternalServerError, "processing_error"
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, requestID string, err error) {
	status, errType := errorStatus(err)
	s.writeJSON(w, status, OCRResponse{
		Success:   false,
		RequestID: requestID,
		Error:     err.Error(),
		ErrorType: errType,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// observeRun records request metrics for one pipeline run.
func observeRun(kind string, start time.Time, res *pipeline.ExtractionResult, err error) {
	if err != nil {
		documentRequestsTotal.WithLabelValues(kind, "error").Inc()
		return
	}
	documentRequestsTotal.WithLabelValues(kind, "success").Inc()
	documentDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	recognizedTextChars.WithLabelValues(kind).Observe(float64(len(res.Text)))
	fieldsPerDocument.WithLabelValues(kind).Observe(float64(len(res.ExtractedFields)))
	documentsByType.WithLabelValues(string(res.DocumentType), res.Engine).Inc()
}
