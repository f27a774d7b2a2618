// Package vision is the fallback recognition engine backed by the Google
// Cloud Vision images:annotate REST endpoint.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/google/uuid"
)

// DefaultEndpoint is the public Vision API base URL.
const DefaultEndpoint = "https://vision.googleapis.com"

// DefaultConfidence is reported when the API returns text without any block
// confidence. It is a heuristic, not a measurement.
const DefaultConfidence = 85.0

// ErrMissingAPIKey is returned before any request is made without credentials.
var ErrMissingAPIKey = errors.New("vision: api key not configured")

// Config holds credentials and transport settings.
type Config struct {
	APIKey            string
	Endpoint          string
	DefaultConfidence float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Engine calls DOCUMENT_TEXT_DETECTION on the Vision API.
type Engine struct {
	cfg Config
}

// New constructs a Vision engine, filling unset fields with defaults.
func New(cfg Config) *Engine {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.DefaultConfidence <= 0 {
		cfg.DefaultConfidence = DefaultConfidence
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 45 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Name() string { return engine.NameGoogleVision }

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image        imagePayload  `json:"image"`
	Features     []feature     `json:"features"`
	ImageContext *imageContext `json:"imageContext,omitempty"`
}

type imagePayload struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type imageContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

type annotateResponse struct {
	Responses []imageResponse `json:"responses"`
}

type imageResponse struct {
	FullTextAnnotation *textAnnotation `json:"fullTextAnnotation"`
	Error              *apiStatus      `json:"error"`
}

type textAnnotation struct {
	Text  string `json:"text"`
	Pages []page `json:"pages"`
}

type page struct {
	Confidence *float64 `json:"confidence"`
	Blocks     []block  `json:"blocks"`
}

type block struct {
	Confidence *float64 `json:"confidence"`
}

type apiStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError is a non-2xx HTTP status or a per-image error from the API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("vision api error (status %d, code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("vision api error: non-2xx status: %d", e.Status)
}

// Recognize sends the image bytes with language hints derived from languages.
func (e *Engine) Recognize(ctx context.Context, in engine.Input, languages []string) (engine.Result, error) {
	if e.cfg.APIKey == "" {
		return engine.Result{}, ErrMissingAPIKey
	}
	data, err := in.Bytes()
	if err != nil {
		return engine.Result{}, err
	}

	body := annotateRequest{Requests: []imageRequest{{
		Image:        imagePayload{Content: base64.StdEncoding.EncodeToString(data)},
		Features:     []feature{{Type: "DOCUMENT_TEXT_DETECTION", MaxResults: 1}},
		ImageContext: &imageContext{LanguageHints: engine.Hints(languages)},
	}}}

	raw, status, err := e.sendJSON(ctx, body)
	if err != nil {
		return engine.Result{}, err
	}

	var resp annotateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return engine.Result{}, fmt.Errorf("decode vision response: %w", err)
	}
	if len(resp.Responses) == 0 {
		return engine.Result{}, nil
	}
	first := resp.Responses[0]
	if first.Error != nil && (first.Error.Code != 0 || first.Error.Message != "") {
		return engine.Result{}, &APIError{Status: status, Code: first.Error.Code, Message: first.Error.Message}
	}
	if first.FullTextAnnotation == nil {
		return engine.Result{}, nil
	}

	conf, measured := blockConfidence(first.FullTextAnnotation)
	if !measured {
		conf = e.cfg.DefaultConfidence
	}
	return engine.Result{
		Text:               strings.TrimSpace(first.FullTextAnnotation.Text),
		Confidence:         conf,
		ConfidenceMeasured: measured,
	}, nil
}

// blockConfidence averages the per-block confidences (0-1) and scales to 0-100.
func blockConfidence(a *textAnnotation) (float64, bool) {
	var sum float64
	var n int
	for _, p := range a.Pages {
		for _, b := range p.Blocks {
			if b.Confidence == nil {
				continue
			}
			sum += *b.Confidence
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n) * 100, true
}

func (e *Engine) sendJSON(ctx context.Context, body any) ([]byte, int, error) {
	logger := e.cfg.Logger
	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}

	endpoint := strings.TrimRight(e.cfg.Endpoint, "/") + "/v1/images:annotate"
	target := endpoint + "?key=" + url.QueryEscape(e.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(bs))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("vision.http.request", "req_id", reqID, "url", endpoint, "content_length", len(bs))

	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		logger.Warn("vision.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("vision.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	logger.Debug("vision.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		var wrapped struct {
			Error *apiStatus `json:"error"`
		}
		if json.Unmarshal(raw, &wrapped) == nil && wrapped.Error != nil {
			apiErr.Code = wrapped.Error.Code
			apiErr.Message = wrapped.Error.Message
		}
		return raw, resp.StatusCode, apiErr
	}
	return raw, resp.StatusCode, nil
}
