package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

// maxBatchFiles bounds the number of files accepted by one batch request.
const maxBatchFiles = 50

type upload struct {
	name string
	data []byte
}

// ocrBatchHandler runs several uploaded images concurrently across the pool.
// Results keep upload order; a failing file does not fail the request.
func (s *Server) ocrBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	uploads, langs, format, err := s.parseBatchRequest(w, r)
	if err != nil {
		documentRequestsTotal.WithLabelValues("batch", "error").Inc()
		s.writeError(w, requestID, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	items := make([]BatchItem, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.pool.size())
	for i, up := range uploads {
		g.Go(func() error {
			itemStart := time.Now()
			res, err := s.pool.run(gctx, pipeline.Request{Image: up.data, Filename: up.name, Languages: langs})
			observeRun("batch", itemStart, res, err)
			items[i] = BatchItem{File: up.name, Result: res}
			if err != nil {
				items[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		s.writeError(w, requestID, &pipeline.CancelledError{Stage: pipeline.StateIdle, Err: err})
		return
	}

	failed := 0
	results := make([]*pipeline.ExtractionResult, 0, len(items))
	for _, it := range items {
		if it.Error != "" {
			failed++
			continue
		}
		results = append(results, it.Result)
	}
	s.logger.Info("batch request completed", "request_id", requestID,
		"files", len(items), "failed", failed, "duration_ms", time.Since(start).Milliseconds())

	if format == pipeline.FormatJSON {
		s.writeJSON(w, http.StatusOK, BatchResponse{
			Success:   failed == 0,
			RequestID: requestID,
			Documents: items,
			Failed:    failed,
		})
		return
	}
	out, err := pipeline.Render(results, format)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	_, _ = io.WriteString(w, out)
}

// parseBatchRequest reads every file posted under "images".
func (s *Server) parseBatchRequest(w http.ResponseWriter, r *http.Request) ([]upload, []string, string, error) {
	if err := s.parseForm(w, r); err != nil {
		return nil, nil, "", err
	}
	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		return nil, nil, "", badRequest("invalid_request", "no images provided")
	}
	if len(headers) > maxBatchFiles {
		return nil, nil, "", badRequest("too_many_files", "at most %d images per request, got %d", maxBatchFiles, len(headers))
	}
	uploads := make([]upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, nil, "", badRequest("invalid_request", "open %s: %v", h.Filename, err)
		}
		data, err := readPart(f, h)
		_ = f.Close()
		if err != nil {
			return nil, nil, "", err
		}
		uploads = append(uploads, upload{name: h.Filename, data: data})
	}
	langs, format, err := s.requestOptions(r)
	if err != nil {
		return nil, nil, "", err
	}
	return uploads, langs, format, nil
}
