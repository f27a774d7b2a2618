package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/docscan/internal/pdf"
	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

var pdfMagic = []byte("%PDF-")

// ocrPdfHandler runs the page images of an uploaded scanned PDF through one
// pipeline.
func (s *Server) ocrPdfHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	path, langs, format, err := s.parsePdfRequest(w, r)
	if err != nil {
		documentRequestsTotal.WithLabelValues("pdf", "error").Inc()
		s.writeError(w, requestID, err)
		return
	}
	defer func() { _ = os.Remove(path) }()

	var creds *pdf.PasswordCredentials
	if pw := r.FormValue("password"); pw != "" {
		creds = &pdf.PasswordCredentials{UserPassword: pw, OwnerPassword: pw}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	doc, err := s.processPDF(ctx, path, r.FormValue("pages"), langs, creds)
	if err != nil {
		documentRequestsTotal.WithLabelValues("pdf", "error").Inc()
		s.logger.Warn("pdf request failed", "request_id", requestID, "error", err)
		if errors.Is(err, pdf.ErrPasswordRequired) || pdf.IsPasswordError(err) {
			err = &requestError{status: http.StatusUnauthorized, errType: "password_required", msg: err.Error()}
		}
		s.writeError(w, requestID, err)
		return
	}
	documentRequestsTotal.WithLabelValues("pdf", "success").Inc()
	documentDuration.WithLabelValues("pdf").Observe(time.Since(start).Seconds())
	recognizedTextChars.WithLabelValues("pdf").Observe(float64(len(doc.Text())))

	switch format {
	case pipeline.FormatJSON:
		s.writeJSON(w, http.StatusOK, PDFResponse{Success: true, RequestID: requestID, Document: doc})
	case pipeline.FormatText:
		w.Header().Set("Content-Type", contentTypes[format])
		_, _ = io.WriteString(w, doc.Text())
	default:
		out, err := pipeline.Render(doc.Results(), format)
		if err != nil {
			s.writeError(w, requestID, err)
			return
		}
		w.Header().Set("Content-Type", contentTypes[format])
		_, _ = io.WriteString(w, out)
	}
}

// parsePdfRequest stores the uploaded PDF in a temp file and returns its path.
func (s *Server) parsePdfRequest(w http.ResponseWriter, r *http.Request) (string, []string, string, error) {
	if err := s.parseForm(w, r); err != nil {
		return "", nil, "", err
	}
	data, header, err := readFormFile(r, "pdf")
	if err != nil {
		return "", nil, "", err
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", nil, "", badRequest("invalid_pdf", "%s is not a PDF document", header.Filename)
	}
	langs, format, err := s.requestOptions(r)
	if err != nil {
		return "", nil, "", err
	}

	tmp, err := os.CreateTemp("", "docscan-upload-*.pdf")
	if err != nil {
		return "", nil, "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", nil, "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", nil, "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), langs, format, nil
}

// processPDF holds one pipeline for the whole document.
func (s *Server) processPDF(ctx context.Context, path, pages string, langs []string,
	creds *pdf.PasswordCredentials,
) (*pdf.DocumentResult, error) {
	runner, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.release(runner)

	cfg := pdf.DefaultProcessorConfig()
	cfg.Languages = langs
	cfg.Logger = s.logger
	return pdf.NewProcessorWithConfig(runner, cfg).ProcessFileWithCredentials(ctx, path, pages, creds)
}
