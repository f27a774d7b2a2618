package server

import (
	"bytes"
	"encoding/json"
	"image/color"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/engine/enginetest"
	"github.com/MeKo-Tech/docscan/internal/pipeline"
	"github.com/MeKo-Tech/docscan/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a server whose pipelines share local. mutate may
// adjust the config before construction.
func newTestServer(t *testing.T, local engine.Engine, mutate func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = quietLogger()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg, func() (Runner, error) {
		return pipeline.NewBuilder().
			WithLocalEngine(local).
			WithFallbackEnabled(false).
			WithLogger(quietLogger()).
			Build()
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func invoiceServer(t *testing.T, mutate func(*Config)) (*Server, *enginetest.Fake) {
	t.Helper()
	local := enginetest.New("fake", testutil.InvoiceText, 91)
	return newTestServer(t, local, mutate), local
}

func pagePNG(t *testing.T) []byte {
	t.Helper()
	return testutil.SolidImagePNG(t, 64, 64, color.White)
}

type filePart struct {
	field, name string
	data        []byte
}

// multipartRequest builds a POST with the given files and form fields.
func multipartRequest(t *testing.T, path string, files []filePart, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeOCR(t *testing.T, w *httptest.ResponseRecorder) OCRResponse {
	t.Helper()
	var resp OCRResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}
