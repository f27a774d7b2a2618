package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOCRBatchHandler(t *testing.T) {
	s, local := invoiceServer(t, func(c *Config) { c.Pipelines = 2 })
	files := []filePart{
		{"images", "a.png", pagePNG(t)},
		{"images", "broken.png", []byte("garbage")},
		{"images", "c.png", pagePNG(t)},
	}

	w := serve(s, multipartRequest(t, "/ocr/batch", files, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Documents, 3)

	for i, name := range []string{"a.png", "broken.png", "c.png"} {
		assert.Equal(t, name, resp.Documents[i].File)
	}
	assert.NotEmpty(t, resp.Documents[1].Error)
	assert.Nil(t, resp.Documents[1].Result)
	require.NotNil(t, resp.Documents[2].Result)
	assert.Equal(t, "invoice", string(resp.Documents[2].Result.DocumentType))
	assert.Equal(t, 2, local.Calls())
}

func TestOCRBatchHandler_CSV(t *testing.T) {
	s, _ := invoiceServer(t, nil)
	files := []filePart{{"images", "a.png", pagePNG(t)}, {"images", "b.png", pagePNG(t)}}

	w := serve(s, multipartRequest(t, "/ocr/batch", files, map[string]string{"format": "csv"}))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "file,document_type"))
	assert.Contains(t, body, "a.png,invoice")
	assert.Contains(t, body, "b.png,invoice")
}

func TestOCRBatchHandler_NoImages(t *testing.T) {
	s, _ := invoiceServer(t, nil)
	w := serve(s, multipartRequest(t, "/ocr/batch", []filePart{{"image", "a.png", pagePNG(t)}}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeOCR(t, w).ErrorType)
}

func TestOCRBatchHandler_TooManyFiles(t *testing.T) {
	s, local := invoiceServer(t, nil)
	png := pagePNG(t)
	files := make([]filePart, maxBatchFiles+1)
	for i := range files {
		files[i] = filePart{"images", "p.png", png}
	}
	w := serve(s, multipartRequest(t, "/ocr/batch", files, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "too_many_files", decodeOCR(t, w).ErrorType)
	assert.Zero(t, local.Calls())
}
