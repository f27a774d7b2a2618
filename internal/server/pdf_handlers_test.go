package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOCRPdfHandler_ClientErrors(t *testing.T) {
	s, local := invoiceServer(t, nil)

	tests := []struct {
		name    string
		files   []filePart
		fields  map[string]string
		errType string
	}{
		{"missing file", nil, nil, "invalid_request"},
		{"not a pdf", []filePart{{"pdf", "scan.pdf", pagePNG(t)}}, nil, "invalid_pdf"},
		{"bad format", []filePart{{"pdf", "scan.pdf", []byte("%PDF-1.7\n")}}, map[string]string{"format": "docx"}, "invalid_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, multipartRequest(t, "/ocr/pdf", tt.files, tt.fields))
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.errType, decodeOCR(t, w).ErrorType)
		})
	}
	assert.Zero(t, local.Calls())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/ocr/pdf", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestOCRPdfHandler_CorruptDocument(t *testing.T) {
	s, local := invoiceServer(t, nil)
	files := []filePart{{"pdf", "scan.pdf", []byte("%PDF-1.7\nthis is not really a pdf")}}

	w := serve(s, multipartRequest(t, "/ocr/pdf", files, nil))
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
	assert.False(t, decodeOCR(t, w).Success)
	assert.Zero(t, local.Calls())
}
