package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

// mockWebSocketConn records written messages.
type mockWebSocketConn struct {
	mu   sync.Mutex
	sent [][]byte
}

func (m *mockWebSocketConn) WriteMessage(_ int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockWebSocketConn) responses(t *testing.T) []WebSocketOCRResponse {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WebSocketOCRResponse, len(m.sent))
	for i, b := range m.sent {
		require.NoError(t, json.Unmarshal(b, &out[i]))
	}
	return out
}

func dialOCR(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/ocr"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntilDone(t *testing.T, conn *websocket.Conn) []WebSocketOCRResponse {
	t.Helper()
	var msgs []WebSocketOCRResponse
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg WebSocketOCRResponse
		require.NoError(t, conn.ReadJSON(&msg))
		msgs = append(msgs, msg)
		if msg.Type != "progress" {
			return msgs
		}
	}
}

func TestWebSocketOCR_StreamsProgressThenResult(t *testing.T) {
	s, _ := invoiceServer(t, nil)
	conn := dialOCR(t, s)

	require.NoError(t, conn.WriteJSON(WebSocketOCRRequest{
		Image:     pagePNG(t),
		Filename:  "invoice.png",
		Languages: []string{"eng"},
	}))
	msgs := readUntilDone(t, conn)
	require.GreaterOrEqual(t, len(msgs), 2)

	final := msgs[len(msgs)-1]
	assert.Equal(t, "result", final.Type)
	assert.Equal(t, "completed", final.Status)
	require.NotNil(t, final.Result)
	assert.Equal(t, "invoice", string(final.Result.DocumentType))

	last := 0
	var stages []string
	for _, m := range msgs[:len(msgs)-1] {
		assert.Equal(t, final.RequestID, m.RequestID)
		assert.GreaterOrEqual(t, m.Percent, last)
		last = m.Percent
		stages = append(stages, m.Stage)
	}
	assert.Equal(t, pipeline.StagePreprocessing, stages[0])
	assert.Contains(t, stages, pipeline.StageExtracting)
	assert.Equal(t, pipeline.StageComplete, stages[len(stages)-1])
}

func TestWebSocketOCR_SeveralRequestsOnOneConnection(t *testing.T) {
	s, local := invoiceServer(t, nil)
	conn := dialOCR(t, s)

	for range 2 {
		require.NoError(t, conn.WriteJSON(WebSocketOCRRequest{Image: pagePNG(t), Format: "text"}))
		msgs := readUntilDone(t, conn)
		final := msgs[len(msgs)-1]
		assert.Equal(t, "result", final.Type)
		assert.Contains(t, final.Output, "Document: Invoice")
	}
	assert.Equal(t, 2, local.Calls())
}

func TestHandleWebSocketMessage_Errors(t *testing.T) {
	s, local := invoiceServer(t, nil)

	tests := []struct {
		name    string
		payload string
		errType string
	}{
		{"malformed json", `{"image":`, "invalid_request"},
		{"no image", `{"filename":"a.png"}`, "invalid_request"},
		{"bad language", `{"image":"aGVsbG8=","languages":["xx"]}`, "invalid_languages"},
		{"bad format", `{"image":"aGVsbG8=","format":"pdf"}`, "invalid_format"},
		{"undecodable", `{"image":"aGVsbG8="}`, "invalid_image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &mockWebSocketConn{}
			s.handleWebSocketMessage(t.Context(), conn, []byte(tt.payload))

			resps := conn.responses(t)
			require.NotEmpty(t, resps)
			last := resps[len(resps)-1]
			assert.Equal(t, "error", last.Type)
			assert.Equal(t, tt.errType, last.ErrorType)
			assert.NotEmpty(t, last.RequestID)
		})
	}
	assert.Zero(t, local.Calls())
}

func TestWebSocketOCR_ReadLimit(t *testing.T) {
	s, local := invoiceServer(t, func(c *Config) { c.MaxUploadMB = 1 })
	assert.Equal(t, int64(1<<20*4/3+64<<10), s.wsReadLimit())

	conn := dialOCR(t, s)
	// A 2 MB upload encodes to about 2.8 MB of base64.
	frame, err := json.Marshal(WebSocketOCRRequest{Image: bytes.Repeat([]byte{0xff}, 2<<20)})
	require.NoError(t, err)
	require.Greater(t, int64(len(frame)), s.wsReadLimit())

	// The server may drop the connection before the whole frame is written.
	_ = conn.WriteMessage(websocket.TextMessage, frame)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		assert.Equal(t, websocket.CloseMessageTooBig, ce.Code)
	}
	assert.Zero(t, local.Calls())
}
