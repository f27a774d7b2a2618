package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	// wsFrameOverhead covers the JSON envelope around the base64 image.
	wsFrameOverhead = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketOCRRequest is one document sent over the socket. Image is base64
// in JSON.
type WebSocketOCRRequest struct {
	Image     []byte   `json:"image"`
	Filename  string   `json:"filename,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Format    string   `json:"format,omitempty"`
}

// WebSocketOCRResponse is a progress, result or error message.
type WebSocketOCRResponse struct {
	Type      string                     `json:"type"`   // progress, result, error
	Status    string                     `json:"status"` // processing, completed, error
	Stage     string                     `json:"stage,omitempty"`
	Percent   int                        `json:"percent,omitempty"`
	Message   string                     `json:"message,omitempty"`
	Result    *pipeline.ExtractionResult `json:"result,omitempty"`
	Output    string                     `json:"output,omitempty"`
	Error     string                     `json:"error,omitempty"`
	ErrorType string                     `json:"error_type,omitempty"`
	RequestID string                     `json:"request_id,omitempty"`
}

// WebSocketConnWriter is the write side of a websocket connection.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// lockedWriter serializes writes from the run and the read loop.
type lockedWriter struct {
	mu sync.Mutex
	w  WebSocketConnWriter
}

func (l *lockedWriter) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.WriteMessage(messageType, data)
}

// wsStageSink streams pipeline stage events to the client.
type wsStageSink struct {
	s         *Server
	conn      WebSocketConnWriter
	requestID string
}

func (k wsStageSink) OnStage(ev pipeline.StageEvent) {
	k.s.sendWebSocketResponse(k.conn, WebSocketOCRResponse{
		Type:      "progress",
		Status:    "processing",
		Stage:     ev.Stage,
		Percent:   ev.Percent,
		Message:   ev.Message,
		RequestID: k.requestID,
	})
}

// ocrWebSocketHandler upgrades the connection and serves documents until the
// client goes away.
func (s *Server) ocrWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection to websocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("websocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

// wsReadLimit is the largest frame accepted: an upload of maxUploadMB after
// base64 expansion plus the JSON envelope.
func (s *Server) wsReadLimit() int64 {
	return (s.maxUploadMB<<20)*4/3 + wsFrameOverhead
}

func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	limit := s.wsReadLimit()
	conn.SetReadLimit(limit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	writer := &lockedWriter{w: conn}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				uploadsRejected.WithLabelValues("websocket").Inc()
				s.logger.Warn("websocket message too large", "limit_bytes", limit)
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, writer, data)
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

// handleWebSocketMessage runs one request and answers with progress messages
// followed by a result or an error.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	requestID := uuid.NewString()

	var req WebSocketOCRRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, requestID, badRequest("invalid_request", "failed to parse request: %v", err))
		return
	}
	if len(req.Image) == 0 {
		s.sendWebSocketError(conn, requestID, badRequest("invalid_request", "no image data provided"))
		return
	}
	var langs []string
	if len(req.Languages) > 0 {
		normalized, err := engine.NormalizeLanguages(req.Languages)
		if err != nil {
			s.sendWebSocketError(conn, requestID, badRequest("invalid_languages", "%v", err))
			return
		}
		langs = normalized
	}
	format, err := s.outputFormat(req.Format)
	if err != nil {
		s.sendWebSocketError(conn, requestID, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.pool.run(ctx, pipeline.Request{
		Image:     req.Image,
		Filename:  req.Filename,
		Languages: langs,
		Progress:  wsStageSink{s: s, conn: conn, requestID: requestID},
	})
	observeRun("websocket", start, res, err)
	if err != nil {
		s.sendWebSocketError(conn, requestID, err)
		return
	}

	resp := WebSocketOCRResponse{
		Type:      "result",
		Status:    "completed",
		Percent:   100,
		Result:    res,
		RequestID: requestID,
	}
	if format != pipeline.FormatJSON {
		out, err := pipeline.Render([]*pipeline.ExtractionResult{res}, format)
		if err != nil {
			s.sendWebSocketError(conn, requestID, fmt.Errorf("render %s: %w", format, err))
			return
		}
		resp.Output = out
	}
	s.sendWebSocketResponse(conn, resp)
}

// sendWebSocketResponse sends a response message over the socket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketOCRResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("failed to marshal websocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("failed to send websocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over the socket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID string, err error) {
	_, errType := errorStatus(err)
	s.sendWebSocketResponse(conn, WebSocketOCRResponse{
		Type:      "error",
		Status:    "error",
		Error:     err.Error(),
		ErrorType: errType,
		RequestID: requestID,
	})
}
