package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/deckscan/internal/document"
	"github.com/MeKo-Tech/deckscan/internal/extract"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocket message types.
const (
	wsTypeExtract  = "extract"
	wsTypeAccepted = "accepted"
	wsTypeProgress = "progress"
	wsTypeResult   = "result"
	wsTypeError    = "error"
)

// WebSocketRequest is a client message. Data carries the PDF bytes
// (base64 in JSON).
type WebSocketRequest struct {
	Type    string         `json:"type"`
	Data    []byte         `json:"data,omitempty"`
	Format  string         `json:"format,omitempty"`
	Options ExtractOptions `json:"options"`
}

// WebSocketProgress reports a finished page.
type WebSocketProgress struct {
	Page      int    `json:"page"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Method    string `json:"method"`
}

// WebSocketResponse is a server message.
type WebSocketResponse struct {
	Type      string             `json:"type"`
	RequestID string             `json:"request_id,omitempty"`
	Progress  *WebSocketProgress `json:"progress,omitempty"`
	Result    *document.Result   `json:"result,omitempty"`
	Text      string             `json:"text,omitempty"`
	Error     string             `json:"error,omitempty"`
	ErrorType string             `json:"error_type,omitempty"`
}

// wsConn serializes writes to a connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(s *Server, resp WebSocketResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal websocket response", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("failed to send websocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (s *Server) upgrader() *websocket.Upgrader {
	origins := splitOrigins(s.corsOrigin)
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
}

// extractWebSocketHandler streams per-page progress while extracting
// documents sent over the connection.
func (s *Server) extractWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("websocket connection established", "remote", getClientIP(r))

	conn.SetReadLimit(s.maxUploadMB*1024*1024*4/3 + 4096)
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

	wc := &wsConn{conn: conn}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(r.Context(), wc, data)
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

func (s *Server) handleWebSocketMessage(ctx context.Context, wc *wsConn, data []byte) {
	requestID := uuid.NewString()

	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		wc.send(s, WebSocketResponse{
			Type: wsTypeError, RequestID: requestID, ErrorType: "invalid_request",
			Error: fmt.Sprintf("failed to parse request: %v", err),
		})
		return
	}
	if req.Type != wsTypeExtract {
		wc.send(s, WebSocketResponse{
			Type: wsTypeError, RequestID: requestID, ErrorType: "invalid_request",
			Error: fmt.Sprintf("unsupported request type %q", req.Type),
		})
		return
	}
	if len(req.Data) == 0 {
		wc.send(s, WebSocketResponse{
			Type: wsTypeError, RequestID: requestID, ErrorType: "invalid_request",
			Error: "no PDF data provided",
		})
		return
	}
	if err := req.Options.Validate(); err != nil {
		wc.send(s, WebSocketResponse{
			Type: wsTypeError, RequestID: requestID, ErrorType: "invalid_request", Error: err.Error(),
		})
		return
	}
	uploadSizeBytes.Observe(float64(len(req.Data)))

	wc.send(s, WebSocketResponse{Type: wsTypeAccepted, RequestID: requestID})

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	progress := func(p extract.Progress) {
		wc.send(s, WebSocketResponse{
			Type:      wsTypeProgress,
			RequestID: requestID,
			Progress: &WebSocketProgress{
				Page:      p.Page,
				Total:     p.Total,
				Completed: p.Completed,
				Method:    p.Method.String(),
			},
		})
	}

	res, err := s.runExtraction(ctx, "websocket", req.Data, req.Options, progress)
	if err != nil {
		_, errorType := classifyError(err)
		wc.send(s, WebSocketResponse{
			Type: wsTypeError, RequestID: requestID, ErrorType: errorType, Error: err.Error(),
		})
		return
	}

	resp := WebSocketResponse{Type: wsTypeResult, RequestID: requestID}
	if req.Format == formatText {
		resp.Text = res.FullText
	} else {
		resp.Result = res
	}
	wc.send(s, resp)
}
