package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/deckscan/internal/document"
	"github.com/MeKo-Tech/deckscan/internal/ocr/ocrtest"
	"github.com/MeKo-Tech/deckscan/internal/testutil"
)

func dialWebSocket(t *testing.T, s *Server, header http.Header) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/extract/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil collects messages until one of type final arrives.
func readUntil(t *testing.T, conn *websocket.Conn, final ...string) []WebSocketResponse {
	t.Helper()
	var msgs []WebSocketResponse
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
		var msg WebSocketResponse
		require.NoError(t, conn.ReadJSON(&msg))
		msgs = append(msgs, msg)
		for _, f := range final {
			if msg.Type == f {
				return msgs
			}
		}
	}
}

func TestWebSocket_ExtractWithProgress(t *testing.T) {
	s := newTestServer(t, &ocrtest.Engine{Text: "SCANNED"}, nil)
	conn := dialWebSocket(t, s, nil)

	require.NoError(t, conn.WriteJSON(WebSocketRequest{Type: "extract", Data: testutil.MixedPDF()}))
	msgs := readUntil(t, conn, wsTypeResult, wsTypeError)

	require.GreaterOrEqual(t, len(msgs), 7)
	assert.Equal(t, wsTypeAccepted, msgs[0].Type)
	requestID := msgs[0].RequestID
	require.NotEmpty(t, requestID)

	var pages []int
	for _, m := range msgs[1 : len(msgs)-1] {
		require.Equal(t, wsTypeProgress, m.Type)
		require.NotNil(t, m.Progress)
		assert.Equal(t, requestID, m.RequestID)
		assert.Equal(t, 5, m.Progress.Total)
		pages = append(pages, m.Progress.Page)
	}
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, pages)
	assert.Equal(t, 5, msgs[len(msgs)-2].Progress.Completed)

	last := msgs[len(msgs)-1]
	require.Equal(t, wsTypeResult, last.Type, last.Error)
	assert.Equal(t, requestID, last.RequestID)
	require.NotNil(t, last.Result)
	assert.Equal(t, 5, last.Result.PageCount)
	assert.Equal(t, document.MethodOCR, last.Result.Pages[3].Method)
}

func TestWebSocket_TextFormat(t *testing.T) {
	s := newTestServer(t, nil, nil)
	conn := dialWebSocket(t, s, nil)

	require.NoError(t, conn.WriteJSON(WebSocketRequest{Type: "extract", Format: "text", Data: testutil.HelloWorldPDF()}))
	msgs := readUntil(t, conn, wsTypeResult, wsTypeError)

	last := msgs[len(msgs)-1]
	require.Equal(t, wsTypeResult, last.Type)
	assert.Nil(t, last.Result)
	assert.Contains(t, last.Text, "--- Page 1 ---")
}

func TestWebSocket_Errors(t *testing.T) {
	tests := []struct {
		name      string
		send      func(*websocket.Conn) error
		errorType string
	}{
		{
			name:      "invalid json",
			send:      func(c *websocket.Conn) error { return c.WriteMessage(websocket.TextMessage, []byte("{not json")) },
			errorType: "invalid_request",
		},
		{
			name:      "unknown type",
			send:      func(c *websocket.Conn) error { return c.WriteJSON(WebSocketRequest{Type: "ocr"}) },
			errorType: "invalid_request",
		},
		{
			name:      "no data",
			send:      func(c *websocket.Conn) error { return c.WriteJSON(WebSocketRequest{Type: "extract"}) },
			errorType: "invalid_request",
		},
		{
			name: "bad options",
			send: func(c *websocket.Conn) error {
				return c.WriteJSON(WebSocketRequest{
					Type: "extract", Data: testutil.HelloWorldPDF(), Options: ExtractOptions{MaxPages: -2},
				})
			},
			errorType: "invalid_request",
		},
		{
			name: "malformed document",
			send: func(c *websocket.Conn) error {
				return c.WriteJSON(WebSocketRequest{Type: "extract", Data: []byte("garbage")})
			},
			errorType: "malformed_document",
		},
	}

	s := newTestServer(t, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dialWebSocket(t, s, nil)
			require.NoError(t, tt.send(conn))
			msgs := readUntil(t, conn, wsTypeError, wsTypeResult)

			last := msgs[len(msgs)-1]
			require.Equal(t, wsTypeError, last.Type)
			assert.Equal(t, tt.errorType, last.ErrorType)
			assert.NotEmpty(t, last.RequestID)
		})
	}
}

func TestWebSocket_ConnectionSurvivesErrors(t *testing.T) {
	s := newTestServer(t, nil, nil)
	conn := dialWebSocket(t, s, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("oops")))
	readUntil(t, conn, wsTypeError)

	require.NoError(t, conn.WriteJSON(WebSocketRequest{Type: "extract", Data: testutil.HelloWorldPDF()}))
	msgs := readUntil(t, conn, wsTypeResult, wsTypeError)
	assert.Equal(t, wsTypeResult, msgs[len(msgs)-1].Type)
}

func TestWebSocket_CheckOrigin(t *testing.T) {
	s := newTestServer(t, nil, func(c *Config) { c.CORSOrigin = "https://app.example.com" })
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/extract/ws"

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	header.Set("Origin", "https://app.example.com")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = conn.Close()
}
