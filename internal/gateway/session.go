package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsMaxPayloadBytes = maxFrameBytes
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
	wsPingInterval    = 20 * time.Second
)

// wsSession is one connected client. Each frame is dispatched on its own
// goroutine (handlers may block on the agent loop for the whole turn), so
// readLoop stays free to keep calling ReadMessage and notices a client
// disconnect the moment it happens rather than only after the in-flight
// turn finishes. Writes go through a buffered channel so a slow client
// can't stall a handler goroutine.
type wsSession struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	headerToken string
	authedToken string
}

func newWSSession(s *Server, conn *websocket.Conn, headerToken string) *wsSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsSession{
		server:      s,
		conn:        conn,
		send:        make(chan []byte, 64),
		ctx:         ctx,
		cancel:      cancel,
		headerToken: headerToken,
	}
}

func (s *wsSession) run() {
	go s.writeLoop()
	s.readLoop()
	// Wait for any in-flight frame handlers to observe the cancellation
	// and return before closing send, so none of them can write to it
	// after it's closed.
	s.wg.Wait()
	s.close()
}

func (s *wsSession) close() {
	s.cancel()
	close(s.send)
	_ = s.conn.Close()
}

func (s *wsSession) readLoop() {
	s.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			// The client disconnected or the connection otherwise broke.
			// Cancel right away so an in-flight turn's agent task stops
			// iterating instead of running to completion: spec.md §5's
			// disconnect-cancels-the-token contract depends on this firing
			// as soon as the read fails, not after close() runs later.
			s.cancel()
			return
		}
		if msgType != websocket.TextMessage {
			// spec.md §4.1: binary frames are rejected, text frames only.
			continue
		}
		frame := data
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleFrame(frame)
		}()
	}
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(deadlineNow())
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(deadlineNow())
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (s *wsSession) handleFrame(raw []byte) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.writeResponse(newErrorResponse(nil, CodeParseError, "malformed JSON"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeResponse(newErrorResponse(req.ID, CodeInvalidRequest, "not a valid JSON-RPC 2.0 request"))
		return
	}
	if err := validateFrame(raw, &req); err != nil {
		s.writeResponse(newErrorResponse(req.ID, CodeInvalidParams, err.Error()))
		return
	}

	token := req.token()
	if s.headerToken != "" {
		token = s.headerToken
	}

	if req.Method != "health" && s.server.Auth != nil && s.server.Auth.Enabled() {
		if err := s.server.Auth.Authenticate(token); err != nil {
			s.writeResponse(newErrorResponse(req.ID, CodeUnauthorized, "unauthorized"))
			return
		}
	}

	// The handler itself must never take down the connection: a panic or
	// unexpected error becomes -32603 and the session keeps running.
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.server.Logger.Error("gateway: handler panicked", "method", req.Method, "panic", r)
				s.writeResponse(newErrorResponse(req.ID, CodeInternalError, "internal error"))
			}
		}()
		s.dispatch(req)
	}()
}

func (s *wsSession) dispatch(req request) {
	switch req.Method {
	case "health":
		s.handleHealth(req)
	case "chat.send":
		s.handleChatSend(req, false)
	case "chat.send_stream":
		s.handleChatSend(req, true)
	case "chat.history":
		s.handleChatHistory(req)
	case "sessions.list":
		s.handleSessionsList(req)
	case "sessions.delete":
		s.handleSessionsDelete(req)
	default:
		s.writeResponse(newErrorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

func (s *wsSession) writeResponse(resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	s.trySend(data)
}

func (s *wsSession) writeEvent(e event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	s.trySend(data)
}

func (s *wsSession) trySend(data []byte) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.send <- data:
	case <-s.ctx.Done():
	}
}

// token reads the "token" field out of params without requiring every
// method's typed params struct to carry it.
func (r request) token() string {
	if len(r.Params) == 0 {
		return ""
	}
	var t struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(r.Params, &t)
	return t.Token
}
