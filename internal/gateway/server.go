package gateway

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/DrayChou/personal-ai-assistant/internal/agent"
	"github.com/DrayChou/personal-ai-assistant/internal/auth"
	"github.com/DrayChou/personal-ai-assistant/internal/observability"
	"github.com/DrayChou/personal-ai-assistant/internal/sessions"
)

const (
	maxFrameBytes  = 1 << 20 // 1 MiB
	maxTextRunes   = 10000
	defaultHistory = 50
)

// Server is the WebSocket JSON-RPC 2.0 gateway. One Server serves every
// connection for a process; per-connection state lives in wsSession.
type Server struct {
	Sessions       sessions.Store
	Loop           *agent.Loop
	Auth           *auth.Service
	Logger         *slog.Logger
	Metrics        *observability.Metrics
	MaxConnections int

	upgrader websocket.Upgrader
	active   atomic.Int64
}

// NewServer builds a Server. Any nil Logger/Metrics gets a safe default;
// MaxConnections defaults to 1000 per spec.md §4.1.
func NewServer(store sessions.Store, loop *agent.Loop, authSvc *auth.Service, logger *slog.Logger, metrics *observability.Metrics, maxConnections int) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	if maxConnections <= 0 {
		maxConnections = 1000
	}
	return &Server{
		Sessions:       store,
		Loop:           loop,
		Auth:           authSvc,
		Logger:         logger,
		Metrics:        metrics,
		MaxConnections: maxConnections,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs its session loop until the
// client disconnects or the server shuts down.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if int(s.active.Load()) >= s.MaxConnections {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		closeMsg := websocket.FormatCloseMessage(1013, "too many connections")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, deadlineNow())
		_ = conn.Close()
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.active.Add(1)
	s.Metrics.WSConnectionsActive.Set(float64(s.active.Load()))
	defer func() {
		s.active.Add(-1)
		s.Metrics.WSConnectionsActive.Set(float64(s.active.Load()))
	}()

	headerToken := bearerToken(r.Header.Get("Authorization"))
	newWSSession(s, conn, headerToken).run()
}
