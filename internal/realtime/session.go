package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Baaaki/parley/internal/broker"
	"github.com/Baaaki/parley/internal/metrics"
	"github.com/Baaaki/parley/internal/service"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10 // 54s
	maxFrameSize = 512 * 1024
)

// State is the connection lifecycle. Transitions only move forward, except
// that Closed is reachable from every state.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateAuthorized
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthorized:
		return "authorized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is one live connection bound to one Scope. The reader goroutine
// owns inbound processing, so a connection's frames are handled strictly in
// arrival order; the writer goroutine owns every write to conn.
type Session struct {
	id       string
	scope    service.Scope
	conn     *websocket.Conn
	router   *Router
	group    broker.Broadcaster
	presence Presence
	limiter  *rate.Limiter

	send  chan []byte
	done  chan struct{}
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	opened    time.Time
}

func newSession(scope service.Scope, conn *websocket.Conn, g *Gateway) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       uuid.NewString(),
		scope:    scope,
		conn:     conn,
		router:   g.router,
		group:    g.group,
		presence: g.presence,
		limiter:  rate.NewLimiter(rate.Limit(g.cfg.FrameRate), g.cfg.FrameBurst),
		send:     make(chan []byte, g.cfg.SendBuffer),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		opened:   time.Now(),
	}
	s.state.Store(int32(StateAuthorized))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Deliver queues a group payload. A member whose queue is full is closed:
// it has fallen behind and must reconnect and re-page.
func (s *Session) Deliver(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- payload:
		return true
	default:
		go s.Close("send queue full")
		return false
	}
}

// activate joins the group and starts the pumps. It blocks in the read loop
// until the connection ends, then tears the session down.
func (s *Session) activate() {
	s.group.Join(s.scope.Key(), s)
	s.state.Store(int32(StateActive))
	metrics.ActiveSessions.Inc()
	s.presence.Online(s.ctx, s.scope.UserID)

	logger.Log.Info("Session active",
		zap.String("session_id", s.id),
		zap.String("conversation_id", s.scope.ConversationID.String()),
		zap.String("user_id", s.scope.UserID.String()),
	)

	go s.writePump()
	s.readPump()
	s.Close("read loop ended")
}

func (s *Session) readPump() {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("Session read error", zap.String("session_id", s.id), zap.Error(err))
			}
			return
		}

		if !s.limiter.Allow() {
			s.reply(errorFrame(CodeRateLimited, "too many frames", ""))
			continue
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.reply(errorFrame(CodeBadFrame, "frame is not a JSON object", ""))
			continue
		}
		if in.Type == "" {
			in.Type = EventMessage
		}
		label := string(in.Type)
		if !in.Type.known() {
			label = "unknown"
		}
		metrics.InboundFrames.WithLabelValues(label).Inc()

		if out := s.router.Dispatch(s.ctx, s.scope, in); out != nil {
			s.reply(out)
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.Close("write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close("ping failed")
				return
			}
		case <-s.done:
			return
		}
	}
}

// reply queues a frame for this connection only.
func (s *Session) reply(out *Outbound) {
	payload, err := json.Marshal(out)
	if err != nil {
		logger.Log.Error("Failed to encode reply", zap.String("session_id", s.id), zap.Error(err))
		return
	}
	s.Deliver(payload)
}

// Close leaves the group and releases the session. Safe to call any number
// of times from any goroutine.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosed)))
		if prev == StateActive {
			s.group.Leave(s.scope.Key(), s)
			metrics.ActiveSessions.Dec()
		}
		close(s.done)
		s.cancel()

		// Both calls are safe alongside the pumps and unblock the reader.
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(writeWait))
		_ = s.conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.presence.Offline(ctx, s.scope.UserID)
		cancel()

		logger.Log.Info("Session closed",
			zap.String("session_id", s.id),
			zap.String("conversation_id", s.scope.ConversationID.String()),
			zap.String("user_id", s.scope.UserID.String()),
			zap.String("reason", reason),
			zap.Duration("duration", time.Since(s.opened).Round(time.Second)),
		)
	})
}
