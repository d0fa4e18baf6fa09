package realtime

import (
	"context"
	"errors"
	"net/http"

	"github.com/Baaaki/parley/internal/broker"
	"github.com/Baaaki/parley/internal/identity"
	"github.com/Baaaki/parley/internal/metrics"
	"github.com/Baaaki/parley/internal/service"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, conversationID, userID uuid.UUID) (service.Scope, error)
}

// Presence is best-effort: implementations log their own failures.
type Presence interface {
	Online(ctx context.Context, userID uuid.UUID)
	Offline(ctx context.Context, userID uuid.UUID)
}

type GatewayConfig struct {
	FrameRate   float64 // inbound frames per second per session
	FrameBurst  int
	SendBuffer  int // outbound frames queued per session
	CheckOrigin func(r *http.Request) bool
}

// Gateway runs the connection state machine up to Active: token, then
// conversation id, then membership. Every rejection happens before the
// upgrade, so a refused client gets a plain HTTP status and no socket.
type Gateway struct {
	auth     Authenticator
	authz    Authorizer
	presence Presence
	router   *Router
	group    broker.Broadcaster
	cfg      GatewayConfig
	upgrader websocket.Upgrader
}

func NewGateway(auth Authenticator, authz Authorizer, presence Presence, router *Router, group broker.Broadcaster, cfg GatewayConfig) *Gateway {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 256
	}
	if cfg.FrameBurst < 1 {
		cfg.FrameBurst = 1
	}
	return &Gateway{
		auth:     auth,
		authz:    authz,
		presence: presence,
		router:   router,
		group:    group,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// Serve handles one connection attempt for rawConversationID. The token is
// read from the "token" query parameter.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, rawConversationID string) {
	ctx := r.Context()

	// Connecting -> Authenticated
	userID, err := g.auth.Authenticate(ctx, r.URL.Query().Get("token"))
	if err != nil {
		g.reject(w, StateConnecting, err, "unauthenticated")
		return
	}

	// Authenticated -> Authorized
	conversationID, err := identity.ParseStrict(rawConversationID)
	if err != nil {
		g.reject(w, StateAuthenticated, service.ErrValidation, "bad_conversation_id")
		return
	}
	scope, err := g.authz.Authorize(ctx, conversationID, userID)
	if err != nil {
		g.reject(w, StateAuthenticated, err, "unauthorized")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		metrics.RejectedSessions.WithLabelValues("upgrade_failed").Inc()
		logger.Log.Debug("Upgrade failed", zap.Error(err))
		return
	}

	// Authorized -> Active -> Closed
	newSession(scope, conn, g).activate()
}

func (g *Gateway) reject(w http.ResponseWriter, at State, err error, reason string) {
	status := http.StatusServiceUnavailable
	switch {
	case errors.Is(err, service.ErrAuthentication):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusServiceUnavailable {
		reason = "unavailable"
	}

	metrics.RejectedSessions.WithLabelValues(reason).Inc()
	logger.Log.Info("Connection rejected",
		zap.String("state", at.String()),
		zap.Int("status", status),
		zap.Error(err),
	)
	http.Error(w, http.StatusText(status), status)
}
