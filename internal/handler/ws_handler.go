package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/middleware"
	"github.com/talentgrid/assessment-backend/internal/response"
	"github.com/talentgrid/assessment-backend/internal/service"
	ws "github.com/talentgrid/assessment-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live session: candidate actions in, timer ticks,
// verdicts and the final result out.
type WSHandler struct {
	rdb            *redis.Client
	sessionService *service.ExamSessionService
	runLimiter     *middleware.RateLimiter
	log            zerolog.Logger
	upgrader       websocket.Upgrader
	baseCtx        context.Context
}

// WSOption configures a WSHandler.
type WSOption func(*WSHandler)

// WithStreamContext bounds every stream by ctx. Cancelling it closes open
// streams with a going-away frame.
func WithStreamContext(ctx context.Context) WSOption {
	return func(h *WSHandler) { h.baseCtx = ctx }
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, sessionService *service.ExamSessionService, runLimiter *middleware.RateLimiter, log zerolog.Logger, allowedOrigins []string, opts ...WSOption) *WSHandler {
	h := &WSHandler{
		rdb:            rdb,
		sessionService: sessionService,
		runLimiter:     runLimiter,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
		baseCtx:        context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SessionStream godoc
// WS /ws/v1/candidate/sessions/:session_id/stream?token=...
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID := middleware.GetSessionID(c)
	candidateID := claims.UserID()

	// Ownership and existence are checked before the upgrade so failures
	// are plain HTTP errors.
	state, err := h.sessionService.State(c.Request.Context(), sessionID, candidateID)
	if err != nil {
		failWith(c, err, "Session stream lookup failed")
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("session_id", sessionID.String()).
		Str("candidate_id", candidateID).
		Logger()
	wsLog.Info().Msg("Candidate connected")

	ctx, cancel := context.WithCancel(h.baseCtx)
	defer cancel()
	stop := conn.CloseWhenDone(ctx)
	defer stop()

	// Subscribe before sending the snapshot so no tick is lost in between.
	sub := h.rdb.Subscribe(ctx, config.CacheKey.SessionEventsChannel(sessionID.String()))
	defer sub.Close()

	if err := conn.WriteJSON(ws.EventState, state); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go conn.KeepAlive(done)
	go h.forwardEvents(ctx, conn, sub, wsLog)

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		h.handleAction(ctx, conn, sessionID, candidateID, &msg)
	}
}

// forwardEvents relays pub/sub events to the client, wrapped in the
// ResponsePayload envelope, until ctx is done.
func (h *WSHandler) forwardEvents(ctx context.Context, conn *ws.Conn, sub *redis.PubSub, log zerolog.Logger) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var head struct {
				Type ws.Event `json:"type"`
			}
			if json.Unmarshal([]byte(msg.Payload), &head) != nil {
				continue
			}
			if err := conn.WriteJSON(head.Type, json.RawMessage(msg.Payload)); err != nil {
				log.Debug().Err(err).Msg("Event forward failed")
				return
			}
		}
	}
}

func (h *WSHandler) handleAction(ctx context.Context, conn *ws.Conn, sessionID uuid.UUID, candidateID string, msg *ws.RequestPayload) {
	needsIndex := msg.Action == ws.ActionNavigate || msg.Action == ws.ActionEdit || msg.Action == ws.ActionRun
	if needsIndex && msg.Index == nil {
		_ = conn.WriteError(string(response.ErrValidation), "index is required")
		return
	}

	var err error
	switch msg.Action {
	case ws.ActionPing:
		_ = conn.WriteJSON(ws.EventPong, nil)
		return

	case ws.ActionNavigate:
		state, navErr := h.sessionService.Navigate(ctx, sessionID, candidateID, *msg.Index)
		if err = navErr; err == nil {
			_ = conn.WriteJSON(ws.EventState, state)
		}

	case ws.ActionEdit:
		if len(msg.Source) > ws.MaxSourceBytes {
			_ = conn.WriteError(string(response.ErrValidation), "source too large")
			return
		}
		if err = h.sessionService.EditAnswer(ctx, sessionID, candidateID, *msg.Index, msg.Source); err == nil {
			_ = conn.WriteJSON(ws.EventSaved, map[string]int{"index": *msg.Index})
		}

	case ws.ActionRun:
		if !h.runLimiter.Allow(candidateID) {
			_ = conn.WriteError(string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded))
			return
		}
		// Verdicts reach the client through the pub/sub event.
		_, err = h.sessionService.RunQuestion(ctx, sessionID, candidateID, *msg.Index)

	case ws.ActionSubmit:
		// The submitted event carries the result.
		_, err = h.sessionService.Submit(ctx, sessionID, candidateID)

	default:
		_ = conn.WriteError(string(response.ErrValidation), "unknown action: "+string(msg.Action))
		return
	}

	if err != nil {
		_, code, ok := errorStatus(err)
		if !ok {
			h.log.Error().Err(err).Str("session_id", sessionID.String()).Str("action", string(msg.Action)).Msg("Action failed")
		}
		_ = conn.WriteError(string(code), err.Error())
	}
}
