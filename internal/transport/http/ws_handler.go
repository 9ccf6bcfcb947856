package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/protocol"
)

const (
	sendBufferSize = 256
	maxMessageSize = 4096
	writeWait      = 10 * time.Second
)

// WSHandler upgrades HTTP requests to websockets and drives the
// per-connection read loop and write pump. Each connection gets a
// fresh session id; all engine interaction is keyed by it.
type WSHandler struct {
	engine    *app.Engine
	presence  app.PresenceStore
	upgrader  websocket.Upgrader
	heartbeat time.Duration
	timeout   time.Duration
	clock     clockwork.Clock
	log       zerolog.Logger
}

func NewWSHandler(engine *app.Engine, presence app.PresenceStore, heartbeat, timeout time.Duration, clock clockwork.Clock, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		engine:   engine,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		heartbeat: heartbeat,
		timeout:   timeout,
		clock:     clock,
		log:       log.With().Str("component", "ws").Logger(),
	}
}

// ServeWS accepts a websocket client. The userId query parameter is
// optional; hosts identify themselves with it, players and spectators
// connect anonymously and acquire a role by joining a lobby.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	var userID *int64
	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid userId", http.StatusBadRequest)
			return
		}
		userID = &id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	send := make(chan []byte, sendBufferSize)
	registry := h.engine.Registry()
	registry.Register(app.ConnInfo{
		SessionID: sessionID,
		UserID:    userID,
		Role:      domain.RoleViewer,
		LastSeen:  h.clock.Now(),
	}, send)

	log := h.log.With().Str("session_id", sessionID).Logger()
	log.Info().Msg("connection established")

	writerDone := make(chan struct{})
	go h.writePump(conn, sessionID, send, writerDone)

	h.reply(sessionID, protocol.NewWelcome(sessionID))
	h.reply(sessionID, protocol.NewCounter(registry.Count()))

	h.readLoop(r, conn, sessionID, log)

	if err := h.presence.Forget(r.Context(), sessionID); err != nil {
		log.Warn().Err(err).Msg("presence forget failed")
	}
	// Disconnect removes the registry entry, which closes the send
	// channel and lets the write pump drain out.
	h.engine.Disconnect(r.Context(), sessionID)
	<-writerDone
	log.Info().Msg("connection closed")
}

// writePump is the sole writer on the socket. It drains the send
// channel and emits protocol-level pings with a fresh visitor counter
// on every heartbeat.
func (h *WSHandler) writePump(conn *websocket.Conn, sessionID string, send <-chan []byte, done chan<- struct{}) {
	defer close(done)
	ticker := h.clock.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), h.clock.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(h.clock.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.Chan():
			_ = conn.SetWriteDeadline(h.clock.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			if counter, err := protocol.Encode(protocol.NewCounter(h.engine.Registry().Count())); err == nil {
				_ = conn.SetWriteDeadline(h.clock.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, counter); err != nil {
					return
				}
			}
			if err := h.presence.Touch(context.Background(), sessionID); err != nil {
				h.log.Warn().Err(err).Str("session_id", sessionID).Msg("presence touch failed")
			}
		}
	}
}

func (h *WSHandler) readLoop(r *http.Request, conn *websocket.Conn, sessionID string, log zerolog.Logger) {
	registry := h.engine.Registry()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(h.clock.Now().Add(h.timeout))
	conn.SetPongHandler(func(string) error {
		registry.Touch(sessionID, h.clock.Now())
		return conn.SetReadDeadline(h.clock.Now().Add(h.timeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		registry.Touch(sessionID, h.clock.Now())
		_ = conn.SetReadDeadline(h.clock.Now().Add(h.timeout))

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		h.handle(r, sessionID, msg, log)
	}
}

func (h *WSHandler) handle(r *http.Request, sessionID string, msg protocol.Inbound, log zerolog.Logger) {
	ctx := r.Context()
	switch m := msg.(type) {
	case protocol.Ping:
		h.reply(sessionID, protocol.NewPong(h.clock.Now().Unix()))
	case protocol.JoinLobby:
		if err := h.engine.JoinLobby(ctx, sessionID, m); err != nil {
			h.sendError(sessionID, err, log)
		}
	case protocol.StartGame:
		if err := h.engine.StartGame(ctx, sessionID, m); err != nil {
			h.sendError(sessionID, err, log)
		}
	case protocol.SubmitAnswer:
		if err := h.engine.SubmitAnswer(ctx, sessionID, m); err != nil {
			h.sendError(sessionID, err, log)
		}
	case protocol.NextQuestion:
		if err := h.engine.NextQuestion(ctx, sessionID, m); err != nil {
			h.sendError(sessionID, err, log)
		}
	case protocol.Reconnect:
		if err := h.engine.Reconnect(ctx, sessionID, m); err != nil {
			h.sendError(sessionID, err, log)
		}
	}
}

func (h *WSHandler) reply(sessionID string, out protocol.Outbound) {
	h.engine.Dispatcher().ToConn(sessionID, out)
}

// sendError translates domain failures into client-visible error
// frames. Unexpected errors get a generic message to avoid leaking
// internals.
func (h *WSHandler) sendError(sessionID string, err error, log zerolog.Logger) {
	msg := "internal error"
	for _, sentinel := range []error{
		domain.ErrGameNotFound,
		domain.ErrGameNotJoinable,
		domain.ErrGameAlreadyStarted,
		domain.ErrGameEnded,
		domain.ErrNotHost,
		domain.ErrNicknameTaken,
		domain.ErrPlayerNotFound,
		domain.ErrQuestionNotFound,
		domain.ErrDuplicateAnswer,
		domain.ErrSessionNotFound,
		domain.ErrSessionActive,
	} {
		if errors.Is(err, sentinel) {
			msg = sentinel.Error()
			break
		}
	}
	if msg == "internal error" {
		log.Error().Err(err).Msg("request failed")
	}
	h.reply(sessionID, protocol.NewError(msg))
}
