package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/response"
	"github.com/stemsi/pisaprep/internal/session"
	ws "github.com/stemsi/pisaprep/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
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

// WSHandler streams session snapshots and accepts session actions.
type WSHandler struct {
	ctrl     *session.Controller
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(ctrl *session.Controller, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		ctrl:     ctrl,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/session/stream?token=...
// Pushes the latest snapshot after every state change.
func (h *WSHandler) SessionStream(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	snapshots, cancel := h.ctrl.Subscribe()
	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		for snap := range snapshots {
			if err := conn.WriteTyped(ws.SnapshotEvent{Event: ws.EventSnapshot, Session: snap}); err != nil {
				h.log.Debug().Err(err).Msg("Snapshot push failed")
				return
			}
		}
	}()
	defer func() {
		cancel()
		<-pushed
	}()

	h.log.Info().Msg("Session stream connected")

	ctx := c.Request.Context()
	for {
		var req ws.Request
		if err := conn.ReadJSON(&req); err != nil {
			if ws.IsExpectedClose(err) {
				h.log.Debug().Msg("Connection closed")
			} else {
				h.log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		var reply interface{}
		switch req.Action {
		case ws.ActionSelect:
			accepted, err := h.ctrl.SelectOption(ctx, req.OptionID)
			if err != nil {
				h.writeSessionError(conn, err)
				continue
			}
			reply = ws.AckEvent{Event: ws.EventAck, Action: req.Action, Accepted: accepted}
		case ws.ActionNext:
			reply = ws.AckEvent{Event: ws.EventAck, Action: req.Action, Accepted: h.ctrl.Next()}
		case ws.ActionPrev:
			reply = ws.AckEvent{Event: ws.EventAck, Action: req.Action, Accepted: h.ctrl.Prev()}
		case ws.ActionSubmit:
			if _, err := h.ctrl.SubmitNow(ctx); err != nil {
				h.writeSessionError(conn, err)
				continue
			}
			reply = ws.AckEvent{Event: ws.EventAck, Action: req.Action, Accepted: true}
		case ws.ActionVisibilityLost:
			verdict, err := h.ctrl.OnVisibilityLost(ctx)
			if err != nil {
				h.writeSessionError(conn, err)
				continue
			}
			reply = ws.AckEvent{Event: ws.EventAck, Action: req.Action, Accepted: verdict != session.VerdictNone, Verdict: verdict.String()}
		case ws.ActionDismissWarning:
			h.ctrl.DismissWarning()
			reply = ws.AckEvent{Event: ws.EventAck, Action: req.Action, Accepted: true}
		case ws.ActionPing:
			reply = ws.PongResponse{Event: ws.EventPong}
		default:
			h.log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
			continue
		}

		if err := conn.WriteTyped(reply); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				h.log.Debug().Err(err).Msg("Reply failed")
			}
			return
		}
	}
}

func (h *WSHandler) writeSessionError(conn *ws.Conn, err error) {
	status, code := sessionError(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Session action failed")
	}
	_ = conn.WriteError(string(code), response.GetMessage(code))
}
