package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/recleague/tracker/realtime"
	"github.com/recleague/tracker/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict Origin to the frontend host before exposing this
	// publicly.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub            *realtime.Hub
	sessionService services.SessionService
	logger         *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, sessionService services.SessionService, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, sessionService: sessionService, logger: logger}
}

// ServeWs subscribes a client to one session's event stream. Clients only
// listen; all mutations go through the HTTP API.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	// Reject rooms for sessions that do not exist.
	if _, err := h.sessionService.GetSessionState(r.Context(), sessionID); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			notFoundResponse(w, r)
			return
		}
		serverErrorResponse(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection",
			slog.Int("session_id", sessionID), slog.Any("error", err))
		return
	}

	client := &realtime.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: realtime.SessionRoom(sessionID),
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
