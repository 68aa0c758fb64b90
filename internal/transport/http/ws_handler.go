package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hub"
)

const defaultSendBuffer = 64

type WSHandler struct {
	service    *app.RoomService
	tokens     *auth.JWTService
	metrics    *hub.Metrics
	logger     *zap.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewWSHandler builds the websocket entry point. A nil tokens service
// disables host authentication.
func NewWSHandler(service *app.RoomService, tokens *auth.JWTService, metrics *hub.Metrics, logger *zap.Logger, sendBuffer int) *WSHandler {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &WSHandler{
		service:    service,
		tokens:     tokens,
		metrics:    metrics,
		logger:     logger,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades /ws/:code/:role and feeds inbound intents to the room service.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := strings.ToUpper(ps.ByName("code"))
	role, ok := hub.ParseRole(ps.ByName("role"))
	if !ok {
		writeError(w, http.StatusBadRequest, "role must be host or player")
		return
	}

	if role == hub.RoleHost && h.tokens != nil {
		claims, err := h.tokens.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := h.service.AuthorizeHost(r.Context(), code, claims.UserID); err != nil {
			writeServiceError(w, err)
			return
		}
	} else if _, err := h.service.RoomInfo(r.Context(), code); err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn, code, role, h.sendBuffer, h.logger)
	if err := h.service.Connect(r.Context(), code, c, role); err != nil {
		h.logger.Warn("attach connection", zap.String("room", code), zap.Error(err))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump(r.Context(), h)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrQuizNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
