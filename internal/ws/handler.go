package ws

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kandev/agentexec/internal/bus"
	"github.com/kandev/agentexec/internal/obslog"
	"go.uber.org/zap"
)

// subscriberCapCloseCode is the close code sent to a connection
// rejected for exceeding a stream's subscriber cap (spec.md §4.1/§8).
const subscriberCapCloseCode = 4004

// Handler upgrades HTTP requests to websocket connections and wires
// them to the Event Bus as subscribers.
type Handler struct {
	bus            *bus.Bus
	allowedOrigins map[string]struct{}
	logger         *obslog.Logger
}

// NewHandler builds a Handler. allowedOrigins is the process-wide
// config.ServerConfig.AllowedOrigins list; an empty list allows every
// origin (matching the teacher's permissive default). A request with
// no Origin header is always allowed.
func NewHandler(b *bus.Bus, allowedOrigins []string, logger *obslog.Logger) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		bus:            b,
		allowedOrigins: allowed,
		logger:         logger.WithFields(zap.String("component", "ws_handler")),
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := h.allowedOrigins[origin]; ok {
		return true
	}
	if u, err := url.Parse(origin); err == nil {
		if _, ok := h.allowedOrigins[u.Host]; ok {
			return true
		}
	}
	return false
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

// HandleTaskStream serves GET /ws/task/:id (spec.md §6).
func (h *Handler) HandleTaskStream(c *gin.Context) {
	h.serve(c, "task/"+c.Param("id"))
}

// HandleConsoleStream serves GET /ws/console/:id (spec.md §6).
func (h *Handler) HandleConsoleStream(c *gin.Context) {
	h.serve(c, "conversation/"+c.Param("id"))
}

func (h *Handler) serve(c *gin.Context, streamID string) {
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := NewClient(clientID, conn, h.logger)

	backlog, err := h.bus.Subscribe(streamID, client)
	if err != nil {
		h.logger.Debug("rejecting subscriber over stream cap",
			zap.String("stream", streamID), zap.Error(err))
		client.CloseWithCode(subscriberCapCloseCode, err.Error())
		return
	}

	// Deliver the replay backlog straight to the connection before any
	// live frame can reach it: Subscribe has already made client a live
	// subscriber, so a concurrent Publish may be queuing frames onto
	// client's send channel right now, but those can't reach the wire
	// until writePump starts below (spec.md §8.3).
	if err := client.DeliverBacklog(backlog); err != nil {
		h.logger.Debug("failed to deliver replay backlog", zap.Error(err))
		h.bus.Unsubscribe(streamID, client.ID())
		return
	}

	go client.writePump()

	client.readPump(func() {
		h.bus.Unsubscribe(streamID, client.ID())
	})
}
