package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"groupchat-service/internal/config"
	"groupchat-service/internal/hub"
	"groupchat-service/internal/logging"
	"groupchat-service/internal/observability"
)

const lifecycleRoutingKey = "ws_events.groups"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades GET /ws and runs the connection until it closes.
type Handler struct {
	hub    *hub.Hub
	router *Router
	cfg    config.WebSocketConfig
}

func NewHandler(h *hub.Hub, router *Router, cfg config.WebSocketConfig) *Handler {
	return &Handler{hub: h, router: router, cfg: cfg}
}

// Handle blocks for the lifetime of the socket. On exit the connection is
// unregistered, which leaves every joined room and settles presence.
func (h *Handler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     trace.SpanFromContext(c.Request.Context()).SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, h.cfg, info)

	logger := logging.Ctx(c.Request.Context()).With().Str(logging.FieldConnID, info.ConnID).Logger()
	ctx := logging.WithLogger(context.WithoutCancel(c.Request.Context()), logger)
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)

	observability.IncWSActive()
	_ = observability.PublishEvent(ctx, lifecycleRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   info.lifecycle("ws_connect", 0, ""),
	}, headers)
	logger.Info().Str(logging.FieldClientIP, info.IP).Msg("websocket connected")

	go client.WritePump()
	readErr := client.ReadPump(func(msg []byte) {
		h.router.Handle(ctx, client, msg)
	})

	userID, _ := h.hub.Unregister(client.ID())
	client.Close()
	observability.DecWSActive()

	reason := ""
	if readErr != nil {
		reason = readErr.Error()
	}
	_ = observability.PublishEvent(ctx, lifecycleRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_disconnect",
		Payload:   info.lifecycle("ws_disconnect", userID, reason),
	}, headers)
	logger.Info().Int(logging.FieldUserID, userID).Str("reason", reason).Msg("websocket disconnected")
}
