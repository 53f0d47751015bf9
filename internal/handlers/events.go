package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teampulse/insight/internal/services"
	"github.com/teampulse/insight/pkg/logger"
	"github.com/teampulse/insight/pkg/response"
)

const sseHeartbeat = 25 * time.Second

// EventsHandler streams status-change deltas over SSE and WebSocket
type EventsHandler struct {
	insights *services.InsightService
	sse      *services.SSEHub
	ws       *services.WSHub
	upgrader *websocket.Upgrader
}

func NewEventsHandler(insights *services.InsightService, sse *services.SSEHub, ws *services.WSHub, upgrader *websocket.Upgrader) *EventsHandler {
	return &EventsHandler{insights: insights, sse: sse, ws: ws, upgrader: upgrader}
}

// requestedChannels accepts repeated and comma-separated channel parameters.
func requestedChannels(c *gin.Context) []string {
	var out []string
	for _, raw := range c.QueryArray("channel") {
		for _, ch := range strings.Split(raw, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				out = append(out, ch)
			}
		}
	}
	return out
}

func (h *EventsHandler) subscription(c *gin.Context) (services.Actor, []string, bool) {
	actor, ok := currentActor(c, h.insights.Planner())
	if !ok {
		return services.Actor{}, nil, false
	}
	channels, err := h.insights.SubscriptionChannels(c.Request.Context(), actor, requestedChannels(c))
	if err != nil {
		response.Error(c, err)
		return services.Actor{}, nil, false
	}
	return actor, channels, true
}

// Stream handles SSE subscriptions
// GET /api/events/stream?channel=
func (h *EventsHandler) Stream(c *gin.Context) {
	actor, channels, ok := h.subscription(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	events := h.sse.Subscribe(clientID, channels)
	defer h.sse.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Uint("user_id", actor.ID).Strs("channels", channels).
		Int("total", h.sse.ClientCount()).Msg("[SSE] Client connected")

	hello, _ := json.Marshal(gin.H{"client_id": clientID, "channels": channels})
	fmt.Fprintf(c.Writer, "event: subscribed\ndata: %s\n\n", hello)
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", event.Data)
			c.Writer.Flush()
			return true
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("[SSE] Client disconnected")
			return false
		}
	})
}

// WebSocket upgrades the connection and registers it with the hub
// GET /api/events/ws?channel=
func (h *EventsHandler) WebSocket(c *gin.Context) {
	actor, channels, ok := h.subscription(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the handshake error
		logger.Warn().Err(err).Uint("user_id", actor.ID).Msg("[WS] Upgrade failed")
		return
	}
	logger.Info().Uint("user_id", actor.ID).Strs("channels", channels).Msg("[WS] Client connected")
	h.ws.Serve(conn, actor.ID, channels)
}
