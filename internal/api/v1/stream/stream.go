// Package stream serves notification hub topics as server-sent events.
package stream

import (
	"errors"
	"net/http"
	"time"

	"payrank-backend/internal/notify"
	"payrank-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

const DefaultHeartbeat = 25 * time.Second

// Serve forwards every hub message on topics to the client until it disconnects or the hub
// stops. Each message becomes an SSE event named after the event type.
func Serve(c *gin.Context, hub *notify.Hub, heartbeat time.Duration, topics ...string) {
	ctx := c.Request.Context()
	sub, err := hub.Subscribe(ctx, topics...)
	if err != nil {
		if errors.Is(err, notify.ErrHubClosed) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, utils.NewErrorResponse(http.StatusServiceUnavailable, err.Error()))
		}
		return
	}
	defer hub.Unsubscribe(sub)

	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent(msg.Event.Type, msg.Event.Payload)
		case t := <-ticker.C:
			c.SSEvent("ping", t.Unix())
		case <-ctx.Done():
			return
		}
		c.Writer.Flush()
	}
}
