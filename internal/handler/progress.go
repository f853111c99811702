package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"vfzsync/internal/progress"
)

const progressWriteTimeout = 5 * time.Second

// ProgressHandler streams pass progress events over a websocket.
type ProgressHandler struct {
	Hub    *progress.Hub
	Logger *zap.Logger
	// OriginPatterns allowed for cross-origin upgrades.
	OriginPatterns []string
}

func (h *ProgressHandler) Register(r gin.IRouter) {
	r.GET("/api/sync/events", h.stream)
}

// @Summary Stream reconciliation progress (websocket)
// @Tags sync
// @Success 101 {string} string "switching protocols"
// @Router /api/sync/events [get]
func (h *ProgressHandler) stream(c *gin.Context) {
	if h.Hub == nil {
		Error(c, http.StatusServiceUnavailable, "progress hub unavailable", nil)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		h.log().Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	events, detach := h.Hub.Subscribe(32)
	defer detach()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// once the peer goes away.
	ctx := conn.CloseRead(c.Request.Context())

	if last, ok := h.Hub.Last(); ok {
		if err := writeEvent(ctx, conn, last); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "hub closed")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				h.log().Debug("progress stream closed", zap.Error(err))
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev progress.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, progressWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (h *ProgressHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
