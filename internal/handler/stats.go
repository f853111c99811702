package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"vfzsync/internal/service"
	"vfzsync/internal/tasklock"
)

type StatsProvider interface {
	Stats(ctx context.Context) (service.Stats, error)
}

type StatsHandler struct {
	Service StatsProvider
	Lock    tasklock.Guard
}

func (h *StatsHandler) Register(r gin.IRouter) {
	r.GET("/api/stats", h.stats)
}

// @Summary Pending operator work and active flag problems
// @Tags stats
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/stats [get]
func (h *StatsHandler) stats(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	release, ok := acquire(c, h.Lock, tasklock.KindStats)
	if !ok {
		return
	}
	defer release()

	out, err := h.Service.Stats(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, nil)
}
