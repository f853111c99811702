package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vfzsync/internal/service"
	"vfzsync/internal/tasklock"
)

type Sender interface {
	Send(ctx context.Context, req service.SendRequest) (service.SendResult, error)
}

type SendHandler struct {
	Service Sender
	Lock    tasklock.Guard
}

func (h *SendHandler) Register(r gin.IRouter) {
	r.POST("/api/send", h.send)
}

// @Summary Push a trapper value or recompute flag host groups
// @Tags send
// @Accept json
// @Param body body service.SendRequest true "mode trapper needs host, key and status"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/send [post]
func (h *SendHandler) send(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var req service.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	release, ok := acquire(c, h.Lock, tasklock.KindSend)
	if !ok {
		return
	}
	defer release()

	out, err := h.Service.Send(c.Request.Context(), req)
	switch {
	case errors.Is(err, service.ErrInvalidSend):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case err != nil:
		c.JSON(http.StatusBadGateway, apiResponse{Code: http.StatusBadGateway, Message: err.Error(), Data: out})
	default:
		Ok(c, out, nil)
	}
}
