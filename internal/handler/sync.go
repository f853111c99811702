package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vfzsync/internal/repository"
	"vfzsync/internal/service"
	"vfzsync/internal/tasklock"
)

// SyncRunner runs one reconciliation pass.
type SyncRunner interface {
	Run(ctx context.Context, opts service.RunOptions) (service.RunResult, error)
}

type SyncHandler struct {
	Service SyncRunner
	Store   repository.SyncRepository
	Lock    tasklock.Guard
	Logger  *zap.Logger
}

func (h *SyncHandler) Register(r gin.IRouter) {
	g := r.Group("/api/sync")
	g.POST("", h.run)
	g.GET("/state", h.listState)
	g.GET("/runs", h.listRuns)
	g.GET("/runs/:run_id", h.getRun)
}

// @Summary Run a reconciliation pass
// @Tags sync
// @Param mode query string false "all|vpoller-fnt|fnt-zabbix"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/sync [post]
func (h *SyncHandler) run(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	mode, err := service.ParseMode(c.Query("mode"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	release, ok := acquire(c, h.Lock, tasklock.KindSync)
	if !ok {
		return
	}
	defer release()

	res, err := h.Service.Run(c.Request.Context(), service.RunOptions{Mode: mode, Trigger: service.TriggerAPI})
	if err != nil {
		if errors.Is(err, service.ErrUnknownMode) {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if h.Logger != nil {
			h.Logger.Warn("api sync finished with errors", zap.String("run_id", res.RunID), zap.Error(err))
		}
		c.JSON(http.StatusBadGateway, apiResponse{
			Code:    http.StatusBadGateway,
			Message: err.Error(),
			Data:    res,
		})
		return
	}
	Ok(c, res, nil)
}

// @Summary List per-scope sync state
// @Tags sync
// @Success 200 {object} apiResponse
// @Router /api/sync/state [get]
func (h *SyncHandler) listState(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusServiceUnavailable, "persistence disabled", nil)
		return
	}
	items, err := h.Store.ListSyncStates(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

var syncRunOrder = map[string]string{
	"started_at":  "started_at",
	"finished_at": "finished_at",
	"duration":    "duration_ms",
}

// @Summary List sync runs
// @Tags sync
// @Param scope query string false "vpoller-fnt|fnt-zabbix"
// @Param status query string false "ok|guarded|failed"
// @Param since query string false "RFC3339 time or duration like 24h"
// @Param order_by query string false "started_at|finished_at|duration"
// @Param asc query bool false "ascending order"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/sync/runs [get]
func (h *SyncHandler) listRuns(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusServiceUnavailable, "persistence disabled", nil)
		return
	}
	since, ok := timeQueryPtr(c, "since")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid since", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSyncRunsParams{
		Limit:   limit,
		Offset:  offset,
		Scope:   stringQueryPtr(c, "scope"),
		Status:  stringQueryPtr(c, "status"),
		Since:   since,
		OrderBy: syncRunOrder[strings.ToLower(strings.TrimSpace(c.Query("order_by")))],
		Asc:     boolPtr(strings.EqualFold(c.Query("asc"), "true")),
	}
	items, err := h.Store.ListSyncRuns(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Store.CountSyncRuns(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get the passes of one run
// @Tags sync
// @Param run_id path string true "run id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/sync/runs/{run_id} [get]
func (h *SyncHandler) getRun(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusServiceUnavailable, "persistence disabled", nil)
		return
	}
	runID := strings.TrimSpace(c.Param("run_id"))
	items, err := h.Store.GetSyncRun(c.Request.Context(), runID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if len(items) == 0 {
		Error(c, http.StatusNotFound, "run not found", nil)
		return
	}
	Ok(c, items, nil)
}

// acquire takes the task lock for kind, answering 409 when it is held.
func acquire(c *gin.Context, lock tasklock.Guard, kind string) (func(), bool) {
	if lock == nil {
		return func() {}, true
	}
	release, ok, err := lock.TryAcquire(c.Request.Context(), kind)
	if err != nil {
		Error(c, http.StatusServiceUnavailable, err.Error(), nil)
		return nil, false
	}
	if !ok {
		Error(c, http.StatusConflict, kind+" already running", map[string]any{"kind": kind})
		return nil, false
	}
	return release, true
}
