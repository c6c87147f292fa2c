package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/facetrack/facetrack-api/internal/service"
	"github.com/facetrack/facetrack-api/pkg/response"
)

// StatsHandler exposes the derived statistics endpoints.
type StatsHandler struct {
	stats *service.StatsService
}

// NewStatsHandler constructs a stats handler.
func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// Overview godoc
// @Summary Dashboard overview for the caller's scope
// @Tags Statistics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /stats/overview [get]
func (h *StatsHandler) Overview(c *gin.Context) {
	overview, err := h.stats.Overview(c.Request.Context(), scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// Aggregate godoc
// @Summary Scope-wide aggregate statistics
// @Tags Statistics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /stats/aggregate [get]
func (h *StatsHandler) Aggregate(c *gin.Context) {
	aggregate, err := h.stats.Aggregate(c.Request.Context(), scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, aggregate, nil)
}
