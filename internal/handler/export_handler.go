package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/facetrack/facetrack-api/internal/service"
	"github.com/facetrack/facetrack-api/pkg/response"
)

// ExportHandler streams generated reports to the caller.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Attendance godoc
// @Summary Export the attendance log
// @Tags Exports
// @Produce octet-stream
// @Security BearerAuth
// @Param format query string false "csv or pdf" default(csv)
// @Param from query string false "From date YYYY-MM-DD"
// @Param to query string false "To date YYYY-MM-DD"
// @Success 200
// @Router /exports/attendance [get]
func (h *ExportHandler) Attendance(c *gin.Context) {
	from, to, err := parseDateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.AttendanceReport(c.Request.Context(), scopeFromContext(c), format, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

// Statistics godoc
// @Summary Export the per-student statistics table
// @Tags Exports
// @Produce octet-stream
// @Security BearerAuth
// @Param format query string false "csv or pdf" default(csv)
// @Success 200
// @Router /exports/statistics [get]
func (h *ExportHandler) Statistics(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.StatisticsReport(c.Request.Context(), scopeFromContext(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

func serveExport(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
