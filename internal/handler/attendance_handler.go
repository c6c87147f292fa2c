package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/facetrack/facetrack-api/internal/models"
	"github.com/facetrack/facetrack-api/internal/service"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
	"github.com/facetrack/facetrack-api/pkg/response"
)

// AttendanceHandler exposes the capture flow and manual record endpoints.
type AttendanceHandler struct {
	capture    *service.CaptureService
	attendance *service.AttendanceService
	metrics    *service.MetricsService
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(capture *service.CaptureService, attendance *service.AttendanceService, metrics *service.MetricsService) *AttendanceHandler {
	return &AttendanceHandler{capture: capture, attendance: attendance, metrics: metrics}
}

// Capture godoc
// @Summary Process one camera frame against a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CaptureRequest true "Capture frame"
// @Success 200 {object} response.Envelope
// @Router /attendance/capture [post]
func (h *AttendanceHandler) Capture(c *gin.Context) {
	var req service.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.capture.Capture(c.Request.Context(), scopeFromContext(c), req)
	if err != nil {
		if h.metrics != nil {
			h.metrics.ObserveCapture("error")
		}
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveCapture(string(result.Status))
		if result.Status == service.CaptureMarked {
			h.metrics.RecordWritten()
		}
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Record godoc
// @Summary Manually mark a student present
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.RecordRequest true "Record payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/records [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	var req service.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	outcome, err := h.attendance.RecordManual(c.Request.Context(), scopeFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil && outcome.Status == models.AttendanceMarked {
		h.metrics.RecordWritten()
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param from query string false "From date YYYY-MM-DD"
// @Param to query string false "To date YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /attendance/records [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	from, to, err := parseDateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.attendance.List(c.Request.Context(), scopeFromContext(c), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

func parseDateRange(c *gin.Context) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid from date, expected YYYY-MM-DD")
		}
		from = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid to date, expected YYYY-MM-DD")
		}
		to = &parsed
	}
	return from, to, nil
}
