package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/facetrack/facetrack-api/internal/service"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
	"github.com/facetrack/facetrack-api/pkg/response"
)

// SessionHandler exposes session endpoints.
type SessionHandler struct {
	sessions *service.SessionService
	stats    *service.StatsService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(sessions *service.SessionService, stats *service.StatsService) *SessionHandler {
	return &SessionHandler{sessions: sessions, stats: stats}
}

// List godoc
// @Summary List sessions in scope
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context(), scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Upcoming godoc
// @Summary Sessions in the next seven days
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /sessions/upcoming [get]
func (h *SessionHandler) Upcoming(c *gin.Context) {
	teacherID, ok := teacherIDFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	sessions, err := h.sessions.Upcoming(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Get godoc
// @Summary Get one session
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), scopeFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Create godoc
// @Summary Schedule a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	teacherID, ok := teacherIDFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Stats godoc
// @Summary Presence partition for one session
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/stats [get]
func (h *SessionHandler) Stats(c *gin.Context) {
	stats, err := h.stats.ForSession(c.Request.Context(), scopeFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
