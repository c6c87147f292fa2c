package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/facetrack/facetrack-api/internal/service"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
	"github.com/facetrack/facetrack-api/pkg/response"
)

// ClassHandler exposes class and membership endpoints. Classes are always
// teacher-owned, so every route resolves the caller's teacher id.
type ClassHandler struct {
	service *service.ClassService
}

// NewClassHandler constructs a class handler.
func NewClassHandler(svc *service.ClassService) *ClassHandler {
	return &ClassHandler{service: svc}
}

func teacherIDFromContext(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", false
	}
	return claims.UserID, true
}

// List godoc
// @Summary List the caller's classes
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	teacherID, ok := teacherIDFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	classes, err := h.service.List(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// Get godoc
// @Summary Get one class
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	teacherID, ok := teacherIDFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	class, err := h.service.Get(c.Request.Context(), c.Param("id"), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Create godoc
// @Summary Create a class
// @Tags Classes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	teacherID, ok := teacherIDFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	class, err := h.service.Create(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// Roster godoc
// @Summary Current members of a class
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/students [get]
func (h *ClassHandler) Roster(c *gin.Context) {
	teacherID, ok := teacherIDFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	roster, err := h.service.Roster(c.Request.Context(), c.Param("id"), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// AssignStudent godoc
// @Summary Add a student to a class
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /classes/{id}/students/{studentId} [post]
func (h *ClassHandler) AssignStudent(c *gin.Context) {
	teacherID, ok := teacherIDFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.AssignStudent(c.Request.Context(), c.Param("id"), c.Param("studentId"), teacherID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveStudent godoc
// @Summary Remove a student from a class
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /classes/{id}/students/{studentId} [delete]
func (h *ClassHandler) RemoveStudent(c *gin.Context) {
	teacherID, ok := teacherIDFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.RemoveStudent(c.Request.Context(), c.Param("id"), c.Param("studentId"), teacherID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveStudentEverywhere godoc
// @Summary Remove a student from all of the caller's classes
// @Tags Classes
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /classes/students/{studentId} [delete]
func (h *ClassHandler) RemoveStudentEverywhere(c *gin.Context) {
	teacherID, ok := teacherIDFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	names, err := h.service.RemoveStudentEverywhere(c.Request.Context(), c.Param("studentId"), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed_from": names}, nil)
}
