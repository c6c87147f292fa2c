package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/facetrack/facetrack-api/internal/service"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
	"github.com/facetrack/facetrack-api/pkg/response"
)

// AssistantHandler exposes the natural-language query endpoint.
type AssistantHandler struct {
	assistant *service.AssistantService
}

// NewAssistantHandler constructs an assistant handler.
func NewAssistantHandler(assistant *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

// Ask godoc
// @Summary Ask a question about attendance data
// @Tags Assistant
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.AskRequest true "Question"
// @Success 200 {object} response.Envelope
// @Router /assistant/ask [post]
func (h *AssistantHandler) Ask(c *gin.Context) {
	var req service.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	resp, err := h.assistant.Ask(c.Request.Context(), scopeFromContext(c), claims.UserID, req.Question)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}
