package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type AskRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) AskAI(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Message is required")
		return
	}

	if h.Assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Assistant is not configured (missing GEMINI_API_KEY)", "code": "unavailable"})
		return
	}

	reply, err := h.Assistant.Ask(c.Request.Context(), req.Message, currentUser(c))
	if err != nil {
		h.Log.Error().Err(err).Msg("assistant failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Assistant failed to answer", "code": "upstream"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
