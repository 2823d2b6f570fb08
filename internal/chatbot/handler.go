package chatbot

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/greenway-eco/backend/pkg/response"
)

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// AskRequest is the body for POST /ask-chatbot.
type AskRequest struct {
	Question string `json:"question"`
}

// Handler serves the chatbot endpoint.
type Handler struct {
	bot Asker
}

// NewHandler creates a chatbot handler. A nil bot answers 503.
func NewHandler(bot Asker) *Handler {
	return &Handler{bot: bot}
}

// Ask handles POST /ask-chatbot.
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		response.BadRequest(c, "question is required")
		return
	}
	if h.bot == nil {
		response.ServiceUnavailable(c, "the assistant is not available")
		return
	}
	answer, err := h.bot.Ask(c.Request.Context(), req.Question)
	if err != nil {
		if errors.Is(err, ErrEmptyQuestion) {
			response.BadRequest(c, "question is required")
			return
		}
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"answer": answer})
}
