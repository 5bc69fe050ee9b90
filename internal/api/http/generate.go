package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/GriffinCanCode/ConceptCanvas/internal/api/middleware"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/orchestrator"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GenerateRequest is the body of POST /api/chat/generate
type GenerateRequest struct {
	Messages    []orchestrator.Message `json:"messages"`
	CurrentCode string                 `json:"current_code,omitempty"`
}

// AssistantMessage is the generated turn
type AssistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Code    string `json:"code"`
}

// GenerateResponse is returned when a component compiled
type GenerateResponse struct {
	Message   AssistantMessage     `json:"message"`
	Style     orchestrator.Profile `json:"style"`
	RequestID string               `json:"request_id"`
	Attempts  int                  `json:"attempts"`
}

// Validate checks the conversation before any model call
func (r *GenerateRequest) Validate() error {
	if len(r.Messages) == 0 {
		return orchestrator.ErrNoMessages
	}
	if len(r.Messages) > utils.MaxConversation {
		return fmt.Errorf("conversation exceeds %d messages", utils.MaxConversation)
	}
	for i, msg := range r.Messages {
		if err := utils.ValidateRole(msg.Role); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
		if err := utils.ValidateMessage(msg.Content); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	return utils.ValidateCode(r.CurrentCode)
}

// Generate handles POST /api/chat/generate
func (h *Handlers) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Messages are required"})
		return
	}
	if err := req.Validate(); err != nil {
		msg := err.Error()
		if errors.Is(err, orchestrator.ErrNoMessages) {
			msg = "Messages are required"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	rid := middleware.GetRequestID(c)
	out, err := h.generator.Run(c.Request.Context(), orchestrator.Request{
		RequestID:   rid,
		Messages:    req.Messages,
		CurrentCode: req.CurrentCode,
	})
	if err != nil {
		h.generateFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{
		Message: AssistantMessage{
			Role:    utils.RoleAssistant,
			Content: out.Explanation,
			Code:    out.Source,
		},
		Style:     out.Profile,
		RequestID: rid.String(),
		Attempts:  len(out.Attempts),
	})
}

func (h *Handlers) generateFailed(c *gin.Context, err error) {
	var genErr *orchestrator.GenerationError
	switch {
	case errors.As(err, &genErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":          genErr.Friendly,
			"technicalError": genErr.Technical,
		})
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the response
		c.Status(499)
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Generation timed out"})
	case errors.Is(err, resilience.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Model temporarily unavailable"})
	default:
		h.logger.Error("Generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
