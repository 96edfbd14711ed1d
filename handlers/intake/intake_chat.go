package intake

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/services"
	"github.com/northbeam/portal-api/utils"
	"github.com/northbeam/portal-api/utils/middleware"
	"github.com/northbeam/portal-api/utils/validation"
	"go.uber.org/zap"
)

// Orchestrator handles one validated intake chat request
type Orchestrator interface {
	Handle(ctx context.Context, req model.IntakeChatRequest) (interface{}, error)
}

// IntakeChatHandler exposes the orchestrator over HTTP
type IntakeChatHandler struct {
	orchestrator Orchestrator
	validator    *validation.Validator
	logger       *zap.Logger
}

// NewIntakeChatHandler creates a new intake chat handler
func NewIntakeChatHandler(orchestrator Orchestrator, logger *zap.Logger) *IntakeChatHandler {
	return &IntakeChatHandler{
		orchestrator: orchestrator,
		validator:    validation.NewValidator(),
		logger:       utils.OrNop(logger),
	}
}

// HandleIntakeChat handles POST /api/v1/intake-chat
func (h *IntakeChatHandler) HandleIntakeChat(c *fiber.Ctx) error {
	var req model.IntakeChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(model.ErrorResponse{Error: "Invalid request body"})
	}
	sanitize(&req)

	if err := h.validator.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(model.ErrorResponse{
			Error:   "Validation failed",
			Details: validation.Violations(err),
		})
	}

	if claims := middleware.GetWidgetClaims(c); claims != nil && claims.SessionID != req.FormData.SessionID {
		return c.Status(fiber.StatusUnauthorized).JSON(model.ErrorResponse{Error: "Token does not match this session"})
	}

	result, err := h.orchestrator.Handle(c.UserContext(), req)
	if err != nil {
		status, message := statusFor(err)
		h.logger.Error("Intake chat request failed",
			zap.String("action", string(req.Action)),
			zap.String("session_id", req.FormData.SessionID),
			zap.Int("status", status),
			zap.Error(err))
		return c.Status(status).JSON(model.ErrorResponse{Error: message})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func sanitize(req *model.IntakeChatRequest) {
	req.ThreadID = validation.SanitizeString(req.ThreadID)
	req.Message = validation.SanitizeString(req.Message)
	req.FileName = validation.SanitizeString(req.FileName)
	req.FormData.Name = validation.SanitizeString(req.FormData.Name)
	req.FormData.Email = validation.SanitizeString(req.FormData.Email)
	req.FormData.SessionID = validation.SanitizeString(req.FormData.SessionID)
	req.FormData.CompanyName = validation.SanitizeString(req.FormData.CompanyName)
	req.FormData.Phone = validation.SanitizeString(req.FormData.Phone)
}

func statusFor(err error) (int, string) {
	var upstream *services.UpstreamError
	switch {
	case errors.Is(err, services.ErrFileTooLarge):
		return fiber.StatusRequestEntityTooLarge, "File too large. Maximum size is 10MB"
	case errors.Is(err, services.ErrRunTimeout):
		return fiber.StatusGatewayTimeout, "The assistant took too long to respond. Please try again."
	case errors.Is(err, services.ErrInvalidFileData):
		return fiber.StatusInternalServerError, "Failed to upload file"
	case errors.As(err, &upstream) && upstream.Op == "upload file":
		return fiber.StatusInternalServerError, "Failed to upload file"
	case errors.Is(err, services.ErrUnsupportedAction):
		return fiber.StatusInternalServerError, "The assistant requested an unsupported action"
	default:
		return fiber.StatusInternalServerError, "Failed to process chat request"
	}
}
