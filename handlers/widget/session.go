package widget

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/utils"
	"github.com/northbeam/portal-api/utils/auth"
	"github.com/northbeam/portal-api/utils/response"
	"github.com/northbeam/portal-api/utils/validation"
	"go.uber.org/zap"
)

// SessionTokenResponse is returned when a widget session is registered
type SessionTokenResponse struct {
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionHandler issues widget session tokens
type SessionHandler struct {
	jwtManager *auth.JWTManager
	validator  *validation.Validator
	logger     *zap.Logger
}

// NewSessionHandler creates a session handler. jwtManager may be nil when tokens are disabled.
func NewSessionHandler(jwtManager *auth.JWTManager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		jwtManager: jwtManager,
		validator:  validation.NewValidator(),
		logger:     utils.OrNop(logger),
	}
}

// CreateSession handles POST /api/v1/widget/session
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	if h.jwtManager == nil {
		return response.ServiceUnavailable(c, "Widget session tokens are not enabled")
	}

	var form model.FormData
	if err := c.BodyParser(&form); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	form.Email = validation.SanitizeString(form.Email)
	form.SessionID = validation.SanitizeString(form.SessionID)

	if err := h.validator.ValidateStruct(form); err != nil {
		return response.ValidationError(c, validation.Violations(err))
	}

	token, expiresAt, err := h.jwtManager.GenerateWidgetToken(form)
	if err != nil {
		h.logger.Error("Failed to sign widget token", zap.String("session_id", form.SessionID), zap.Error(err))
		return response.InternalServerError(c, "Failed to generate session token")
	}

	return response.Created(c, "Session registered", SessionTokenResponse{
		SessionID: form.SessionID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
