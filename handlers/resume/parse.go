package resume

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/services"
	"github.com/northbeam/portal-api/utils"
	"github.com/northbeam/portal-api/utils/pdfvalidation"
	"github.com/northbeam/portal-api/utils/response"
	"go.uber.org/zap"
)

// Parser turns resume bytes into a structured profile
type Parser interface {
	Parse(ctx context.Context, content []byte) (*model.ResumeProfile, error)
}

// ResumeHandler exposes AI-assisted resume parsing for the talent profile wizard
type ResumeHandler struct {
	parser Parser
	logger *zap.Logger
}

// NewResumeHandler creates a resume handler. parser may be nil when AI is not configured.
func NewResumeHandler(parser Parser, logger *zap.Logger) *ResumeHandler {
	return &ResumeHandler{parser: parser, logger: utils.OrNop(logger)}
}

// ParseResume handles POST /api/v1/resume/parse
func (h *ResumeHandler) ParseResume(c *fiber.Ctx) error {
	if h.parser == nil {
		return response.ServiceUnavailable(c, "Resume parsing is not configured")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "A PDF file is required in the 'file' field")
	}

	result, err := pdfvalidation.ValidatePDFFile(file, pdfvalidation.ResumeLimits)
	if err != nil {
		return response.InternalServerError(c, "Failed to read uploaded file")
	}
	if !result.Valid {
		return response.BadRequest(c, result.Error)
	}

	profile, err := h.parser.Parse(c.UserContext(), result.Content)
	if err != nil {
		if errors.Is(err, services.ErrNoExtractableText) {
			return response.UnprocessableEntity(c, "Could not read text from this PDF", "The file may be a scanned image; please fill in your profile manually")
		}
		h.logger.Error("Resume parsing failed", zap.String("file", file.Filename), zap.Error(err))
		return response.InternalServerError(c, "Failed to parse resume")
	}

	return response.Success(c, profile)
}
