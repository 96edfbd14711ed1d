package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/northbeam/portal-api/handlers"
	intake_handlers "github.com/northbeam/portal-api/handlers/intake"
	resume_handlers "github.com/northbeam/portal-api/handlers/resume"
	widget_handlers "github.com/northbeam/portal-api/handlers/widget"
	"github.com/northbeam/portal-api/utils"
	"github.com/northbeam/portal-api/utils/auth"
	"github.com/northbeam/portal-api/utils/middleware"
	"go.uber.org/zap"
)

// Deps carries everything the routes need. Optional collaborators are nil when
// the corresponding feature is not configured.
type Deps struct {
	Orchestrator intake_handlers.Orchestrator
	ResumeParser resume_handlers.Parser
	JWTManager   *auth.JWTManager
	Throttle     *middleware.SessionThrottle
	Health       handlers.HealthDeps
	Security     middleware.SecurityConfig
	Logger       *zap.Logger
}

func SetupRoutes(app *fiber.App, deps Deps) {
	logger := utils.OrNop(deps.Logger)

	security := deps.Security
	if security.RateLimitRequests == 0 {
		security.RateLimitRequests = 100
	}
	if security.RateLimitWindow == 0 {
		security.RateLimitWindow = time.Minute
	}
	middleware.SetupSecurity(app, security)

	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, deps.Health))

	sessionHandler := widget_handlers.NewSessionHandler(deps.JWTManager, logger)
	intakeHandler := intake_handlers.NewIntakeChatHandler(deps.Orchestrator, logger)
	resumeHandler := resume_handlers.NewResumeHandler(deps.ResumeParser, logger)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	// ===== Widget Session Routes (Public) =====
	v1.Post("/widget/session", sessionHandler.CreateSession)

	// ===== Intake Chat Routes =====
	// Widget tokens are only enforced when a signing secret is configured.
	chain := make([]fiber.Handler, 0, 3)
	if deps.JWTManager != nil {
		chain = append(chain, middleware.NewWidgetAuth(deps.JWTManager).Required())
	} else {
		logger.Warn("JWT_SECRET not set; intake chat accepts unauthenticated requests")
	}
	if deps.Throttle != nil {
		chain = append(chain, deps.Throttle.Limit())
	}
	chain = append(chain, intakeHandler.HandleIntakeChat)
	v1.Post("/intake-chat", chain...)

	// ===== Resume Routes (Public) =====
	v1.Post("/resume/parse", resumeHandler.ParseResume)
}
