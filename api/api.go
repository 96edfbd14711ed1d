package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/northbeam/portal-api/utils"
	"go.uber.org/zap"
)

type APIServer struct {
	app           *fiber.App
	listenAddress string
	logger        *zap.Logger
}

// NewAPIServer creates the Fiber app. bodyLimitMB must cover base64 upload bodies.
func NewAPIServer(listenAddress string, bodyLimitMB int, logger *zap.Logger) *APIServer {
	if bodyLimitMB <= 0 {
		bodyLimitMB = 16
	}
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName:      "portal-api",
			BodyLimit:    bodyLimitMB * 1024 * 1024,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second, // a start/message call may poll the assistant for a full minute
		}),
		listenAddress: listenAddress,
		logger:        utils.OrNop(logger),
	}
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

func (s *APIServer) Run() error {
	s.logger.Info("Starting API Server", zap.String("address", s.listenAddress))
	return s.app.Listen(s.listenAddress)
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx expires
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API Server")
	return s.app.ShutdownWithContext(ctx)
}
