package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is any dependency that can report its health
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthDeps lists the optional dependencies reported by /ping; nil entries are "disabled"
type HealthDeps struct {
	Database Pinger
	Redis    Pinger
}

func HandleCheckHealth(c *fiber.Ctx, deps HealthDeps) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	return c.JSON(fiber.Map{
		"status":   "ok",
		"database": probe(ctx, deps.Database),
		"redis":    probe(ctx, deps.Redis),
	})
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "down"
	}
	return "up"
}
