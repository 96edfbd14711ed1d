package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/northbeam/portal-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCheckHealth(t *testing.T) {
	app := fiber.New()
	app.Get("/ping", utils.MakeHTTPHandleFunc(HandleCheckHealth, HealthDeps{
		Database: PingFunc(func(ctx context.Context) error { return nil }),
		Redis:    PingFunc(func(ctx context.Context) error { return errors.New("refused") }),
	}))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "ok", "database": "up", "redis": "down"}, body)
}

func TestHandleCheckHealth_Disabled(t *testing.T) {
	app := fiber.New()
	app.Get("/ping", utils.MakeHTTPHandleFunc(HandleCheckHealth, HealthDeps{}))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "disabled", body["database"])
	assert.Equal(t, "disabled", body["redis"])
}
