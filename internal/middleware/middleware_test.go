package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProtectedApp() *fiber.App {
	app := fiber.New()
	app.Use(BearerAuth(map[string]string{"tok-alice": "alice", "tok-bob": "bob"}))
	app.Use(RateLimiter(2, time.Minute))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(Principal(c))
	})
	return app
}

func TestBearerAuth(t *testing.T) {
	app := newProtectedApp()

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer tok-bob")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "bob", string(body))

	for _, header := range []string{"", "Bearer nope", "tok-alice"} {
		req := httptest.NewRequest("GET", "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "header %q", header)
	}
}

func TestRateLimiterIsPerPrincipal(t *testing.T) {
	app := newProtectedApp()
	call := func(token string) int {
		req := httptest.NewRequest("GET", "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, call("tok-alice"))
	assert.Equal(t, fiber.StatusOK, call("tok-alice"))
	assert.Equal(t, fiber.StatusTooManyRequests, call("tok-alice"))
	assert.Equal(t, fiber.StatusOK, call("tok-bob"))
}
