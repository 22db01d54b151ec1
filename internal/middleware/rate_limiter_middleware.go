package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/fadilmartias/climate-tracker/internal/util"
)

// RateLimiter limits requests per caller in a sliding window. Authenticated
// callers are keyed by principal, anonymous ones by IP.
func RateLimiter(max int, expiration time.Duration) fiber.Handler {
	if max == 0 {
		max = 50
	}
	if expiration == 0 {
		expiration = 1 * time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if p := Principal(c); p != "" {
				return "principal:" + p
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return util.ErrorResponse(c, util.ErrorResponseFormat{
				Code:     fiber.StatusTooManyRequests,
				Message:  "Too many requests, please slow down.",
				Category: "RateLimited",
			})
		},
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}
