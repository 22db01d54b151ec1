package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"github.com/fadilmartias/climate-tracker/internal/apperror"
	"github.com/fadilmartias/climate-tracker/internal/util"
)

const principalKey = "principal"

// BearerAuth accepts "Authorization: Bearer <token>" for any configured
// token and stores the token's principal on the request.
func BearerAuth(tokens map[string]string) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			principal := ""
			for token, p := range tokens {
				if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
					principal = p
				}
			}
			if principal == "" {
				return false, keyauth.ErrMissingOrMalformedAPIKey
			}
			c.Locals(principalKey, principal)
			return true, nil
		},
		ErrorHandler: func(c *fiber.Ctx, _ error) error {
			return util.AppErrorResponse(c, apperror.Unauthorized("A valid bearer token is required."))
		},
	})
}

// Principal returns the authenticated caller, or "" before BearerAuth ran.
func Principal(c *fiber.Ctx) string {
	p, _ := c.Locals(principalKey).(string)
	return p
}
