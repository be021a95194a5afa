package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// OperatorAuthConfig guards the operator API
type OperatorAuthConfig struct {
	APIKey string
	// AllowUnauthenticated lets requests through when no key is configured
	AllowUnauthenticated bool
}

// RequireOperatorKey checks the Bearer token on operator API requests
func RequireOperatorKey(cfg OperatorAuthConfig, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.APIKey == "" {
			if cfg.AllowUnauthenticated {
				log.WithField("path", c.Path()).Warn("⚠️ OPERATOR_API_KEY not set, operator API is open")
				return c.Next()
			}
			log.Error("OPERATOR_API_KEY not set, rejecting operator request")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(cfg.APIKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return c.Next()
	}
}
