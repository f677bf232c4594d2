package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"mosaic/pkg/auth"
)

// RequireAuth verifies the bearer token and stores the caller's identity
// in c.Locals("user_id") / c.Locals("user_email") for downstream handlers
func RequireAuth(jwtAuth *auth.LocalJWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.ExtractToken(c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization token",
			})
		}

		identity, err := jwtAuth.VerifyAccessToken(token)
		if err != nil {
			log.Printf("❌ [AUTH] Token rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", identity.ID)
		c.Locals("user_email", identity.Email)
		return c.Next()
	}
}
