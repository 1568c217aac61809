package middleware

import (
	"crypto/subtle"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"golang.org/x/crypto/bcrypt"
)

// DashboardAuth protects the report endpoints with HTTP basic auth. The
// password is checked against a bcrypt hash.
func DashboardAuth(user, passwordHash string, logger *slog.Logger) fiber.Handler {
	hash := []byte(passwordHash)

	return basicauth.New(basicauth.Config{
		Realm: "attribly",
		Authorizer: func(u, p string) bool {
			userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
			passOK := bcrypt.CompareHashAndPassword(hash, []byte(p)) == nil
			if !userOK || !passOK {
				logger.Warn("Rejected dashboard credentials", slog.String("user", u))
				return false
			}
			return true
		},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="attribly"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		},
	})
}
