package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/procur/backend/pkg/logger"
)

// RequestLogger emits one structured line per request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		}
		if user := GetCurrentUser(c); user != nil {
			fields["user_id"] = user.ID.String()
		}

		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			logger.Error("request_failed", err, fields)
		} else {
			logger.Info("request_completed", fields)
		}
		return err
	}
}
