package middleware

import (
	"time"

	"github.com/clouddrive/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDKey = "requestID"

// RequestLogger tags every request with an id and emits one structured
// event per completed request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := uuid.New().String()
		c.Locals(requestIDKey, requestID)

		start := time.Now()
		err := c.Next()

		fields := map[string]interface{}{
			"request_id": requestID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"ip":         c.IP(),
			"duration":   time.Since(start).String(),
		}
		if err != nil {
			logger.Error("http_request", err, fields)
		} else {
			logger.Info("http_request", fields)
		}

		return err
	}
}

func GetRequestID(c *fiber.Ctx) string {
	value, _ := c.Locals(requestIDKey).(string)
	return value
}
