package middleware

import (
	"EmotionLens/pkg/utils"
	"github.com/gofiber/fiber/v2"
	fiberUtils "github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"time"
)

const RequestIDKey = "X-Request-ID"

type ulidSource interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
}

// NewRequestIDMiddleware keeps a client supplied X-Request-ID or mints a ULID.
// The header value is copied since it outlives the request on websocket routes.
func NewRequestIDMiddleware() fiber.Handler {
	ids := utils.New()

	return func(c *fiber.Ctx) error {
		requestID := fiberUtils.CopyString(c.Get(RequestIDKey))
		if requestID == "" {
			requestID = newRequestID(ids)
		}

		c.Locals(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)

		return c.Next()
	}
}

func newRequestID(ids ulidSource) string {
	id, err := ids.NewULIDFromTimestamp(time.Now())
	if err != nil || id == "" {
		return uuid.NewString()
	}
	return id
}
