package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"github.com/trentd187/chat-relay/internal/middleware"
	"github.com/trentd187/chat-relay/internal/realtime"
)

// Poller is the fallback buffer's read side.
type Poller interface {
	Poll(user realtime.UserID, since *float64) (realtime.PollResult, error)
}

// PollEvents handles GET /api/v1/events?since=<float seconds>.
// Used instead of the websocket when the server runs in poll mode: the client calls it
// at most once a second and passes back the previous response's timestamp as since.
//
//	200 {"events": [{"type", "data", "timestamp"}...], "timestamp": <float>}
//	429 {"error": "rate_limited", "message": ..., "retry_after": <seconds>}
func PollEvents(buffer Poller) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "not authenticated")
		}

		// since is optional; without it the client gets everything still buffered
		var since *float64
		if raw := c.Query("since"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fail(c, fiber.StatusBadRequest, "since must be a number of seconds")
			}
			since = &v
		}

		res, err := buffer.Poll(realtime.UserID(userID), since)
		if err != nil {
			var rl *realtime.RateLimitError
			if errors.As(err, &rl) {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rl.RetryAfter.Seconds()+0.999)))
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":       "rate_limited",
					"message":     rl.Error(),
					"retry_after": rl.RetryAfter.Seconds(),
				})
			}
			return fail(c, fiber.StatusInternalServerError, "internal error")
		}

		return c.JSON(res)
	}
}
