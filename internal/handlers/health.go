// Package handlers contains the HTTP route handler functions for the chat API.
// Each handler corresponds to one API endpoint and is responsible for reading the
// request, calling into the service that does the work, and writing a response.
//
// Each exported function follows the "handler factory" pattern: it takes its
// dependencies as arguments and returns a fiber.Handler. This lets us inject services
// (and fakes in tests) without global variables.
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/chat-relay/internal/realtime"
)

// HealthCheck handles GET /health.
// It returns a simple JSON response indicating the server is alive and reachable.
// This endpoint is intentionally lightweight: no database queries, no authentication.
// It's used by container readiness/liveness probes and load balancers.
func HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// OnlineSource is whatever knows who is currently online: the session registry in
// websocket mode, the fallback buffer's presence window in poll mode.
type OnlineSource interface {
	ConnectedUserIDs() []realtime.UserID
	IsOnline(user realtime.UserID) bool
}

// RealtimeStatusResponse is the body of GET /realtime/status.
type RealtimeStatusResponse struct {
	Active              bool    `json:"active"`
	Mode                string  `json:"mode"`
	TotalConnectedUsers int     `json:"total_connected_users"`
	ServerTime          float64 `json:"server_time"`
}

// RealtimeStatus handles GET /realtime/status. It is public so load balancers and the
// web client can tell which delivery mode to use before logging in.
func RealtimeStatus(online OnlineSource, mode string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(RealtimeStatusResponse{
			Active:              true,
			Mode:                mode,
			TotalConnectedUsers: len(online.ConnectedUserIDs()),
			ServerTime:          float64(time.Now().UnixMicro()) / 1e6,
		})
	}
}
