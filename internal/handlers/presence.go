package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/chat-relay/internal/logging"
	"github.com/trentd187/chat-relay/internal/middleware"
	"github.com/trentd187/chat-relay/internal/models"
	"github.com/trentd187/chat-relay/internal/realtime"
)

// EventTest is the event POST /api/v1/realtime/test sends to the caller.
const EventTest = "test_event"

// UserLookup loads profiles for presence lists. *accounts.Store implements it.
type UserLookup interface {
	ByIDs(ids []uint) ([]models.User, error)
}

// statusReporter is implemented by sources that track a per-user presence status.
// Sources without it report every online user as "online".
type statusReporter interface {
	Status(user realtime.UserID) realtime.Status
}

func statusOf(online OnlineSource, user realtime.UserID) realtime.Status {
	if !online.IsOnline(user) {
		return realtime.StatusOffline
	}
	if r, ok := online.(statusReporter); ok {
		return r.Status(user)
	}
	return realtime.StatusOnline
}

// OnlineUser is one entry in the presence list.
type OnlineUser struct {
	ID     uint            `json:"id"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Avatar *string         `json:"avatar"`
	Status realtime.Status `json:"status"`
}

// OnlineUsers handles GET /api/v1/realtime/online.
// Returns the profiles of everyone currently online, plus whether the caller is.
func OnlineUsers(online OnlineSource, users UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "not authenticated")
		}

		connected := online.ConnectedUserIDs()
		ids := make([]uint, 0, len(connected))
		for _, id := range connected {
			ids = append(ids, uint(id))
		}

		profiles, err := users.ByIDs(ids)
		if err != nil {
			logging.Error().Err(err).Msg("failed to load online profiles")
			return fail(c, fiber.StatusInternalServerError, "failed to fetch online users")
		}

		list := make([]OnlineUser, 0, len(profiles))
		for _, u := range profiles {
			list = append(list, OnlineUser{
				ID:     u.ID,
				Name:   u.Name,
				Email:  u.Email,
				Avatar: u.AvatarURL,
				Status: statusOf(online, realtime.UserID(u.ID)),
			})
		}

		return c.JSON(fiber.Map{
			"total_online":        len(list),
			"users":               list,
			"current_user_online": online.IsOnline(realtime.UserID(userID)),
		})
	}
}

// RealtimeMe handles GET /api/v1/realtime/me: the caller's own presence.
func RealtimeMe(online OnlineSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "not authenticated")
		}
		user := realtime.UserID(userID)
		return c.JSON(fiber.Map{
			"user_id": userID,
			"online":  online.IsOnline(user),
			"status":  statusOf(online, user),
		})
	}
}

// RealtimeInfo handles GET /api/v1/realtime. It tells a client what the realtime layer
// accepts: the delivery mode, inbound event names and valid presence statuses.
func RealtimeInfo(online OnlineSource, mode string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "not authenticated")
		}

		ids := online.ConnectedUserIDs()
		return c.JSON(fiber.Map{
			"mode":                mode,
			"online_user_ids":     ids,
			"total_online":        len(ids),
			"current_user_online": online.IsOnline(realtime.UserID(userID)),
			"available_events":    realtime.InboundTypes,
			"status_options":      realtime.Statuses,
		})
	}
}

// testEventRequest is the optional body of POST /api/v1/realtime/test.
type testEventRequest struct {
	Message string `json:"message" validate:"max=500"`
}

// RealtimeTest handles POST /api/v1/realtime/test: it routes a test event to the caller
// so a client can check its connection end to end.
func RealtimeTest(router realtime.Router) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "not authenticated")
		}

		var req testEventRequest
		if len(c.Body()) > 0 {
			if err := parseBody(c, &req); err != nil {
				return fail(c, fiber.StatusBadRequest, err.Error())
			}
		}
		if req.Message == "" {
			req.Message = "realtime test"
		}

		delivered := router.EmitToUser(realtime.UserID(userID), EventTest, fiber.Map{
			"message":   req.Message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return c.JSON(fiber.Map{"delivered": delivered})
	}
}
