// Package middleware contains HTTP middleware functions for the chat API.
// Middleware sits between the HTTP server and route handlers: it runs on every
// request that passes through it, making it the right place for cross-cutting
// concerns like authentication.
package middleware

import (
	// fiber is the HTTP framework; fiber.Handler is the function signature for middleware
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"github.com/trentd187/chat-relay/internal/auth"
	"github.com/trentd187/chat-relay/internal/logging"
	"github.com/trentd187/chat-relay/internal/models"
)

// localUserID is the c.Locals key holding the authenticated user's id (a uint).
const localUserID = "userID"

// UserSyncer creates or loads the local user row for a verified identity.
// *accounts.Store implements it.
type UserSyncer interface {
	FindOrCreate(identity *auth.Identity) (*models.User, error)
}

// Auth returns a Fiber middleware handler that:
//  1. Reads the JWT from the "Authorization: Bearer <token>" header
//  2. Verifies its signature and claims
//  3. Finds the matching user in our database (or creates one on first visit)
//  4. Stores the user's id in the request context (c.Locals) so downstream handlers
//     can read it without re-parsing the token
//
// This is a closure: the returned function captures verifier and users so they're
// available every time a request comes in.
func Auth(verifier *auth.Verifier, users UserSyncer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// --- Step 1: Extract the token from the Authorization header ---
		tokenStr, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}

		// --- Step 2: Verify the JWT ---
		identity, err := verifier.Verify(tokenStr)
		if err != nil {
			logging.Debug().Err(err).Str("path", c.Path()).Msg("rejected bearer token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": auth.ErrInvalidToken.Error()})
		}

		// --- Step 3: Lazy user sync ---
		user, err := users.FindOrCreate(identity)
		if err != nil {
			logging.Error().Err(errors.WithStack(err)).Uint("user_id", identity.UserID).Msg("user sync failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
		}

		// --- Step 4: Store user info in the request context ---
		// c.Locals is a key-value store scoped to this single request.
		c.Locals(localUserID, user.ID)

		// Pass control to the next middleware or route handler
		return c.Next()
	}
}

// UserID returns the id stored by Auth. ok is false on routes that didn't run Auth.
func UserID(c *fiber.Ctx) (id uint, ok bool) {
	id, ok = c.Locals(localUserID).(uint)
	return id, ok && id != 0
}

// SetUserID stores id the way Auth does. Tests use it to stand in for a real token.
func SetUserID(c *fiber.Ctx, id uint) {
	c.Locals(localUserID, id)
}
