package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"github.com/trentd187/chat-relay/internal/chats"
	"github.com/trentd187/chat-relay/internal/logging"
)

// validate checks request structs against their `validate:"..."` tags.
// A single instance caches struct metadata, so it is shared by every handler.
var validate = validator.New(validator.WithRequiredStructEnabled())

// fail writes the {"error": ...} body every handler uses for failures.
func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// errInvalidBody is the message for bodies that are not valid JSON.
var errInvalidBody = errors.New("invalid request body")

// parseBody decodes and validates a JSON body into req. The returned error is safe to
// show to the client.
func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return errInvalidBody
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.Errorf("%s is invalid: %s", verrs[0].Field(), verrs[0].Tag())
		}
		return errInvalidBody
	}
	return nil
}

// pathID reads a positive integer route parameter such as :chatID.
func pathID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

// chatFailure maps write path errors to HTTP statuses. Unknown errors are logged and
// reported as 500 without details.
func chatFailure(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, chats.ErrChatNotFound),
		errors.Is(err, chats.ErrMessageNotFound),
		errors.Is(err, chats.ErrRecipientNotFound):
		return fail(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, chats.ErrForbidden):
		return fail(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, chats.ErrSelfChat), errors.Is(err, chats.ErrEmptyMessage):
		return fail(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		logging.Error().Err(err).Str("path", c.Path()).Msg("chat write failed")
		return fail(c, fiber.StatusInternalServerError, "internal error")
	}
}
