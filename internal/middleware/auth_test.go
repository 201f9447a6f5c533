package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trentd187/chat-relay/internal/auth"
	"github.com/trentd187/chat-relay/internal/models"
)

type fakeUsers struct {
	err    error
	synced []uint
}

func (f *fakeUsers) FindOrCreate(identity *auth.Identity) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.synced = append(f.synced, identity.UserID)
	return &models.User{ID: identity.UserID, Name: identity.Name}, nil
}

func newApp(users UserSyncer) *fiber.App {
	app := fiber.New()
	app.Get("/me", Auth(auth.NewVerifier("secret", ""), users), func(c *fiber.Ctx) error {
		id, ok := UserID(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(fiber.Map{"id": id})
	})
	return app
}

func bearer(t *testing.T, secret, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthStoresUserID(t *testing.T) {
	users := &fakeUsers{}
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", bearer(t, "secret", "12"))

	resp, err := newApp(users).Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []uint{12}, users.synced)
}

func TestAuthRejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		users  *fakeUsers
		want   int
	}{
		{"no header", "", &fakeUsers{}, fiber.StatusUnauthorized},
		{"wrong scheme", "Token abc", &fakeUsers{}, fiber.StatusUnauthorized},
		{"bad signature", bearer(t, "other", "12"), &fakeUsers{}, fiber.StatusUnauthorized},
		{"sync failure", bearer(t, "secret", "12"), &fakeUsers{err: errors.New("db down")}, fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := newApp(tt.users).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
