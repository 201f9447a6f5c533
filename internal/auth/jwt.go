// Package auth verifies the bearer tokens issued by the account system.
//
// Tokens are HS256 JWTs whose "sub" claim is the numeric user id. Issuing tokens is the
// account system's job; this package only checks them and extracts the identity.
package auth

import (
	"context"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/trentd187/chat-relay/internal/realtime"
)

var (
	// ErrMissingToken is returned when no bearer credential was supplied.
	ErrMissingToken = errors.New("missing or invalid authorization header")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the JWT payload. Email and Name are optional profile hints used to create
// the local user row on first sight.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID uint
	Email  string
	Name   string
}

// Verifier checks token signatures and standard claims.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier builds a verifier for HS256 tokens signed with secret. A non-empty issuer
// is enforced on the "iss" claim.
func NewVerifier(secret, issuer string) *Verifier {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (*Identity, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return nil, errors.Wrapf(ErrInvalidToken, "subject %q is not a user id", claims.Subject)
	}

	return &Identity{UserID: uint(id), Email: claims.Email, Name: claims.Name}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// TokenResolver adapts a Verifier to the realtime identity contract.
type TokenResolver struct {
	Verifier *Verifier
}

// ResolveToken implements realtime.IdentityResolver.
func (r TokenResolver) ResolveToken(_ context.Context, token string) (realtime.UserID, error) {
	identity, err := r.Verifier.Verify(token)
	if err != nil {
		return 0, err
	}
	return realtime.UserID(identity.UserID), nil
}
