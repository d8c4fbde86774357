// Package middleware provides HTTP middleware for authentication, logging,
// tracing, metrics and rate limiting.
package middleware

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"nokoroa/internal/config"
	"nokoroa/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// Token errors returned by ParseToken.
var (
	ErrMissingToken  = errors.New("authorization required")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrInvalidClaims = errors.New("invalid token claims")
	ErrRevokedToken  = errors.New("token has been revoked")
)

// Authenticator verifies bearer tokens issued by the auth service.
// Tokens are HS256 JWTs whose subject is the numeric user id.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	rdb      *redis.Client
}

// NewAuthenticator builds an Authenticator. rdb is optional and enables the
// revoked-token check.
func NewAuthenticator(cfg *config.Config, rdb *redis.Client) *Authenticator {
	return &Authenticator{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		rdb:      rdb,
	}
}

// ParseToken validates tokenString and returns the user id it was issued for.
func (a *Authenticator) ParseToken(ctx context.Context, tokenString string) (uint, error) {
	if tokenString == "" {
		return 0, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return 0, ErrInvalidClaims
	}

	if claims.ID != "" && a.rdb != nil {
		revoked, err := a.rdb.Exists(ctx, "blacklist:"+claims.ID).Result()
		if err == nil && revoked > 0 {
			return 0, ErrRevokedToken
		}
	}

	return uint(userID), nil
}

func bearerToken(c *fiber.Ctx) string {
	parts := strings.Fields(c.Get(fiber.HeaderAuthorization))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// Required rejects requests without a valid bearer token. The caller's id is
// stored in Locals("userID") and in the request context.
func (a *Authenticator) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := a.ParseToken(c.UserContext(), bearerToken(c))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(err.Error()))
		}
		c.Locals("userID", userID)
		c.SetUserContext(WithUserID(c.UserContext(), userID))
		return c.Next()
	}
}

// Optional attaches the caller's id when a valid token is present and lets
// anonymous requests through.
func (a *Authenticator) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID, err := a.ParseToken(c.UserContext(), bearerToken(c)); err == nil {
			c.Locals("userID", userID)
			c.SetUserContext(WithUserID(c.UserContext(), userID))
		}
		return c.Next()
	}
}

// CurrentUserID returns the authenticated user id set by Required or Optional.
func CurrentUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("userID").(uint)
	return id, ok && id != 0
}
