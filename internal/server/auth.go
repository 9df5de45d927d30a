package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// SignToken mints an HS256 token for a subject. Used by the access CLI to
// hand out export credentials when server.jwt_secret is configured.
func SignToken(subject string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func verifyToken(token string, secret []byte) error {
	_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	return err
}

// bearerOrBodyToken prefers the Authorization header, falling back to a token
// field carried in the request body.
func bearerOrBodyToken(c echo.Context, bodyToken string) string {
	if h := c.Request().Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return bodyToken
}

// requireAuth enforces token checks only when a secret is configured; an empty
// secret leaves the endpoint open, matching single-operator deployments.
func (s *Server) requireAuth(c echo.Context, bodyToken string) error {
	secret := s.Cfg.Server.JWTSecret
	if secret == "" {
		return nil
	}
	token := bearerOrBodyToken(c, bodyToken)
	if token == "" {
		return echo.NewHTTPError(401, "missing token")
	}
	if err := verifyToken(token, []byte(secret)); err != nil {
		return echo.NewHTTPError(401, "invalid token")
	}
	return nil
}
