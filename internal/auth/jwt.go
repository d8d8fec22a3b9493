package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// SubjectKey is the echo context key holding the authenticated subject.
const SubjectKey = "auth_subject"

// RequireBearer rejects requests without a valid HS256 bearer token signed
// with secret.
func RequireBearer(secret []byte, log *logrus.Entry) echo.MiddlewareFunc {
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return unauthorized(c)
			}

			claims := &jwt.RegisteredClaims{}
			_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, keyFunc,
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			)
			if err != nil {
				log.WithError(err).WithField("path", c.Path()).Warn("rejected bearer token")
				return unauthorized(c)
			}

			c.Set(SubjectKey, claims.Subject)
			return next(c)
		}
	}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]any{
		"success": false,
		"message": "Unauthorized",
	})
}
