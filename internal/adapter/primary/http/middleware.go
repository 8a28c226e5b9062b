package http

import (
	"net/http"
	"strings"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const userContextKey = "user"

// Claims are the access token claims this service reads; sub is the user id
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTAuth accepts HS256 bearer tokens signed with secret and stores the caller as a core.User
func JWTAuth(secret []byte) echo.MiddlewareFunc {
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || raw == "" {
				return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			}

			claims := &Claims{}
			_, err := jwt.ParseWithClaims(raw, claims, keyFunc,
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil {
				return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			}
			id, err := uuid.Parse(claims.Subject)
			if err != nil {
				return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token subject")
			}

			c.Set(userContextKey, core.User{ID: id, Email: claims.Email})
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithUserID(req.Context(), id.String())))
			return next(c)
		}
	}
}

// RequestLogContext copies the request id assigned by middleware.RequestID into the request context
func RequestLogContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(logger.WithRequestID(req.Context(), id)))
			}
			return next(c)
		}
	}
}

func currentUser(c echo.Context) (core.User, error) {
	user, ok := c.Get(userContextKey).(core.User)
	if !ok {
		return core.User{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return user, nil
}
