// Package middleware holds the access controls applied to order routes.
package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/cafe/internal/config"
	"github.com/Additional-Code/cafe/pkg/errorbank"
)

// Staff roles allowed on back-office routes.
const (
	RoleAdmin   = "ADMIN"
	RoleKitchen = "KITCHEN"
)

// ContextKeyClaims is where verified claims are stored on the echo context.
const ContextKeyClaims = "staff"

// StaffClaims is the token payload issued to café staff.
type StaffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Staff verifies an HS256 bearer token and its role. With no secret
// configured every request passes.
func Staff(cfg config.Auth) echo.MiddlewareFunc {
	if !cfg.Enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	verify := echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(cfg.JWTSecret),
		SigningMethod: jwt.SigningMethodHS256.Alg(),
		ContextKey:    ContextKeyClaims,
		NewClaimsFunc: func(echo.Context) jwt.Claims { return new(StaffClaims) },
		ErrorHandler: func(_ echo.Context, err error) error {
			return errorbank.Unauthorized("missing or invalid bearer token", errorbank.WithCause(err))
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return verify(func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok || !allowedRole(claims.Role) {
				return errorbank.Unauthorized("staff role required")
			}
			return next(c)
		})
	}
}

// ClaimsFrom returns the verified staff claims, if any.
func ClaimsFrom(c echo.Context) (*StaffClaims, bool) {
	token, ok := c.Get(ContextKeyClaims).(*jwt.Token)
	if !ok {
		return nil, false
	}
	claims, ok := token.Claims.(*StaffClaims)
	return claims, ok
}

func allowedRole(role string) bool {
	switch strings.ToUpper(role) {
	case RoleAdmin, RoleKitchen:
		return true
	default:
		return false
	}
}
