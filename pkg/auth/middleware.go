// Package auth resolves callers into a Principal carrying tenant scope and
// role. Two credentials are accepted: the opaque admin token, and a signed
// bearer token (HS256) whose claims name a role and an optional tenant id.
package auth

import (
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/aurora-intel/aurora-core/internal/config"
	"github.com/aurora-intel/aurora-core/pkg/apperror"
	"github.com/aurora-intel/aurora-core/pkg/logger"
)

// Module provides the auth middleware.
var Module = fx.Module("auth",
	fx.Provide(NewMiddleware),
)

// RoleAdmin is the role required by write operations.
const RoleAdmin = "admin"

// Principal is the authenticated caller threaded into the core.
type Principal struct {
	// Subject identifies the caller (token subject or "admin-token").
	Subject string
	// Role is the caller's role; write paths require RoleAdmin.
	Role string
	// TenantID scopes every query; nil means the unscoped default tenant.
	TenantID *int64
}

// IsAdmin reports whether the principal may invoke write operations.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

type contextKey string

const principalContextKey contextKey = "auth_principal"

// GetPrincipal retrieves the authenticated principal from the Echo context.
func GetPrincipal(c echo.Context) *Principal {
	if p, ok := c.Get(string(principalContextKey)).(*Principal); ok {
		return p
	}
	return nil
}

// SetPrincipal stores a principal on the context. Exported for tests.
func SetPrincipal(c echo.Context, p *Principal) {
	c.Set(string(principalContextKey), p)
}

// Middleware authenticates requests.
type Middleware struct {
	cfg *config.Config
	log *slog.Logger
}

// NewMiddleware creates the auth middleware.
func NewMiddleware(cfg *config.Config, log *slog.Logger) *Middleware {
	return &Middleware{
		cfg: cfg,
		log: log.With(logger.Scope("auth")),
	}
}

// RequireAuth returns middleware that requires any valid credential.
func (m *Middleware) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := m.authenticate(c)
			if err != nil {
				m.log.Warn("authentication failed", logger.Error(err))
				return err
			}
			SetPrincipal(c, p)
			return next(c)
		}
	}
}

// RequireAdmin returns middleware that additionally requires the admin role.
func (m *Middleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := GetPrincipal(c)
			if p == nil {
				var err error
				if p, err = m.authenticate(c); err != nil {
					return err
				}
				SetPrincipal(c, p)
			}
			if !p.IsAdmin() {
				return apperror.ErrUnauthorized.WithMessage("admin role required")
			}
			return next(c)
		}
	}
}

func (m *Middleware) authenticate(c echo.Context) (*Principal, error) {
	// Opaque admin token, either as its own header or as a bearer token.
	if token := c.Request().Header.Get("X-Admin-Token"); token != "" {
		if m.cfg.Auth.AdminToken != "" && token == m.cfg.Auth.AdminToken {
			return &Principal{Subject: "admin-token", Role: RoleAdmin}, nil
		}
		return nil, apperror.ErrInvalidToken
	}

	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return nil, apperror.ErrUnauthorized.WithMessage("missing authorization")
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, apperror.ErrUnauthorized.WithMessage("authorization must be a bearer token")
	}

	if m.cfg.Auth.AdminToken != "" && raw == m.cfg.Auth.AdminToken {
		return &Principal{Subject: "admin-token", Role: RoleAdmin}, nil
	}

	return m.parseBearer(raw)
}

type bearerClaims struct {
	Role     string `json:"role"`
	TenantID *int64 `json:"tenant_id"`
	jwt.RegisteredClaims
}

func (m *Middleware) parseBearer(raw string) (*Principal, error) {
	if m.cfg.Auth.JWTSecret == "" {
		return nil, apperror.ErrInvalidToken.WithMessage("bearer auth not configured")
	}

	claims := &bearerClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(m.cfg.Auth.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperror.ErrInvalidToken.WithInternal(err)
	}

	return &Principal{
		Subject:  claims.Subject,
		Role:     claims.Role,
		TenantID: claims.TenantID,
	}, nil
}
