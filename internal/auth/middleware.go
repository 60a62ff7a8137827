package auth

import (
	echojwt "github.com/labstack/echo-jwt/v4"
	echo "github.com/labstack/echo/v4"

	"github.com/Additional-Code/handoff/pkg/errorbank"
)

const principalKey = "auth.principal"

// Middleware authenticates "Authorization: Bearer <session>" requests.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey: principalKey,
		ParseTokenFunc: func(_ echo.Context, auth string) (interface{}, error) {
			return a.ParseSession(auth)
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			return errorbank.Unauthorized("a valid session is required",
				errorbank.WithCode("session_required"),
				errorbank.WithCause(err),
			)
		},
	})
}

// Require rejects principals whose role lacks capability. It must run
// after Middleware.
func Require(capability Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return errorbank.Unauthorized("a valid session is required", errorbank.WithCode("session_required"))
			}
			if !Can(p.Role, capability) {
				return errorbank.Forbidden("not allowed for this role",
					errorbank.WithCode("forbidden"),
					errorbank.WithDetail("capability", string(capability)),
				)
			}
			return next(c)
		}
	}
}

// PrincipalFrom returns the authenticated principal for the request.
func PrincipalFrom(c echo.Context) (Principal, bool) {
	p, ok := c.Get(principalKey).(Principal)
	return p, ok
}

// WithPrincipal stores p on the context; used by tests and internal callers.
func WithPrincipal(c echo.Context, p Principal) {
	c.Set(principalKey, p)
}
