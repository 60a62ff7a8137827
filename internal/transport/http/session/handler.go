package session

import (
	"context"
	"time"

	echo "github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/auth"
	"github.com/Additional-Code/handoff/internal/dto"
	"github.com/Additional-Code/handoff/internal/presentation/http/response"
	"github.com/Additional-Code/handoff/internal/transport/http/httperr"
	"github.com/Additional-Code/handoff/internal/transport/http/request"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/handoff/transport/http/session")

// Module wires the login endpoint.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Authenticator issues session tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, time.Time, auth.Principal, error)
}

// Handler exposes POST /auth/login.
type Handler struct {
	authn  Authenticator
	logger *zap.Logger
}

// NewHandler constructs a session Handler.
func NewHandler(a *auth.Authenticator, logger *zap.Logger) *Handler {
	return New(a, logger)
}

// New constructs a Handler over any Authenticator.
func New(a Authenticator, logger *zap.Logger) *Handler {
	return &Handler{authn: a, logger: logger.Named("http.session")}
}

// Register mounts the routes.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/auth/login", h.login)
}

func (h *Handler) login(c echo.Context) error {
	var req dto.LoginRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auth.login")
	defer span.End()

	token, exp, p, err := h.authn.Login(ctx, req.Username, req.Password)
	if err != nil {
		return httperr.Map(err)
	}
	h.logger.Info("session issued", zap.Int64("user_id", p.UserID), zap.String("role", string(p.Role)))

	return response.New(c).WithData(dto.LoginResponse{
		Token:     token,
		ExpiresAt: exp,
		UserID:    p.UserID,
		Username:  p.Username,
		Role:      string(p.Role),
	}).Build()
}
