package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/observability"
	"github.com/Additional-Code/handoff/internal/presentation/http/response"
	"github.com/Additional-Code/handoff/pkg/errorbank"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(Run),
)

// RequestValidator adapts go-playground/validator to echo.Validator.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator builds the shared struct validator.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns a bad_request AppError listing failing fields.
func (v *RequestValidator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errorbank.BadRequest("invalid request", errorbank.WithCause(err))
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Tag()
	}
	return errorbank.BadRequest("invalid request",
		errorbank.WithCode("validation_failed"),
		errorbank.WithDetail("fields", fields),
	)
}

// NewEcho configures the Echo router with basic middleware.
func NewEcho(cfg config.Config, obs *observability.Manager, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if obs != nil && obs.TracingEnabled() {
		e.Use(otelecho.Middleware(cfg.Observability.ServiceName))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if obs != nil && obs.MetricsHandler() != nil {
		e.GET(obs.PrometheusPath(), echo.WrapHandler(obs.MetricsHandler()))
	}

	return e
}

// ErrorHandler renders echo's own errors (404 routes, 401 from the JWT
// middleware, bad binds) in the same envelope as handler errors.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			msg := http.StatusText(httpErr.Code)
			if s, ok := httpErr.Message.(string); ok && s != "" {
				msg = s
			}
			kind := errorbank.KindBadRequest
			switch httpErr.Code {
			case http.StatusUnauthorized:
				kind = errorbank.KindUnauthorized
			case http.StatusForbidden:
				kind = errorbank.KindForbidden
			case http.StatusNotFound, http.StatusMethodNotAllowed:
				kind = errorbank.KindNotFound
			}
			if httpErr.Code >= http.StatusInternalServerError {
				kind = errorbank.KindInternal
			}
			err = errorbank.New(kind, msg, errorbank.WithCause(httpErr.Internal))
		}

		appErr := errorbank.From(err)
		if appErr.Kind() == errorbank.KindInternal {
			logger.Error("http request failed",
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		if buildErr := response.New(c).WithError(appErr).Build(); buildErr != nil {
			logger.Warn("write error response", zap.Error(buildErr))
		}
	}
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{Addr: addr, Handler: e}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
