package logger

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/handoff/internal/config"
)

// Module exposes a configured Zap logger to the Fx container and routes
// Fx's own lifecycle events through it.
var Module = fx.Options(
	fx.Provide(New),
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log.Named("fx")}
	}),
)

// New builds the process logger. Console encoding switches to the
// development preset; everything else is production JSON.
func New(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	obs := cfg.Observability
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(obs.LogLevel)); err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if obs.LogEncoding == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg.Encoding = "json"
		zapCfg.EncoderConfig.TimeKey = "ts"
		zapCfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	zapCfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	log, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	log = log.With(
		zap.String("service", obs.ServiceName),
		zap.String("environment", obs.Environment),
	)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// stdout/stderr sync returns EINVAL on some platforms.
			_ = log.Sync()
			return nil
		},
	})

	return log, nil
}

// Named returns a child logger for a component, tolerating nil.
func Named(log *zap.Logger, component string) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log.Named(component)
}
