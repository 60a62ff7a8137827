package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/database"
)

// ServiceName is the health-check service key reported to probes.
const ServiceName = "handoff"

// Module exposes the gRPC server and lifecycle hooks to Fx. The server only
// carries the standard health service for orchestrator probes.
var Module = fx.Module("grpc_server",
	fx.Provide(NewServer, health.NewServer),
	fx.Invoke(Run),
)

// NewServer builds a gRPC server with logging interceptors and registers
// the health service.
func NewServer(logger *zap.Logger, hs *health.Server) *grpc.Server {
	unary := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(logger, "unary", info.FullMethod, time.Since(start), err)
		return resp, err
	}

	stream := func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(logger, "stream", info.FullMethod, time.Since(start), err)
		return err
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unary),
		grpc.ChainStreamInterceptor(stream),
	)
	healthpb.RegisterHealthServer(server, hs)
	return server
}

func logCall(logger *zap.Logger, kind, method string, d time.Duration, err error) {
	fields := []zap.Field{zap.String("kind", kind), zap.String("method", method), zap.Duration("duration", d)}
	if err != nil {
		logger.Warn("grpc call finished", append(fields, zap.Error(err))...)
		return
	}
	logger.Debug("grpc call finished", fields...)
}

// Run binds the gRPC server and flips health to SERVING once the database
// answers a ping.
func Run(lc fx.Lifecycle, cfg config.Config, server *grpc.Server, hs *health.Server, conns *database.Connections, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen grpc: %w", err)
			}
			status := healthpb.HealthCheckResponse_SERVING
			if err := conns.Ping(ctx); err != nil {
				logger.Warn("database not reachable at startup", zap.Error(err))
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			hs.SetServingStatus(ServiceName, status)
			hs.SetServingStatus("", status)

			logger.Info("starting gRPC server", zap.String("addr", addr))
			go func() {
				if err := server.Serve(ln); err != nil {
					logger.Error("grpc server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping gRPC server")
			hs.Shutdown()

			stopped := make(chan struct{})
			go func() {
				server.GracefulStop()
				close(stopped)
			}()

			select {
			case <-ctx.Done():
				server.Stop()
				return ctx.Err()
			case <-stopped:
				return nil
			}
		},
	})
}
