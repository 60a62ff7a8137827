package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/messaging"
	userrepo "github.com/Additional-Code/handoff/internal/repository/user"
	otpsvc "github.com/Additional-Code/handoff/internal/service/otp"
	"github.com/Additional-Code/handoff/internal/service/purchase"
	"github.com/Additional-Code/handoff/internal/service/token"
	"github.com/Additional-Code/handoff/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/handoff/worker/handoff")

// Module registers handoff worker handlers and jobs.
var Module = fx.Module("worker_handoff",
	fx.Provide(
		fx.Annotate(
			NewCompletedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
		fx.Annotate(
			NewPurgeJob,
			fx.ResultTags(`group:"worker.jobs"`),
		),
	),
)

// BuyerLookup resolves the buyer named in an event.
type BuyerLookup interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
}

// TokenIssuer refreshes a buyer's cached token.
type TokenIssuer interface {
	IssueToken(ctx context.Context, buyer token.Buyer) (token.Issued, error)
}

// Purger removes expired confirmation codes.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// CompletedParams defines dependencies for the completion handler.
type CompletedParams struct {
	fx.In

	Users  *userrepo.Repository
	Codec  *token.Codec
	Config config.Config
	Logger *zap.Logger
}

// NewCompletedHandler wires the order.completed handler from the Fx graph.
func NewCompletedHandler(p CompletedParams) worker.HandlerRegistration {
	return CompletedHandler(p.Users, p.Codec, p.Config.Handoff.RegenerateOnEvent, p.Logger)
}

// CompletedHandler records an audit line for every completed order and,
// when refresh is set, reissues the buyer's token so the cached copy no
// longer lists the order.
func CompletedHandler(users BuyerLookup, tokens TokenIssuer, refresh bool, logger *zap.Logger) worker.HandlerRegistration {
	logger = logger.Named("worker.handoff")

	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.handoff.completed", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event purchase.CompletedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order completed", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			// Undecodable messages are dropped.
			return nil
		}
		span.SetAttributes(attribute.Int64("order.id", event.OrderID))

		logger.Info("order completed",
			zap.Int64("order_id", event.OrderID),
			zap.String("order_code", event.OrderCode),
			zap.Int64("buyer_id", event.BuyerID),
			zap.Int64("seller_id", event.SellerID),
			zap.Int64("agent_id", event.AgentID),
			zap.String("seller_amount", event.SellerAmount),
			zap.String("platform_amount", event.PlatformAmount),
			zap.Time("completed_at", event.CompletedAt),
		)

		if !refresh {
			return nil
		}

		buyer, err := users.GetByID(ctx, event.BuyerID)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("load buyer %d: %w", event.BuyerID, err)
		}
		if _, err := tokens.IssueToken(ctx, token.Buyer{ID: buyer.ID, Username: buyer.Username}); err != nil {
			span.RecordError(err)
			return fmt.Errorf("refresh token for buyer %d: %w", buyer.ID, err)
		}
		return nil
	}

	return worker.HandlerRegistration{
		EventType: purchase.EventOrderCompleted,
		Handler:   handler,
	}
}

// NewPurgeJob wires the OTP sweeper from the Fx graph.
func NewPurgeJob(m *otpsvc.Manager, cfg config.Config, logger *zap.Logger) worker.Job {
	return PurgeJob(m, cfg.Handoff.OTPPurgeInterval, logger)
}

// PurgeJob deletes expired confirmation codes every interval.
func PurgeJob(p Purger, interval time.Duration, logger *zap.Logger) worker.Job {
	logger = logger.Named("worker.otp_purge")
	return worker.Job{
		Name:     "otp_purge",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := p.Purge(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("purged expired otp challenges", zap.Int64("deleted", n))
			}
			return nil
		},
	}
}
