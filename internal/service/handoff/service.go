package handoff

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/auth"
	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/observability"
	"github.com/Additional-Code/handoff/internal/service/otp"
	"github.com/Additional-Code/handoff/internal/service/purchase"
	"github.com/Additional-Code/handoff/internal/service/token"
	"github.com/Additional-Code/handoff/internal/signer"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/handoff/service/handoff")

var (
	ErrTokenMalformed             = signer.ErrMalformed
	ErrTokenExpired               = signer.ErrExpired
	ErrTokenSignatureInvalid      = signer.ErrBadSignature
	ErrOrderNotFound              = purchase.ErrOrderNotFound
	ErrInvalidTransition          = purchase.ErrInvalidTransition
	ErrOTPNotFound                = otp.ErrNotFound
	ErrOTPExpired                 = otp.ErrExpired
	ErrNotificationDispatchFailed = otp.ErrDispatchFailed

	ErrOrderBuyerMismatch   = errors.New("order does not belong to the token holder")
	ErrOrderNotInToken      = errors.New("order is not listed in the scanned token")
	ErrAuthenticationFailed = errors.New("invalid credentials")
	ErrTicketInvalid        = errors.New("handoff ticket invalid")
	ErrTicketExpired        = errors.New("handoff ticket expired")
	ErrStepOutOfOrder       = errors.New("handoff step out of order")
)

// Module provides the orchestrator to Fx.
var Module = fx.Provide(NewService)

// TokenCodec decodes scanned tokens and reissues buyer tokens.
type TokenCodec interface {
	DecodeToken(ctx context.Context, raw string) (token.Snapshot, error)
	IssueToken(ctx context.Context, buyer token.Buyer) (token.Issued, error)
}

// OTPManager issues and checks confirmation codes.
type OTPManager interface {
	Issue(ctx context.Context, userID int64, purpose string) (otp.Challenge, error)
	Verify(ctx context.Context, userID int64, code, purpose string) error
}

// Purchases drives order state.
type Purchases interface {
	Get(ctx context.Context, orderID int64) (*entity.Order, error)
	Complete(ctx context.Context, orderID, agentID int64) (purchase.Completion, error)
}

// CredentialChecker re-authenticates the buyer.
type CredentialChecker interface {
	VerifyCredentials(ctx context.Context, username, password string) (*entity.User, error)
}

// DecodeResult is the outcome of scanning a token. NothingPending is set
// (and Ticket left empty) when the token lists no orders.
type DecodeResult struct {
	Snapshot        token.Snapshot
	NothingPending  bool
	Ticket          string
	TicketExpiresAt time.Time
}

// StepResult carries the ticket for the next step.
type StepResult struct {
	Ticket          string
	TicketExpiresAt time.Time
}

// OTPResult reports an issued code. Dispatched is false when the code was
// stored but not delivered.
type OTPResult struct {
	ExpiresAt  time.Time
	Dispatched bool
}

// CompleteResult is the receipt of a completed handoff.
type CompleteResult struct {
	OrderID        int64
	OrderCode      string
	SellerAmount   decimal.Decimal
	PlatformAmount decimal.Decimal
	CompletedAt    time.Time
	TokenRefreshed bool
}

// Service coordinates a handoff: decode, authenticate, OTP, verify,
// complete.
type Service struct {
	codec     TokenCodec
	otps      OTPManager
	purchases Purchases
	creds     CredentialChecker
	signer    *signer.Signer
	ticketTTL time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Codec         *token.Codec
	OTP           *otp.Manager
	Purchases     *purchase.Service
	Authenticator *auth.Authenticator
	Signer        *signer.Signer
	Config        config.Config
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NewService wires the orchestrator from the Fx graph.
func NewService(p Params) *Service {
	return New(p.Codec, p.OTP, p.Purchases, p.Authenticator, p.Signer, p.Config.Handoff.TicketTTL, p.Metrics, p.Logger)
}

// New builds the orchestrator.
func New(codec TokenCodec, otps OTPManager, purchases Purchases, creds CredentialChecker, s *signer.Signer,
	ticketTTL time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		codec:     codec,
		otps:      otps,
		purchases: purchases,
		creds:     creds,
		signer:    s,
		ticketTTL: ticketTTL,
		metrics:   metrics,
		logger:    logger.Named("handoff"),
	}
}

// Decode verifies a scanned token. Any verification failure aborts with
// the token error unchanged.
func (s *Service) Decode(ctx context.Context, agentID int64, raw string) (DecodeResult, error) {
	ctx, span := serviceTracer.Start(ctx, "Handoff.Decode", trace.WithAttributes(attribute.Int64("agent.id", agentID)))
	defer span.End()

	snapshot, err := s.codec.DecodeToken(ctx, raw)
	if err != nil {
		s.metrics.TokenRejected(ctx, rejectReason(err))
		return DecodeResult{}, err
	}
	span.SetAttributes(attribute.Int64("buyer.id", snapshot.BuyerID), attribute.Int("orders", len(snapshot.Orders)))

	if len(snapshot.Orders) == 0 {
		return DecodeResult{Snapshot: snapshot, NothingPending: true}, nil
	}

	ticket, exp, err := s.signTicket(Ticket{
		AgentID:       agentID,
		BuyerID:       snapshot.BuyerID,
		BuyerUsername: snapshot.Username,
		OrderIDs:      snapshot.OrderIDs(),
		Stage:         StageDecoded,
	})
	if err != nil {
		return DecodeResult{}, observability.RecordError(span, err, "sign ticket")
	}
	return DecodeResult{Snapshot: snapshot, Ticket: ticket, TicketExpiresAt: exp}, nil
}

// Authenticate binds the handoff to one order from the token and checks
// the buyer's password. Credential failures are reported uniformly.
func (s *Service) Authenticate(ctx context.Context, agentID int64, rawTicket string, orderID int64, username, password string) (StepResult, error) {
	ctx, span := serviceTracer.Start(ctx, "Handoff.Authenticate", trace.WithAttributes(
		attribute.Int64("agent.id", agentID),
		attribute.Int64("order.id", orderID),
	))
	defer span.End()

	t, err := s.openTicket(rawTicket, agentID, StageDecoded)
	if err != nil {
		return StepResult{}, err
	}
	if !t.lists(orderID) {
		return StepResult{}, ErrOrderNotInToken
	}

	order, err := s.purchases.Get(ctx, orderID)
	if err != nil {
		return StepResult{}, observability.RecordError(span, err, "load order")
	}
	if order.BuyerID != t.BuyerID {
		s.logger.Warn("order buyer mismatch",
			zap.Int64("order_id", orderID),
			zap.Int64("token_buyer_id", t.BuyerID),
			zap.Int64("agent_id", agentID),
		)
		return StepResult{}, ErrOrderBuyerMismatch
	}

	user, err := s.creds.VerifyCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return StepResult{}, ErrAuthenticationFailed
		}
		return StepResult{}, observability.RecordError(span, err, "verify credentials")
	}
	if user.ID != t.BuyerID {
		return StepResult{}, ErrAuthenticationFailed
	}

	t.OrderID = orderID
	t.Stage = StageAuthenticated
	ticket, exp, err := s.signTicket(t)
	if err != nil {
		return StepResult{}, observability.RecordError(span, err, "sign ticket")
	}
	return StepResult{Ticket: ticket, TicketExpiresAt: exp}, nil
}

// RequestOTP sends the buyer a confirmation code. It may be called again
// at the same stage to resend; each call supersedes the previous code.
// When delivery fails the result is returned along with an error matching
// ErrNotificationDispatchFailed.
func (s *Service) RequestOTP(ctx context.Context, agentID int64, rawTicket string, userID int64) (OTPResult, error) {
	ctx, span := serviceTracer.Start(ctx, "Handoff.RequestOTP", trace.WithAttributes(attribute.Int64("agent.id", agentID)))
	defer span.End()

	t, err := s.openTicket(rawTicket, agentID, StageAuthenticated)
	if err != nil {
		return OTPResult{}, err
	}
	if userID != t.BuyerID {
		return OTPResult{}, ErrTicketInvalid
	}

	challenge, err := s.otps.Issue(ctx, t.BuyerID, otp.PurposeFulfillment)
	if err != nil {
		if errors.Is(err, otp.ErrDispatchFailed) {
			return OTPResult{ExpiresAt: challenge.ExpiresAt}, err
		}
		return OTPResult{}, observability.RecordError(span, err, "issue otp")
	}
	return OTPResult{ExpiresAt: challenge.ExpiresAt, Dispatched: true}, nil
}

// VerifyOTP checks the code the buyer gave the agent.
func (s *Service) VerifyOTP(ctx context.Context, agentID int64, rawTicket string, userID int64, code string) (StepResult, error) {
	ctx, span := serviceTracer.Start(ctx, "Handoff.VerifyOTP", trace.WithAttributes(attribute.Int64("agent.id", agentID)))
	defer span.End()

	t, err := s.openTicket(rawTicket, agentID, StageAuthenticated)
	if err != nil {
		return StepResult{}, err
	}
	if userID != t.BuyerID {
		return StepResult{}, ErrTicketInvalid
	}

	if err := s.otps.Verify(ctx, t.BuyerID, code, otp.PurposeFulfillment); err != nil {
		if errors.Is(err, otp.ErrNotFound) || errors.Is(err, otp.ErrExpired) {
			return StepResult{}, err
		}
		return StepResult{}, observability.RecordError(span, err, "verify otp")
	}

	t.Stage = StageVerified
	ticket, exp, err := s.signTicket(t)
	if err != nil {
		return StepResult{}, observability.RecordError(span, err, "sign ticket")
	}
	return StepResult{Ticket: ticket, TicketExpiresAt: exp}, nil
}

// Complete finalises the order chosen at authentication and then refreshes
// the buyer's token. A refresh failure is logged and reported only through
// TokenRefreshed.
func (s *Service) Complete(ctx context.Context, agentID int64, rawTicket string, orderID int64) (CompleteResult, error) {
	ctx, span := serviceTracer.Start(ctx, "Handoff.Complete", trace.WithAttributes(
		attribute.Int64("agent.id", agentID),
		attribute.Int64("order.id", orderID),
	))
	defer span.End()

	t, err := s.openTicket(rawTicket, agentID, StageVerified)
	if err != nil {
		return CompleteResult{}, err
	}
	if orderID != t.OrderID {
		return CompleteResult{}, ErrTicketInvalid
	}

	completion, err := s.purchases.Complete(ctx, orderID, agentID)
	if err != nil {
		if errors.Is(err, purchase.ErrInvalidTransition) {
			s.logger.Info("completion rejected", zap.Int64("order_id", orderID), zap.Error(err))
			return CompleteResult{}, err
		}
		return CompleteResult{}, observability.RecordError(span, err, "complete order")
	}

	result := CompleteResult{
		OrderID:        completion.Order.ID,
		OrderCode:      completion.Order.Code,
		SellerAmount:   completion.SellerAmount,
		PlatformAmount: completion.PlatformAmount,
	}
	if completion.Order.CompletedAt != nil {
		result.CompletedAt = *completion.Order.CompletedAt
	}

	if _, err := s.codec.IssueToken(ctx, token.Buyer{ID: t.BuyerID, Username: t.BuyerUsername}); err != nil {
		s.logger.Warn("token refresh after completion failed",
			zap.Int64("buyer_id", t.BuyerID),
			zap.String("order_code", result.OrderCode),
			zap.Error(err),
		)
	} else {
		result.TokenRefreshed = true
	}
	return result, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, signer.ErrExpired):
		return "expired"
	case errors.Is(err, signer.ErrBadSignature):
		return "signature"
	default:
		return "malformed"
	}
}
