package handoff

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/auth"
	"github.com/Additional-Code/handoff/internal/dto"
	"github.com/Additional-Code/handoff/internal/presentation/http/response"
	handoffsvc "github.com/Additional-Code/handoff/internal/service/handoff"
	"github.com/Additional-Code/handoff/internal/service/token"
	"github.com/Additional-Code/handoff/internal/transport/http/httperr"
	"github.com/Additional-Code/handoff/internal/transport/http/request"
	"github.com/Additional-Code/handoff/pkg/errorbank"
)

//go:generate mockgen -destination=mocks/mock_handler.go -package=mocks . Orchestrator,Tokens

var httpTracer = otel.Tracer("github.com/Additional-Code/handoff/transport/http/handoff")

// Orchestrator runs the agent side of a handoff.
type Orchestrator interface {
	Decode(ctx context.Context, agentID int64, raw string) (handoffsvc.DecodeResult, error)
	Authenticate(ctx context.Context, agentID int64, ticket string, orderID int64, username, password string) (handoffsvc.StepResult, error)
	RequestOTP(ctx context.Context, agentID int64, ticket string, userID int64) (handoffsvc.OTPResult, error)
	VerifyOTP(ctx context.Context, agentID int64, ticket string, userID int64, code string) (handoffsvc.StepResult, error)
	Complete(ctx context.Context, agentID int64, ticket string, orderID int64) (handoffsvc.CompleteResult, error)
}

// Tokens issues the buyer side pickup token.
type Tokens interface {
	IssueToken(ctx context.Context, buyer token.Buyer) (token.Issued, error)
	RenderQR(raw string) ([]byte, error)
}

// Handler exposes handoff endpoints over HTTP.
type Handler struct {
	svc    Orchestrator
	tokens Tokens
	logger *zap.Logger
}

// Params defines dependencies for constructing Handler.
type Params struct {
	fx.In

	Service *handoffsvc.Service
	Codec   *token.Codec
	Logger  *zap.Logger
}

// NewHandler wires a Handler from the Fx graph.
func NewHandler(p Params) *Handler {
	return New(p.Service, p.Codec, p.Logger)
}

// New constructs a Handler.
func New(svc Orchestrator, tokens Tokens, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger.Named("http.handoff")}
}

// Register mounts the routes. authn must populate the request principal.
func Register(e *echo.Echo, h *Handler, authn echo.MiddlewareFunc) {
	g := e.Group("/handoff", authn)

	agent := auth.Require(auth.CapHandoff)
	g.POST("/decode", h.decode, agent)
	g.POST("/authenticate", h.authenticate, agent)
	g.POST("/otp/request", h.requestOTP, agent)
	g.POST("/otp/verify", h.verifyOTP, agent)
	g.POST("/complete", h.complete, agent)

	buyer := auth.Require(auth.CapIssueToken)
	g.GET("/token", h.buyerToken, buyer)
	g.GET("/token/qr", h.tokenQR, buyer)
}

func (h *Handler) decode(c echo.Context) error {
	var req dto.DecodeRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	p, _ := auth.PrincipalFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "handoff.decode", trace.WithAttributes(attribute.Int64("agent.id", p.UserID)))
	defer span.End()

	res, err := h.svc.Decode(ctx, p.UserID, req.Token)
	if err != nil {
		return httperr.Map(err)
	}

	out := dto.DecodeResponse{
		BuyerID:        res.Snapshot.BuyerID,
		Username:       res.Snapshot.Username,
		IssuedAt:       res.Snapshot.IssuedAt,
		Orders:         toSummaries(res.Snapshot.Orders),
		NothingPending: res.NothingPending,
		Ticket:         res.Ticket,
	}
	if !res.TicketExpiresAt.IsZero() {
		out.TicketExpiresAt = &res.TicketExpiresAt
	}
	return response.New(c).WithData(out).Build()
}

func (h *Handler) authenticate(c echo.Context) error {
	var req dto.AuthenticateRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	p, _ := auth.PrincipalFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "handoff.authenticate", trace.WithAttributes(
		attribute.Int64("agent.id", p.UserID),
		attribute.Int64("order.id", req.OrderID),
	))
	defer span.End()

	res, err := h.svc.Authenticate(ctx, p.UserID, req.Ticket, req.OrderID, req.Username, req.Password)
	if err != nil {
		return httperr.Map(err)
	}
	return response.New(c).WithData(dto.StepResponse{Ticket: res.Ticket, TicketExpiresAt: res.TicketExpiresAt}).Build()
}

func (h *Handler) requestOTP(c echo.Context) error {
	var req dto.OTPRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	p, _ := auth.PrincipalFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "handoff.requestOTP", trace.WithAttributes(attribute.Int64("agent.id", p.UserID)))
	defer span.End()

	res, err := h.svc.RequestOTP(ctx, p.UserID, req.Ticket, req.UserID)
	if err != nil {
		if !res.ExpiresAt.IsZero() {
			return httperr.Map(err, errorbank.WithDetail("expires_at", res.ExpiresAt))
		}
		return httperr.Map(err)
	}
	return response.New(c).WithData(dto.OTPResponse{ExpiresAt: res.ExpiresAt, Dispatched: res.Dispatched}).Build()
}

func (h *Handler) verifyOTP(c echo.Context) error {
	var req dto.OTPVerifyRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	p, _ := auth.PrincipalFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "handoff.verifyOTP", trace.WithAttributes(attribute.Int64("agent.id", p.UserID)))
	defer span.End()

	res, err := h.svc.VerifyOTP(ctx, p.UserID, req.Ticket, req.UserID, req.Code)
	if err != nil {
		return httperr.Map(err)
	}
	return response.New(c).WithData(dto.StepResponse{Ticket: res.Ticket, TicketExpiresAt: res.TicketExpiresAt}).Build()
}

func (h *Handler) complete(c echo.Context) error {
	var req dto.CompleteRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	p, _ := auth.PrincipalFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "handoff.complete", trace.WithAttributes(
		attribute.Int64("agent.id", p.UserID),
		attribute.Int64("order.id", req.OrderID),
	))
	defer span.End()

	res, err := h.svc.Complete(ctx, p.UserID, req.Ticket, req.OrderID)
	if err != nil {
		return httperr.Map(err)
	}
	h.logger.Info("handoff completed",
		zap.Int64("order_id", res.OrderID),
		zap.String("order_code", res.OrderCode),
		zap.Int64("agent_id", p.UserID),
	)
	return response.New(c).WithData(dto.CompleteResponse{
		OrderID:        res.OrderID,
		OrderCode:      res.OrderCode,
		SellerAmount:   res.SellerAmount.StringFixed(2),
		PlatformAmount: res.PlatformAmount.StringFixed(2),
		CompletedAt:    res.CompletedAt,
		TokenRefreshed: res.TokenRefreshed,
	}).Build()
}

func (h *Handler) buyerToken(c echo.Context) error {
	p, _ := auth.PrincipalFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "handoff.buyerToken", trace.WithAttributes(attribute.Int64("buyer.id", p.UserID)))
	defer span.End()

	issued, err := h.tokens.IssueToken(ctx, token.Buyer{ID: p.UserID, Username: p.Username})
	if err != nil {
		return httperr.Map(err)
	}
	return response.New(c).WithData(dto.TokenResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		Orders:    toSummaries(issued.Snapshot.Orders),
	}).Build()
}

func (h *Handler) tokenQR(c echo.Context) error {
	p, _ := auth.PrincipalFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "handoff.tokenQR", trace.WithAttributes(attribute.Int64("buyer.id", p.UserID)))
	defer span.End()

	issued, err := h.tokens.IssueToken(ctx, token.Buyer{ID: p.UserID, Username: p.Username})
	if err != nil {
		return httperr.Map(err)
	}
	png, err := h.tokens.RenderQR(issued.Token)
	if err != nil {
		return err
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return response.New(c).WithStatus(http.StatusOK).Blob("image/png", png)
}

func toSummaries(orders []token.OrderSummary) []dto.OrderSummary {
	out := make([]dto.OrderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, dto.OrderSummary{
			OrderID:        o.OrderID,
			OrderCode:      o.OrderCode,
			ProductName:    o.ProductName,
			Quantity:       o.Quantity,
			UnitPrice:      o.UnitPrice,
			SellerUsername: o.SellerUsername,
		})
	}
	return out
}
