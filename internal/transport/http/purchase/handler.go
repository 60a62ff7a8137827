package purchase

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/handoff/internal/auth"
	"github.com/Additional-Code/handoff/internal/dto"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/presentation/http/response"
	service "github.com/Additional-Code/handoff/internal/service/purchase"
	"github.com/Additional-Code/handoff/internal/transport/http/httperr"
	"github.com/Additional-Code/handoff/internal/transport/http/request"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/handoff/transport/http/purchase")

// Purchases is the order lifecycle used by the handlers.
type Purchases interface {
	Create(ctx context.Context, in service.CreateInput) (*entity.Order, error)
	Get(ctx context.Context, orderID int64) (*entity.Order, error)
	MarkOutForDelivery(ctx context.Context, orderID, agentID int64) (*entity.Order, error)
	Cancel(ctx context.Context, orderID int64) (*entity.Order, error)
}

// Handler exposes purchase and order endpoints over HTTP.
type Handler struct {
	svc Purchases
}

// NewHandler constructs a purchase Handler.
func NewHandler(svc *service.Service) *Handler {
	return New(svc)
}

// New constructs a Handler over any Purchases implementation.
func New(svc Purchases) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes. authn must populate the request principal.
func Register(e *echo.Echo, h *Handler, authn echo.MiddlewareFunc) {
	e.POST("/purchases", h.create, authn, auth.Require(auth.CapPurchase))

	g := e.Group("/orders", authn)
	g.GET("/:id", h.getByID)
	g.POST("/:id/out-for-delivery", h.outForDelivery, auth.Require(auth.CapMarkOutForDelivery))
	g.POST("/:id/cancel", h.cancel, auth.Require(auth.CapCancelOrder))
}

func (h *Handler) create(c echo.Context) error {
	var req dto.PurchaseRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	p, _ := auth.PrincipalFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "purchases.create", trace.WithAttributes(
		attribute.Int64("buyer.id", p.UserID),
		attribute.Int64("product.id", req.ProductID),
	))
	defer span.End()

	order, err := h.svc.Create(ctx, service.CreateInput{
		BuyerID:         p.UserID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		DeliveryMethod:  entity.DeliveryMethod(req.DeliveryMethod),
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		return httperr.Map(err)
	}
	return response.New(c).WithStatus(http.StatusCreated).WithData(toDTO(order)).Build()
}

// getByID lets buyers read their own orders; handoff staff may read any.
func (h *Handler) getByID(c echo.Context) error {
	id, err := request.PathID(c, "id")
	if err != nil {
		return err
	}
	p, _ := auth.PrincipalFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return httperr.Map(err)
	}
	if order.BuyerID != p.UserID && !auth.Can(p.Role, auth.CapHandoff) {
		// Same answer as a missing order so ids cannot be enumerated.
		return httperr.Map(service.ErrOrderNotFound)
	}
	return response.New(c).WithData(toDTO(order)).Build()
}

func (h *Handler) outForDelivery(c echo.Context) error {
	id, err := request.PathID(c, "id")
	if err != nil {
		return err
	}
	p, _ := auth.PrincipalFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.outForDelivery", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.Int64("agent.id", p.UserID),
	))
	defer span.End()

	order, err := h.svc.MarkOutForDelivery(ctx, id, p.UserID)
	if err != nil {
		return httperr.Map(err)
	}
	return response.New(c).WithData(toDTO(order)).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	id, err := request.PathID(c, "id")
	if err != nil {
		return err
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Cancel(ctx, id)
	if err != nil {
		return httperr.Map(err)
	}
	return response.New(c).WithData(toDTO(order)).Build()
}

func toDTO(o *entity.Order) dto.OrderResponse {
	out := dto.OrderResponse{
		ID:              o.ID,
		Code:            o.Code,
		BuyerID:         o.BuyerID,
		ProductID:       o.ProductID,
		Quantity:        o.Quantity,
		UnitPrice:       o.UnitPrice.StringFixed(2),
		PurchasePrice:   o.PurchasePrice.StringFixed(2),
		DeliveryMethod:  string(o.DeliveryMethod),
		DeliveryFee:     o.DeliveryFee.StringFixed(2),
		DeliveryAddress: o.DeliveryAddress,
		Status:          string(o.Status),
		DispatchedBy:    o.DispatchedBy,
		AgentID:         o.AgentID,
		CompletedAt:     o.CompletedAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.SellerAmount.Valid {
		v := o.SellerAmount.Decimal.StringFixed(2)
		out.SellerAmount = &v
	}
	if o.PlatformAmount.Valid {
		v := o.PlatformAmount.Decimal.StringFixed(2)
		out.PlatformAmount = &v
	}
	return out
}

