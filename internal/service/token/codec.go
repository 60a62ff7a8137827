package token

import (
	"context"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/cache"
	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/observability"
	orderrepo "github.com/Additional-Code/handoff/internal/repository/order"
	"github.com/Additional-Code/handoff/internal/signer"
)

// Audience is the token audience for buyer pickup tokens.
const Audience = "handoff-token"

var serviceTracer = otel.Tracer("github.com/Additional-Code/handoff/service/token")

// PendingStatuses are the statuses a token lists.
var PendingStatuses = []entity.OrderStatus{entity.StatusAwaitingPickup, entity.StatusAwaitingDelivery}

// Module provides the codec to Fx.
var Module = fx.Provide(NewCodec)

// OrderLister is the read side of the order store the codec needs.
type OrderLister interface {
	ListForBuyer(ctx context.Context, buyerID int64, statuses []entity.OrderStatus) ([]entity.Order, error)
}

// OrderSummary is one outstanding order inside a token.
type OrderSummary struct {
	OrderID        int64  `json:"order_id" validate:"required"`
	OrderCode      string `json:"order_code" validate:"required"`
	ProductName    string `json:"product_name" validate:"required"`
	Quantity       int    `json:"quantity" validate:"required,min=1"`
	UnitPrice      string `json:"unit_price" validate:"required,numeric"`
	SellerUsername string `json:"seller_username" validate:"required"`
}

// Snapshot is the signed payload: who the buyer is and what they were owed
// when the token was issued.
type Snapshot struct {
	BuyerID  int64          `json:"buyer_id" validate:"required"`
	Username string         `json:"username" validate:"required"`
	IssuedAt time.Time      `json:"issued_at" validate:"required"`
	Orders   []OrderSummary `json:"orders" validate:"required,dive"`
}

// OrderIDs lists the ids in the snapshot.
func (s Snapshot) OrderIDs() []int64 {
	ids := make([]int64, 0, len(s.Orders))
	for _, o := range s.Orders {
		ids = append(ids, o.OrderID)
	}
	return ids
}

// Buyer identifies whose token to issue.
type Buyer struct {
	ID       int64
	Username string
}

// Issued is a freshly signed token.
type Issued struct {
	Token     string
	ExpiresAt time.Time
	Snapshot  Snapshot
}

// Codec builds, signs and decodes buyer tokens.
type Codec struct {
	orders  OrderLister
	signer  *signer.Signer
	ttl     time.Duration
	cache   cache.Store
	qrSize  int
	now     func() time.Time
	metrics *observability.Metrics
	logger  *zap.Logger
}

// Params defines dependencies for constructing Codec.
type Params struct {
	fx.In

	Orders  *orderrepo.Repository
	Signer  *signer.Signer
	Cache   cache.Store
	Config  config.Config
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// NewCodec wires a Codec from the Fx graph.
func NewCodec(p Params) *Codec {
	return New(p.Orders, p.Signer, p.Cache, p.Config.Handoff.TokenTTL, p.Config.Handoff.QRSize, p.Metrics, p.Logger)
}

// New builds a Codec.
func New(orders OrderLister, s *signer.Signer, store cache.Store, ttl time.Duration, qrSize int, metrics *observability.Metrics, logger *zap.Logger) *Codec {
	return &Codec{
		orders:  orders,
		signer:  s,
		ttl:     ttl,
		cache:   store,
		qrSize:  qrSize,
		now:     time.Now,
		metrics: metrics,
		logger:  logger,
	}
}

// IssueToken snapshots the buyer's live pending orders and signs them. Every
// call reads the orders afresh. The signed token is written to the cache as a
// display copy only; nothing reads it back, and a write failure is logged and
// otherwise ignored.
func (c *Codec) IssueToken(ctx context.Context, buyer Buyer) (Issued, error) {
	ctx, span := serviceTracer.Start(ctx, "TokenCodec.IssueToken", trace.WithAttributes(attribute.Int64("buyer.id", buyer.ID)))
	defer span.End()

	orders, err := c.orders.ListForBuyer(ctx, buyer.ID, PendingStatuses)
	if err != nil {
		return Issued{}, observability.RecordError(span, fmt.Errorf("list pending orders: %w", err), "list failed")
	}

	snapshot := Snapshot{
		BuyerID:  buyer.ID,
		Username: buyer.Username,
		IssuedAt: c.now().UTC(),
		Orders:   make([]OrderSummary, 0, len(orders)),
	}
	for i := range orders {
		snapshot.Orders = append(snapshot.Orders, summarize(&orders[i]))
	}

	signed, expiresAt, err := c.signer.Sign(Audience, snapshot, c.ttl)
	if err != nil {
		return Issued{}, observability.RecordError(span, err, "sign failed")
	}
	c.metrics.TokenIssued(ctx)
	span.SetAttributes(attribute.Int("orders", len(snapshot.Orders)))

	if err := c.cache.Set(ctx, cache.TokenKey(buyer.ID), []byte(signed), c.ttl); err != nil {
		c.logger.Warn("token cache write failed", zap.Int64("buyer_id", buyer.ID), zap.Error(err))
	}

	return Issued{Token: signed, ExpiresAt: expiresAt, Snapshot: snapshot}, nil
}

// DecodeToken verifies raw and returns the embedded snapshot as signed. It
// does not consult the database. Errors are signer.ErrMalformed,
// signer.ErrBadSignature or signer.ErrExpired.
func (c *Codec) DecodeToken(ctx context.Context, raw string) (Snapshot, error) {
	_, span := serviceTracer.Start(ctx, "TokenCodec.DecodeToken")
	defer span.End()

	var snapshot Snapshot
	if err := c.signer.Verify(raw, Audience, &snapshot); err != nil {
		return Snapshot{}, observability.RecordError(span, err, "verify failed")
	}
	return snapshot, nil
}

// RenderQR encodes token as a PNG QR code.
func (c *Codec) RenderQR(token string) ([]byte, error) {
	return qrcode.Encode(token, qrcode.Medium, c.qrSize)
}

func summarize(o *entity.Order) OrderSummary {
	summary := OrderSummary{
		OrderID:        o.ID,
		OrderCode:      o.Code,
		ProductName:    fmt.Sprintf("product #%d", o.ProductID),
		Quantity:       o.Quantity,
		UnitPrice:      o.UnitPrice.StringFixed(2),
		SellerUsername: "unknown",
	}
	if o.Product != nil {
		summary.ProductName = o.Product.Title
		if o.Product.Seller != nil {
			summary.SellerUsername = o.Product.Seller.Username
		}
	}
	return summary
}
