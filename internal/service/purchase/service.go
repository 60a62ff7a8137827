package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/database"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/messaging"
	"github.com/Additional-Code/handoff/internal/observability"
	orderrepo "github.com/Additional-Code/handoff/internal/repository/order"
	productrepo "github.com/Additional-Code/handoff/internal/repository/product"
	userrepo "github.com/Additional-Code/handoff/internal/repository/user"
	"github.com/Additional-Code/handoff/internal/settlement"
)

// EventOrderCompleted is published after a completion commits.
const EventOrderCompleted = "order.completed"

// codeAttempts bounds retries when a generated order code is already taken.
const codeAttempts = 3

var serviceTracer = otel.Tracer("github.com/Additional-Code/handoff/service/purchase")

var (
	ErrOrderNotFound         = orderrepo.ErrNotFound
	ErrProductNotFound       = productrepo.ErrNotFound
	ErrInsufficientInventory = productrepo.ErrInsufficientInventory
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrInvalidDeliveryMethod = errors.New("delivery method must be pickup or delivery")
	ErrAddressRequired       = errors.New("delivery address is required for delivery")
)

// Module provides the purchase service to Fx.
var Module = fx.Provide(NewService)

// OrderStore is the order persistence the state machine drives.
type OrderStore interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	LockByID(ctx context.Context, id int64) (*entity.Order, error)
	UpdateStatus(ctx context.Context, order *entity.Order, from ...entity.OrderStatus) error
}

// ProductStore covers stock reservation.
type ProductStore interface {
	GetByID(ctx context.Context, id int64) (*entity.Product, error)
	LockByID(ctx context.Context, id int64) (*entity.Product, error)
	Reserve(ctx context.Context, id int64, quantity int) error
}

// Ledger maintains the denormalised per-user totals.
type Ledger interface {
	AddSales(ctx context.Context, userID int64, amount decimal.Decimal) error
	AddPurchases(ctx context.Context, userID int64, amount decimal.Decimal) error
}

// CreateInput describes a new purchase.
type CreateInput struct {
	BuyerID         int64
	ProductID       int64
	Quantity        int
	DeliveryMethod  entity.DeliveryMethod
	DeliveryAddress string
}

// Completion is the outcome of a successful handoff.
type Completion struct {
	Order          *entity.Order
	SellerID       int64
	SellerAmount   decimal.Decimal
	PlatformAmount decimal.Decimal
}

// CompletedEvent is the payload of EventOrderCompleted.
type CompletedEvent struct {
	OrderID        int64     `json:"order_id"`
	OrderCode      string    `json:"order_code"`
	BuyerID        int64     `json:"buyer_id"`
	SellerID       int64     `json:"seller_id"`
	AgentID        int64     `json:"agent_id"`
	DeliveryMethod string    `json:"delivery_method"`
	SellerAmount   string    `json:"seller_amount"`
	PlatformAmount string    `json:"platform_amount"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Service owns every order status change.
type Service struct {
	orders      OrderStore
	products    ProductStore
	ledger      Ledger
	tx          database.Transactor
	publisher   messaging.Client
	topic       string
	deliveryFee decimal.Decimal
	now         func() time.Time
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders     *orderrepo.Repository
	Products   *productrepo.Repository
	Users      *userrepo.Repository
	Transactor database.Transactor
	Publisher  messaging.Client
	Config     config.Config
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewService wires a Service from the Fx graph.
func NewService(p Params) *Service {
	return New(p.Orders, p.Products, p.Users, p.Transactor, p.Publisher, p.Config.Handoff.CompletedTopic,
		p.Config.Handoff.DeliveryFee, p.Metrics, p.Logger)
}

// New builds a Service.
func New(orders OrderStore, products ProductStore, ledger Ledger, tx database.Transactor, publisher messaging.Client,
	topic string, deliveryFee decimal.Decimal, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		orders:      orders,
		products:    products,
		ledger:      ledger,
		tx:          tx,
		publisher:   publisher,
		topic:       topic,
		deliveryFee: deliveryFee,
		now:         time.Now,
		metrics:     metrics,
		logger:      logger,
	}
}

// Create reserves stock and records a new order, leaving it awaiting pickup
// or delivery. Stock is taken here, not at completion.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseService.Create", trace.WithAttributes(
		attribute.Int64("buyer.id", in.BuyerID),
		attribute.Int64("product.id", in.ProductID),
	))
	defer span.End()

	if in.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if !in.DeliveryMethod.Valid() {
		return nil, ErrInvalidDeliveryMethod
	}
	if in.DeliveryMethod == entity.DeliveryDelivery && strings.TrimSpace(in.DeliveryAddress) == "" {
		return nil, ErrAddressRequired
	}

	var (
		order *entity.Order
		err   error
	)
	for attempt := 0; attempt < codeAttempts; attempt++ {
		order, err = s.create(ctx, in)
		if !database.IsUniqueViolation(err) {
			break
		}
		s.logger.Warn("order code collision", zap.Int("attempt", attempt+1))
	}
	if err != nil {
		return nil, observability.RecordError(span, err, "create failed")
	}

	s.logger.Info("order created",
		zap.String("order_code", order.Code),
		zap.Int64("buyer_id", order.BuyerID),
		zap.String("status", string(order.Status)),
	)
	return order, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (*entity.Order, error) {
	var order *entity.Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		product, err := s.products.LockByID(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if product.Inventory < in.Quantity {
			return ErrInsufficientInventory
		}
		if err := s.products.Reserve(ctx, product.ID, in.Quantity); err != nil {
			return err
		}

		fee := decimal.Zero
		if in.DeliveryMethod == entity.DeliveryDelivery {
			fee = s.deliveryFee
		}
		now := s.now().UTC()
		order = &entity.Order{
			Code:            newOrderCode(),
			BuyerID:         in.BuyerID,
			ProductID:       product.ID,
			Quantity:        in.Quantity,
			UnitPrice:       product.Price,
			PurchasePrice:   product.Price.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(2),
			DeliveryMethod:  in.DeliveryMethod,
			DeliveryFee:     fee,
			DeliveryAddress: in.DeliveryAddress,
			Status:          entity.StatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}
		return s.move(ctx, order, initialStatus(in.DeliveryMethod))
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// MarkOutForDelivery moves an awaiting_delivery order en route and records
// who dispatched it. The fulfillment agent is only set by Complete.
func (s *Service) MarkOutForDelivery(ctx context.Context, orderID, agentID int64) (*entity.Order, error) {
	return s.transition(ctx, "PurchaseService.MarkOutForDelivery", orderID, entity.StatusOutForDelivery, func(o *entity.Order) {
		o.DispatchedBy = &agentID
	})
}

// Cancel moves any non-terminal order to cancelled. Reserved stock is not
// returned.
func (s *Service) Cancel(ctx context.Context, orderID int64) (*entity.Order, error) {
	return s.transition(ctx, "PurchaseService.Cancel", orderID, entity.StatusCancelled, nil)
}

func (s *Service) transition(ctx context.Context, op string, orderID int64, to entity.OrderStatus, mutate func(*entity.Order)) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, op, trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	var order *entity.Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkTransition(order.Status, to); err != nil {
			return err
		}
		if mutate != nil {
			mutate(order)
		}
		return s.move(ctx, order, to)
	})
	if err != nil {
		return nil, observability.RecordError(span, err, "transition failed")
	}
	return order, nil
}

// move applies one edge and persists it guarded on the previous status.
func (s *Service) move(ctx context.Context, order *entity.Order, to entity.OrderStatus) error {
	from := order.Status
	if err := checkTransition(from, to); err != nil {
		return err
	}
	order.Status = to
	if err := s.orders.UpdateStatus(ctx, order, from); err != nil {
		order.Status = from
		if errors.Is(err, orderrepo.ErrStatusChanged) {
			return &TransitionError{From: from, To: to}
		}
		return err
	}
	return nil
}

// Complete records the handoff of orderID by agentID. In one transaction
// holding the order row lock it checks the status, fixes the settlement
// split (only if not already set), marks the order completed and credits
// the seller and buyer totals. A second call for the same order fails with
// ErrInvalidTransition and changes nothing.
func (s *Service) Complete(ctx context.Context, orderID, agentID int64) (Completion, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseService.Complete", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("agent.id", agentID),
	))
	defer span.End()

	var result Completion
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkTransition(order.Status, entity.StatusCompleted); err != nil {
			return err
		}

		product, err := s.products.GetByID(ctx, order.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}

		if !order.Settled() {
			split, err := settlement.Calculate(order.PurchasePrice, order.DeliveryFee)
			if err != nil {
				return err
			}
			order.SellerAmount = decimal.NewNullDecimal(split.SellerAmount)
			order.PlatformAmount = decimal.NewNullDecimal(split.PlatformAmount)
		}

		now := s.now().UTC()
		order.AgentID = &agentID
		order.CompletedAt = &now
		if err := s.move(ctx, order, entity.StatusCompleted); err != nil {
			return err
		}

		if err := s.ledger.AddSales(ctx, product.SellerID, order.SellerAmount.Decimal); err != nil {
			return fmt.Errorf("credit seller: %w", err)
		}
		if err := s.ledger.AddPurchases(ctx, order.BuyerID, order.PurchasePrice); err != nil {
			return fmt.Errorf("credit buyer: %w", err)
		}

		result = Completion{
			Order:          order,
			SellerID:       product.SellerID,
			SellerAmount:   order.SellerAmount.Decimal,
			PlatformAmount: order.PlatformAmount.Decimal,
		}
		return nil
	})
	if err != nil {
		return Completion{}, observability.RecordError(span, err, "complete failed")
	}

	s.metrics.Completed(ctx, string(result.Order.DeliveryMethod))
	s.logger.Info("order completed",
		zap.String("order_code", result.Order.Code),
		zap.Int64("agent_id", agentID),
		zap.String("seller_amount", result.SellerAmount.StringFixed(2)),
		zap.String("platform_amount", result.PlatformAmount.StringFixed(2)),
	)
	s.publishCompleted(ctx, result)
	return result, nil
}

// Get loads an order with relations.
func (s *Service) Get(ctx context.Context, orderID int64) (*entity.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

func (s *Service) publishCompleted(ctx context.Context, c Completion) {
	if s.publisher == nil {
		return
	}
	event := CompletedEvent{
		OrderID:        c.Order.ID,
		OrderCode:      c.Order.Code,
		BuyerID:        c.Order.BuyerID,
		SellerID:       c.SellerID,
		AgentID:        *c.Order.AgentID,
		DeliveryMethod: string(c.Order.DeliveryMethod),
		SellerAmount:   c.SellerAmount.StringFixed(2),
		PlatformAmount: c.PlatformAmount.StringFixed(2),
		CompletedAt:    *c.Order.CompletedAt,
	}
	if err := messaging.PublishEvent(ctx, s.publisher, s.topic, EventOrderCompleted, c.Order.Code, event); err != nil {
		s.logger.Error("publish order completed", zap.String("order_code", c.Order.Code), zap.Error(err))
	}
}

func newOrderCode() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:8])
}
