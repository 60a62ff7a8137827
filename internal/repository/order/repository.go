package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/handoff/internal/database"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/observability"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/handoff/repository/order")

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrStatusChanged is returned when a guarded update finds the row no
	// longer in one of the expected statuses.
	ErrStatusChanged = errors.New("order status changed concurrently")
)

// Module provides the order repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository encapsulates read/write access for orders. Writes and locks use
// the transaction bound to ctx when there is one.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create inserts a new order.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.code", order.Code)))
	defer span.End()

	_, err := database.Conn(ctx, r.writer).NewInsert().Model(order).Exec(ctx)
	return observability.RecordError(span, err, "insert failed")
}

// GetByID loads an order with its product, seller and buyer.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := database.Conn(ctx, r.reader).NewSelect().
		Model(order).
		Relation("Product").
		Relation("Product.Seller").
		Relation("Buyer").
		Where("o.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, observability.RecordError(span, err, "select failed")
	}
	return order, nil
}

// LockByID selects the bare order row FOR UPDATE. It must run inside a
// transaction; the lock is held until that transaction ends.
func (r *Repository) LockByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.LockByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if !database.InTransaction(ctx) {
		return nil, observability.RecordError(span, errors.New("LockByID requires a transaction"), "no transaction")
	}

	order := new(entity.Order)
	err := database.Conn(ctx, r.writer).NewSelect().
		Model(order).
		Where("o.id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, observability.RecordError(span, err, "lock failed")
	}
	return order, nil
}

// ListForBuyer returns the buyer's orders in any of statuses, oldest first,
// with product and seller loaded.
func (r *Repository) ListForBuyer(ctx context.Context, buyerID int64, statuses []entity.OrderStatus) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListForBuyer", trace.WithAttributes(attribute.Int64("buyer.id", buyerID)))
	defer span.End()

	orders := make([]entity.Order, 0)
	err := database.Conn(ctx, r.reader).NewSelect().
		Model(&orders).
		Relation("Product").
		Relation("Product.Seller").
		Where("o.buyer_id = ?", buyerID).
		Where("o.status IN (?)", bun.In(statuses)).
		OrderExpr("o.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, observability.RecordError(span, err, "select failed")
	}
	return orders, nil
}

// UpdateStatus writes the lifecycle columns of order, but only while the
// stored status is still one of from. ErrStatusChanged means another writer
// got there first.
func (r *Repository) UpdateStatus(ctx context.Context, order *entity.Order, from ...entity.OrderStatus) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateStatus", trace.WithAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.String("order.status", string(order.Status)),
	))
	defer span.End()

	order.UpdatedAt = time.Now().UTC()
	res, err := database.Conn(ctx, r.writer).NewUpdate().
		Model(order).
		Column("status", "seller_amount", "platform_amount", "dispatched_by_id", "fulfillment_agent_id", "completed_at", "updated_at").
		WherePK().
		Where("o.status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return observability.RecordError(span, err, "update failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return observability.RecordError(span, err, "rows affected")
	}
	if affected == 0 {
		return observability.RecordError(span, ErrStatusChanged, "status guard")
	}
	return nil
}
