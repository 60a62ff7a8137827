package product

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/handoff/internal/database"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/observability"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/handoff/repository/product")

var (
	// ErrNotFound is returned when a product is missing.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientInventory is returned when stock cannot cover a purchase.
	ErrInsufficientInventory = errors.New("insufficient inventory")
)

// Module provides the product repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository covers the product operations the purchase flow needs.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create inserts a product.
func (r *Repository) Create(ctx context.Context, product *entity.Product) error {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Create")
	defer span.End()

	_, err := database.Conn(ctx, r.writer).NewInsert().Model(product).Exec(ctx)
	return observability.RecordError(span, err, "insert failed")
}

// GetByID fetches a product with its seller.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.GetByID", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	product := new(entity.Product)
	err := database.Conn(ctx, r.reader).NewSelect().Model(product).Relation("Seller").Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, observability.RecordError(span, err, "select failed")
	}
	return product, nil
}

// LockByID selects the product FOR UPDATE inside the current transaction.
func (r *Repository) LockByID(ctx context.Context, id int64) (*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.LockByID", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	if !database.InTransaction(ctx) {
		return nil, observability.RecordError(span, errors.New("LockByID requires a transaction"), "no transaction")
	}

	product := new(entity.Product)
	err := database.Conn(ctx, r.writer).NewSelect().Model(product).Where("p.id = ?", id).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, observability.RecordError(span, err, "lock failed")
	}
	return product, nil
}

// Reserve decrements inventory by quantity and bumps the purchase count,
// refusing when stock is short.
func (r *Repository) Reserve(ctx context.Context, id int64, quantity int) error {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Reserve", trace.WithAttributes(
		attribute.Int64("product.id", id),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	res, err := database.Conn(ctx, r.writer).NewUpdate().
		Model((*entity.Product)(nil)).
		Set("inventory = inventory - ?", quantity).
		Set("purchase_count = purchase_count + ?", quantity).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id).
		Where("inventory >= ?", quantity).
		Exec(ctx)
	if err != nil {
		return observability.RecordError(span, err, "update failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return observability.RecordError(span, err, "rows affected")
	}
	if n == 0 {
		return ErrInsufficientInventory
	}
	return nil
}
