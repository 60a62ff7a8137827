package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/handoff/internal/database"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/observability"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/handoff/repository/user")

// ErrNotFound is returned when a user is missing.
var ErrNotFound = errors.New("user not found")

// Module provides the user repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository reads users and maintains their running totals.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create inserts a user.
func (r *Repository) Create(ctx context.Context, user *entity.User) error {
	ctx, span := repoTracer.Start(ctx, "UserRepository.Create", trace.WithAttributes(attribute.String("user.username", user.Username)))
	defer span.End()

	_, err := database.Conn(ctx, r.writer).NewInsert().Model(user).Exec(ctx)
	return observability.RecordError(span, err, "insert failed")
}

// GetByID fetches a user by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	ctx, span := repoTracer.Start(ctx, "UserRepository.GetByID", trace.WithAttributes(attribute.Int64("user.id", id)))
	defer span.End()

	return r.scanOne(ctx, span, database.Conn(ctx, r.reader).NewSelect().Where("u.id = ?", id))
}

// GetByUsername fetches a user by login name.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	ctx, span := repoTracer.Start(ctx, "UserRepository.GetByUsername")
	defer span.End()

	return r.scanOne(ctx, span, database.Conn(ctx, r.reader).NewSelect().Where("u.username = ?", username))
}

// LockByID takes a row lock on the user inside the current transaction.
// OTP issuance uses it to serialise work per user.
func (r *Repository) LockByID(ctx context.Context, id int64) (*entity.User, error) {
	ctx, span := repoTracer.Start(ctx, "UserRepository.LockByID", trace.WithAttributes(attribute.Int64("user.id", id)))
	defer span.End()

	if !database.InTransaction(ctx) {
		return nil, observability.RecordError(span, errors.New("LockByID requires a transaction"), "no transaction")
	}
	return r.scanOne(ctx, span, database.Conn(ctx, r.writer).NewSelect().Where("u.id = ?", id).For("UPDATE"))
}

func (r *Repository) scanOne(ctx context.Context, span trace.Span, q *bun.SelectQuery) (*entity.User, error) {
	user := new(entity.User)
	err := q.Model(user).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, observability.RecordError(span, err, "select failed")
	}
	return user, nil
}

// AddSales increments the seller's total_sales in place.
func (r *Repository) AddSales(ctx context.Context, id int64, amount decimal.Decimal) error {
	return r.increment(ctx, "UserRepository.AddSales", "total_sales", id, amount)
}

// AddPurchases increments the buyer's total_purchases in place.
func (r *Repository) AddPurchases(ctx context.Context, id int64, amount decimal.Decimal) error {
	return r.increment(ctx, "UserRepository.AddPurchases", "total_purchases", id, amount)
}

func (r *Repository) increment(ctx context.Context, op, column string, id int64, amount decimal.Decimal) error {
	ctx, span := repoTracer.Start(ctx, op, trace.WithAttributes(attribute.Int64("user.id", id)))
	defer span.End()

	if amount.IsZero() {
		return nil
	}

	_, err := database.Conn(ctx, r.writer).NewUpdate().
		Model((*entity.User)(nil)).
		Set("? = ? + ?", bun.Ident(column), bun.Ident(column), amount).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id).
		Exec(ctx)
	return observability.RecordError(span, err, "update failed")
}
