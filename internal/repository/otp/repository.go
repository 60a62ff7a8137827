package otp

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

var repoTracer = otel.Tracer("github.com/Additional-Code/handoff/repository/otp")

var (
	// ErrNotFound means no unused challenge matches.
	ErrNotFound = errors.New("otp challenge not found")
	// ErrExpired means an unused challenge matches but is past expiry.
	ErrExpired = errors.New("otp challenge expired")
)

// Module provides the OTP repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository stores OTP challenges.
type Repository struct {
	writer *bun.DB
}

// NewRepository wires a repository on the writer pool; OTP reads must see
// their own writes so the replica is never used.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer}
}

// Supersede marks every unused challenge for (user, purpose) as used and
// inserts challenge. Callers run it in a transaction holding the user lock.
func (r *Repository) Supersede(ctx context.Context, challenge *entity.OTPChallenge) error {
	ctx, span := repoTracer.Start(ctx, "OTPRepository.Supersede", trace.WithAttributes(
		attribute.Int64("user.id", challenge.UserID),
		attribute.String("otp.purpose", challenge.Purpose),
	))
	defer span.End()

	db := database.Conn(ctx, r.writer)
	_, err := db.NewUpdate().
		Model((*entity.OTPChallenge)(nil)).
		Set("used = ?", true).
		Set("used_at = ?", challenge.CreatedAt).
		Where("user_id = ?", challenge.UserID).
		Where("purpose = ?", challenge.Purpose).
		Where("used = ?", false).
		Exec(ctx)
	if err != nil {
		return observability.RecordError(span, err, "invalidate failed")
	}

	_, err = db.NewInsert().Model(challenge).Exec(ctx)
	return observability.RecordError(span, err, "insert failed")
}

// Consume atomically flips the matching unused, unexpired challenge to used.
// Only one concurrent caller can win; the rest get ErrNotFound. When the
// match exists but is expired it is left untouched and ErrExpired returned.
func (r *Repository) Consume(ctx context.Context, userID int64, purpose, code string, now time.Time) error {
	ctx, span := repoTracer.Start(ctx, "OTPRepository.Consume", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("otp.purpose", purpose),
	))
	defer span.End()

	db := database.Conn(ctx, r.writer)
	res, err := db.NewUpdate().
		Model((*entity.OTPChallenge)(nil)).
		Set("used = ?", true).
		Set("used_at = ?", now).
		Where("user_id = ?", userID).
		Where("purpose = ?", purpose).
		Where("code = ?", code).
		Where("used = ?", false).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return observability.RecordError(span, err, "consume failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return observability.RecordError(span, err, "rows affected")
	}
	if n > 0 {
		return nil
	}

	exists, err := db.NewSelect().
		Model((*entity.OTPChallenge)(nil)).
		Where("user_id = ?", userID).
		Where("purpose = ?", purpose).
		Where("code = ?", code).
		Where("used = ?", false).
		Exists(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return observability.RecordError(span, err, "lookup failed")
	}
	if exists {
		return ErrExpired
	}
	return ErrNotFound
}

// PurgeExpired deletes challenges whose expiry is before cutoff and returns
// how many went.
func (r *Repository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "OTPRepository.PurgeExpired")
	defer span.End()

	res, err := database.Conn(ctx, r.writer).NewDelete().
		Model((*entity.OTPChallenge)(nil)).
		Where("expires_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, observability.RecordError(span, err, "delete failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, observability.RecordError(span, err, "rows affected")
	}
	span.SetAttributes(attribute.Int64("otp.purged", n))
	return n, nil
}
