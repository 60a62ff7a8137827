package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/database"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/notify"
	"github.com/Additional-Code/handoff/internal/observability"
	otprepo "github.com/Additional-Code/handoff/internal/repository/otp"
	userrepo "github.com/Additional-Code/handoff/internal/repository/user"
)

// PurposeFulfillment scopes codes issued during a handoff.
const PurposeFulfillment = "fulfillment_confirmation"

const codeDigits = 6

var serviceTracer = otel.Tracer("github.com/Additional-Code/handoff/service/otp")

var (
	// ErrNotFound covers a wrong code and an already used one alike.
	ErrNotFound = otprepo.ErrNotFound
	// ErrExpired means the code matched but its window has passed.
	ErrExpired = otprepo.ErrExpired
	// ErrDispatchFailed is returned alongside a valid Challenge when the
	// code was stored but could not be delivered.
	ErrDispatchFailed = errors.New("otp notification dispatch failed")
	// ErrUserNotFound is returned when issuing for an unknown user.
	ErrUserNotFound = userrepo.ErrNotFound
)

// Module provides the OTP manager to Fx.
var Module = fx.Provide(NewManager)

// Store persists challenges.
type Store interface {
	Supersede(ctx context.Context, challenge *entity.OTPChallenge) error
	Consume(ctx context.Context, userID int64, purpose, code string, now time.Time) error
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserLocker serialises issuance per user.
type UserLocker interface {
	LockByID(ctx context.Context, id int64) (*entity.User, error)
}

// Challenge is what callers learn about an issued code. The code itself
// only leaves through the notification channel.
type Challenge struct {
	ID        int64
	UserID    int64
	Purpose   string
	ExpiresAt time.Time
}

// Manager issues and verifies one-time codes.
type Manager struct {
	store   Store
	users   UserLocker
	tx      database.Transactor
	sender  notify.Sender
	ttl     time.Duration
	now     func() time.Time
	random  io.Reader
	metrics *observability.Metrics
	logger  *zap.Logger
}

// Params defines dependencies for constructing Manager.
type Params struct {
	fx.In

	Store      *otprepo.Repository
	Users      *userrepo.Repository
	Transactor database.Transactor
	Sender     notify.Sender
	Config     config.Config
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewManager wires a Manager from the Fx graph.
func NewManager(p Params) *Manager {
	return New(p.Store, p.Users, p.Transactor, p.Sender, p.Config.Handoff.OTPTTL, p.Metrics, p.Logger)
}

// New builds a Manager.
func New(store Store, users UserLocker, tx database.Transactor, sender notify.Sender, ttl time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		users:   users,
		tx:      tx,
		sender:  sender,
		ttl:     ttl,
		now:     time.Now,
		random:  rand.Reader,
		metrics: metrics,
		logger:  logger,
	}
}

// Issue supersedes any unused code for (userID, purpose), stores a new one
// and sends it to the user. If sending fails the challenge still stands:
// the Challenge is returned together with an error wrapping
// ErrDispatchFailed so the caller can offer a resend.
func (m *Manager) Issue(ctx context.Context, userID int64, purpose string) (Challenge, error) {
	ctx, span := serviceTracer.Start(ctx, "OTPManager.Issue", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("otp.purpose", purpose),
	))
	defer span.End()

	code, err := m.generateCode()
	if err != nil {
		return Challenge{}, observability.RecordError(span, err, "generate failed")
	}

	var (
		user      *entity.User
		challenge *entity.OTPChallenge
	)
	err = m.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = m.users.LockByID(ctx, userID)
		if err != nil {
			return err
		}
		now := m.now().UTC()
		challenge = &entity.OTPChallenge{
			UserID:    userID,
			Purpose:   purpose,
			Code:      code,
			ExpiresAt: now.Add(m.ttl),
			CreatedAt: now,
		}
		return m.store.Supersede(ctx, challenge)
	})
	if err != nil {
		return Challenge{}, observability.RecordError(span, err, "persist failed")
	}
	m.metrics.OTPIssued(ctx)

	result := Challenge{
		ID:        challenge.ID,
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: challenge.ExpiresAt,
	}

	if err := m.dispatch(ctx, user, code); err != nil {
		m.logger.Warn("otp dispatch failed",
			zap.Int64("user_id", userID),
			zap.String("purpose", purpose),
			zap.Error(err),
		)
		span.SetAttributes(attribute.Bool("otp.dispatched", false))
		return result, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	return result, nil
}

func (m *Manager) dispatch(ctx context.Context, user *entity.User, code string) error {
	msg, err := notify.OTPMessage(user.Username, code, m.ttl)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, notify.Recipient{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}, msg)
}

// Verify consumes the unused code for (userID, purpose). Exactly one of any
// number of concurrent callers with the right code succeeds.
func (m *Manager) Verify(ctx context.Context, userID int64, code, purpose string) error {
	ctx, span := serviceTracer.Start(ctx, "OTPManager.Verify", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("otp.purpose", purpose),
	))
	defer span.End()

	if !wellFormed(code) {
		m.metrics.OTPRejected(ctx, "not_found")
		return ErrNotFound
	}

	err := m.store.Consume(ctx, userID, purpose, code, m.now().UTC())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		m.metrics.OTPRejected(ctx, "not_found")
		return ErrNotFound
	case errors.Is(err, ErrExpired):
		m.metrics.OTPRejected(ctx, "expired")
		return ErrExpired
	default:
		return observability.RecordError(span, err, "consume failed")
	}
}

// Purge deletes challenges that expired before now.
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	return m.store.PurgeExpired(ctx, m.now().UTC())
}

func (m *Manager) generateCode() (string, error) {
	n, err := rand.Int(m.random, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func wellFormed(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
