package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/messaging"
	userrepo "github.com/Additional-Code/handoff/internal/repository/user"
	"github.com/Additional-Code/handoff/internal/service/purchase"
	"github.com/Additional-Code/handoff/internal/service/token"
)

type buyers map[int64]*entity.User

func (b buyers) GetByID(_ context.Context, id int64) (*entity.User, error) {
	if u, ok := b[id]; ok {
		return u, nil
	}
	return nil, userrepo.ErrNotFound
}

type issuer struct {
	issued []token.Buyer
	err    error
}

func (i *issuer) IssueToken(_ context.Context, b token.Buyer) (token.Issued, error) {
	i.issued = append(i.issued, b)
	return token.Issued{}, i.err
}

func completedMessage(t *testing.T, buyerID int64) messaging.Message {
	t.Helper()
	body, err := json.Marshal(purchase.CompletedEvent{OrderID: 11, OrderCode: "ORD-AAAA0001", BuyerID: buyerID, SellerAmount: "8000.00", PlatformAmount: "2500.00"})
	require.NoError(t, err)
	return messaging.Message{Value: body, Headers: map[string]string{messaging.HeaderEventType: purchase.EventOrderCompleted}}
}

func TestCompletedHandler_RefreshesBuyerToken(t *testing.T) {
	tokens := &issuer{}
	reg := CompletedHandler(buyers{7: {ID: 7, Username: "ana"}}, tokens, true, zap.NewNop())
	assert.Equal(t, purchase.EventOrderCompleted, reg.EventType)

	require.NoError(t, reg.Handler(context.Background(), completedMessage(t, 7)))
	assert.Equal(t, []token.Buyer{{ID: 7, Username: "ana"}}, tokens.issued)
}

func TestCompletedHandler_RefreshDisabled(t *testing.T) {
	tokens := &issuer{}
	reg := CompletedHandler(buyers{}, tokens, false, zap.NewNop())

	require.NoError(t, reg.Handler(context.Background(), completedMessage(t, 7)))
	assert.Empty(t, tokens.issued)
}

func TestCompletedHandler_Failures(t *testing.T) {
	t.Run("unknown_buyer_is_retried", func(t *testing.T) {
		reg := CompletedHandler(buyers{}, &issuer{}, true, zap.NewNop())
		err := reg.Handler(context.Background(), completedMessage(t, 7))
		assert.ErrorIs(t, err, userrepo.ErrNotFound)
	})

	t.Run("issue_failure_is_retried", func(t *testing.T) {
		boom := errors.New("cache down")
		reg := CompletedHandler(buyers{7: {ID: 7, Username: "ana"}}, &issuer{err: boom}, true, zap.NewNop())
		assert.ErrorIs(t, reg.Handler(context.Background(), completedMessage(t, 7)), boom)
	})

	t.Run("garbage_is_dropped", func(t *testing.T) {
		tokens := &issuer{}
		reg := CompletedHandler(buyers{}, tokens, true, zap.NewNop())
		assert.NoError(t, reg.Handler(context.Background(), messaging.Message{Value: []byte("{")}))
		assert.Empty(t, tokens.issued)
	})
}

type purger struct {
	n   int64
	err error
}

func (p purger) Purge(context.Context) (int64, error) { return p.n, p.err }

func TestPurgeJob(t *testing.T) {
	job := PurgeJob(purger{n: 3}, time.Minute, zap.NewNop())
	assert.Equal(t, "otp_purge", job.Name)
	assert.Equal(t, time.Minute, job.Interval)
	assert.NoError(t, job.Run(context.Background()))

	boom := errors.New("db gone")
	assert.ErrorIs(t, PurgeJob(purger{err: boom}, time.Minute, zap.NewNop()).Run(context.Background()), boom)
}
