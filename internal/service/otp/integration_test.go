//go:build integration

package otp

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/database"
	"github.com/Additional-Code/handoff/internal/database/dbtest"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/notify"
	"github.com/Additional-Code/handoff/internal/observability"
	otprepo "github.com/Additional-Code/handoff/internal/repository/otp"
	userrepo "github.com/Additional-Code/handoff/internal/repository/user"
)

func newPGManager(t *testing.T) (*Manager, *database.Connections, *entity.User) {
	t.Helper()
	conns, tx := dbtest.Postgres(t)
	users := userrepo.NewRepository(conns)

	user := &entity.User{Username: "ana", Email: "ana@example.com", PasswordHash: "x", Role: "buyer"}
	require.NoError(t, users.Create(context.Background(), user))

	m := New(otprepo.NewRepository(conns), users, tx, notify.NewLogSender(zap.NewNop()), 5*time.Minute, observability.NopMetrics(), zap.NewNop())
	return m, conns, user
}

func liveCode(t *testing.T, conns *database.Connections, userID int64) string {
	t.Helper()
	var c entity.OTPChallenge
	require.NoError(t, conns.Writer.NewSelect().Model(&c).
		Where("user_id = ?", userID).
		Where("used = ?", false).
		Scan(context.Background()))
	return c.Code
}

func TestPostgres_IssueVerifyReissue(t *testing.T) {
	m, conns, user := newPGManager(t)
	ctx := context.Background()

	_, err := m.Issue(ctx, user.ID, PurposeFulfillment)
	require.NoError(t, err)
	first := liveCode(t, conns, user.ID)

	_, err = m.Issue(ctx, user.ID, PurposeFulfillment)
	require.NoError(t, err)
	second := liveCode(t, conns, user.ID)

	if first != second {
		assert.ErrorIs(t, m.Verify(ctx, user.ID, first, PurposeFulfillment), ErrNotFound)
	}
	require.NoError(t, m.Verify(ctx, user.ID, second, PurposeFulfillment))
	assert.ErrorIs(t, m.Verify(ctx, user.ID, second, PurposeFulfillment), ErrNotFound)
}

func TestPostgres_ConcurrentVerifySingleWinner(t *testing.T) {
	m, conns, user := newPGManager(t)
	ctx := context.Background()

	_, err := m.Issue(ctx, user.ID, PurposeFulfillment)
	require.NoError(t, err)
	code := liveCode(t, conns, user.ID)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if m.Verify(ctx, user.ID, code, PurposeFulfillment) == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestPostgres_ExpiryAndPurge(t *testing.T) {
	m, conns, user := newPGManager(t)
	ctx := context.Background()

	issuedAt := time.Now().UTC()
	m.now = func() time.Time { return issuedAt }
	_, err := m.Issue(ctx, user.ID, PurposeFulfillment)
	require.NoError(t, err)
	code := liveCode(t, conns, user.ID)

	m.now = func() time.Time { return issuedAt.Add(6 * time.Minute) }
	assert.ErrorIs(t, m.Verify(ctx, user.ID, code, PurposeFulfillment), ErrExpired)

	n, err := m.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, m.Verify(ctx, user.ID, code, PurposeFulfillment), ErrNotFound)
}
