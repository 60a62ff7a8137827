package otp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/notify"
	"github.com/Additional-Code/handoff/internal/observability"
	userrepo "github.com/Additional-Code/handoff/internal/repository/user"
)

type memoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []*entity.OTPChallenge
}

func (s *memoryStore) Supersede(_ context.Context, c *entity.OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.UserID == c.UserID && row.Purpose == c.Purpose && !row.Used {
			row.Used = true
		}
	}
	s.nextID++
	c.ID = s.nextID
	copied := *c
	s.rows = append(s.rows, &copied)
	return nil
}

func (s *memoryStore) Consume(_ context.Context, userID int64, purpose, code string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.UserID != userID || row.Purpose != purpose || row.Code != code || row.Used {
			continue
		}
		if !now.Before(row.ExpiresAt) {
			return ErrExpired
		}
		row.Used = true
		return nil
	}
	return ErrNotFound
}

func (s *memoryStore) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var n int64
	for _, row := range s.rows {
		if row.ExpiresAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return n, nil
}

func (s *memoryStore) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[len(s.rows)-1].Code
}

type fakeUsers struct{}

func (fakeUsers) LockByID(_ context.Context, id int64) (*entity.User, error) {
	if id == 404 {
		return nil, userrepo.ErrNotFound
	}
	return &entity.User{ID: id, Username: "ana", Email: "ana@example.com"}, nil
}

type serialTx struct{ mu sync.Mutex }

func (t *serialTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

type recordingSender struct {
	err  error
	sent []notify.Message
}

func (r *recordingSender) Send(_ context.Context, _ notify.Recipient, msg notify.Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newManager(sender notify.Sender, clk *clock) (*Manager, *memoryStore) {
	store := &memoryStore{}
	m := New(store, fakeUsers{}, &serialTx{}, sender, 5*time.Minute, observability.NopMetrics(), zap.NewNop())
	m.now = clk.Now
	return m, store
}

func TestIssue_SendsSixDigitCode(t *testing.T) {
	sender := &recordingSender{}
	clk := &clock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	m, store := newManager(sender, clk)

	ch, err := m.Issue(context.Background(), 1, PurposeFulfillment)
	require.NoError(t, err)
	assert.Equal(t, clk.now.Add(5*time.Minute), ch.ExpiresAt)

	code := store.lastCode()
	assert.Len(t, code, 6)
	assert.True(t, wellFormed(code))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, code)
}

func TestVerify_SingleUse(t *testing.T) {
	m, store := newManager(&recordingSender{}, &clock{now: time.Now()})
	ctx := context.Background()

	_, err := m.Issue(ctx, 1, PurposeFulfillment)
	require.NoError(t, err)
	code := store.lastCode()

	require.NoError(t, m.Verify(ctx, 1, code, PurposeFulfillment))
	assert.ErrorIs(t, m.Verify(ctx, 1, code, PurposeFulfillment), ErrNotFound)
}

func TestVerify_ReissueInvalidatesPrevious(t *testing.T) {
	m, store := newManager(&recordingSender{}, &clock{now: time.Now()})
	ctx := context.Background()

	_, err := m.Issue(ctx, 1, PurposeFulfillment)
	require.NoError(t, err)
	first := store.lastCode()

	_, err = m.Issue(ctx, 1, PurposeFulfillment)
	require.NoError(t, err)
	second := store.lastCode()

	if first != second {
		assert.ErrorIs(t, m.Verify(ctx, 1, first, PurposeFulfillment), ErrNotFound)
	}
	assert.NoError(t, m.Verify(ctx, 1, second, PurposeFulfillment))
}

func TestVerify_ScopedByPurposeAndUser(t *testing.T) {
	m, store := newManager(&recordingSender{}, &clock{now: time.Now()})
	ctx := context.Background()

	_, err := m.Issue(ctx, 1, PurposeFulfillment)
	require.NoError(t, err)
	code := store.lastCode()

	assert.ErrorIs(t, m.Verify(ctx, 2, code, PurposeFulfillment), ErrNotFound)
	assert.ErrorIs(t, m.Verify(ctx, 1, code, "password_reset"), ErrNotFound)
	assert.NoError(t, m.Verify(ctx, 1, code, PurposeFulfillment))
}

func TestVerify_ExpiredIsNotConsumed(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	clk := &clock{now: start}
	m, store := newManager(&recordingSender{}, clk)
	ctx := context.Background()

	_, err := m.Issue(ctx, 1, PurposeFulfillment)
	require.NoError(t, err)
	code := store.lastCode()

	clk.now = start.Add(5*time.Minute + time.Second)
	assert.ErrorIs(t, m.Verify(ctx, 1, code, PurposeFulfillment), ErrExpired)
	assert.ErrorIs(t, m.Verify(ctx, 1, code, PurposeFulfillment), ErrExpired)

	n, err := m.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.ErrorIs(t, m.Verify(ctx, 1, code, PurposeFulfillment), ErrNotFound)
}

func TestVerify_MalformedCode(t *testing.T) {
	m, _ := newManager(&recordingSender{}, &clock{now: time.Now()})
	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		assert.ErrorIs(t, m.Verify(context.Background(), 1, code, PurposeFulfillment), ErrNotFound, code)
	}
}

func TestIssue_DispatchFailureKeepsChallenge(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	m, store := newManager(sender, &clock{now: time.Now()})
	ctx := context.Background()

	ch, err := m.Issue(ctx, 1, PurposeFulfillment)
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.NotZero(t, ch.ID)

	assert.NoError(t, m.Verify(ctx, 1, store.lastCode(), PurposeFulfillment))
}

func TestIssue_UnknownUser(t *testing.T) {
	m, _ := newManager(&recordingSender{}, &clock{now: time.Now()})
	_, err := m.Issue(context.Background(), 404, PurposeFulfillment)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestVerify_ConcurrentCallersOnlyOneWins(t *testing.T) {
	m, store := newManager(&recordingSender{}, &clock{now: time.Now()})
	ctx := context.Background()

	_, err := m.Issue(ctx, 1, PurposeFulfillment)
	require.NoError(t, err)
	code := store.lastCode()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Verify(ctx, 1, code, PurposeFulfillment) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
