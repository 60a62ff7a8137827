package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/messaging"
)

type idleClient struct{}

func (idleClient) Publish(context.Context, messaging.Message) error { return nil }
func (idleClient) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}
func (idleClient) Topic() string { return "handoff.events" }

func TestDispatch_RoutesByEventType(t *testing.T) {
	var got []string
	engine := NewEngine(Params{
		Client: idleClient{},
		Logger: zap.NewNop(),
		Registrations: []HandlerRegistration{
			{EventType: "order.completed", Handler: func(_ context.Context, msg messaging.Message) error {
				got = append(got, string(msg.Key))
				return nil
			}},
			{EventType: "", Handler: func(context.Context, messaging.Message) error { t.Fatal("unnamed handler registered"); return nil }},
		},
	})

	ctx := context.Background()
	require.NoError(t, engine.Dispatch(ctx, messaging.Message{Key: []byte("1"), Headers: map[string]string{messaging.HeaderEventType: "order.completed"}}))
	require.NoError(t, engine.Dispatch(ctx, messaging.Message{Key: []byte("2"), Headers: map[string]string{messaging.HeaderEventType: "order.created"}}))
	require.NoError(t, engine.Dispatch(ctx, messaging.Message{Key: []byte("3")}))

	assert.Equal(t, []string{"1"}, got)
}

func TestEngine_RunsJobsWithoutMessaging(t *testing.T) {
	var runs atomic.Int32
	cfg := config.Config{}
	cfg.Messaging.Enabled = false
	cfg.Messaging.Workers.Enabled = true

	engine := NewEngine(Params{
		Client: idleClient{},
		Logger: zap.NewNop(),
		Config: cfg,
		Jobs: []Job{
			{Name: "tick", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
				runs.Add(1)
				return nil
			}},
			{Name: "never", Interval: 0, Run: func(context.Context) error { t.Fatal("zero interval job ran"); return nil }},
		},
	})

	require.NoError(t, engine.start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, engine.stop(stopCtx))
}

func TestEngine_DisabledStartsNothing(t *testing.T) {
	engine := NewEngine(Params{Client: idleClient{}, Logger: zap.NewNop()})

	require.NoError(t, engine.start(context.Background()))
	assert.Nil(t, engine.cancel)
	assert.NoError(t, engine.stop(context.Background()))
}
