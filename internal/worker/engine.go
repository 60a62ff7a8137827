package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/messaging"
)

// HandlerRegistration binds an event type to a handler.
type HandlerRegistration struct {
	EventType string
	Handler   messaging.Handler
}

// Job is a task run on a fixed interval for as long as the engine runs.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
	Jobs          []Job                 `group:"worker.jobs"`
}

// Engine orchestrates background message consumption and periodic jobs.
type Engine struct {
	client        messaging.Client
	logger        *zap.Logger
	cfg           config.Config
	registrations map[string]messaging.Handler
	jobs          []Job
	cancel        context.CancelFunc
	wg            *sync.WaitGroup
}

// NewEngine constructs the worker Engine.
func NewEngine(p Params) *Engine {
	reg := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.EventType == "" || r.Handler == nil {
			continue
		}
		reg[r.EventType] = r.Handler
	}

	jobs := make([]Job, 0, len(p.Jobs))
	for _, j := range p.Jobs {
		if j.Run == nil || j.Interval <= 0 {
			continue
		}
		jobs = append(jobs, j)
	}

	return &Engine{
		client:        p.Client,
		logger:        p.Logger.Named("worker"),
		cfg:           p.Config,
		registrations: reg,
		jobs:          jobs,
	}
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.start,
			OnStop:  engine.stop,
		})
	}),
)

func (e *Engine) start(context.Context) error {
	if !e.cfg.Messaging.Workers.Enabled {
		e.logger.Info("worker engine disabled")

		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg = &sync.WaitGroup{}

	for _, job := range e.jobs {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runJob(runCtx, job)
		}()
	}

	consumers := 0
	switch {
	case !e.cfg.Messaging.Enabled:
		e.logger.Info("messaging disabled; running jobs only")
	case len(e.registrations) == 0:
		e.logger.Info("worker engine has no handlers; skipping consumers")
	default:
		consumers = e.cfg.Messaging.Workers.Concurrency
		if consumers <= 0 {
			consumers = 1
		}
		for i := 0; i < consumers; i++ {
			workerID := i
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.consumeLoop(runCtx, workerID)
			}()
		}
	}

	e.logger.Info("worker engine started", zap.Int("consumers", consumers), zap.Int("jobs", len(e.jobs)))

	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	done := make(chan struct{})
	go func() {
		if e.wg != nil {
			e.wg.Wait()
		}
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("worker engine stopped")

		return nil
	}
}

// Dispatch routes msg to the handler registered for its event type.
// Messages nobody handles are acknowledged and dropped.
func (e *Engine) Dispatch(ctx context.Context, msg messaging.Message) error {
	handler, ok := e.registrations[msg.EventType()]
	if !ok {
		e.logger.Debug("no handler for event",
			zap.String("topic", msg.Topic),
			zap.String("event_type", msg.EventType()),
		)

		return nil
	}
	return handler(ctx, msg)
}

func (e *Engine) consumeLoop(ctx context.Context, workerID int) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			e.logger.Debug("processing message",
				zap.String("topic", msg.Topic),
				zap.String("event_type", msg.EventType()),
				zap.Int("worker", workerID),
			)

			return e.Dispatch(msgCtx, msg)
		})

		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		e.logger.Error("consume loop error", zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (e *Engine) runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("job failed", zap.String("job", job.Name), zap.Error(err))
			}
		}
	}
}
