// Package worker consumes the order event stream and hands each event to the
// handler registered for its type.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/cafe/internal/config"
	"github.com/Additional-Code/cafe/internal/messaging"
)

var engineTracer = otel.Tracer("github.com/Additional-Code/cafe/worker")

const maxBackoff = 30 * time.Second

// HandlerRegistration binds an order event type to its handler.
type HandlerRegistration struct {
	EventType string
	Handler   messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine runs a fixed pool of consumers over the order event topic.
type Engine struct {
	client   messaging.Client
	logger   *zap.Logger
	enabled  bool
	workers  int
	handlers map[string]messaging.Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine constructs the worker Engine. Registrations without an event type
// or handler are ignored.
func NewEngine(p Params) *Engine {
	handlers := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.EventType != "" && r.Handler != nil {
			handlers[r.EventType] = r.Handler
		}
	}

	workers := p.Config.Messaging.Workers.Concurrency
	if workers <= 0 {
		workers = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		client:   p.Client,
		logger:   logger.Named("worker"),
		enabled:  p.Config.Messaging.Enabled && p.Config.Messaging.Workers.Enabled,
		workers:  workers,
		handlers: handlers,
	}
}

// Module wires the engine into the Fx lifecycle.
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
	switch {
	case !e.enabled:
		e.logger.Info("order event worker disabled")
		return nil
	case len(e.handlers) == 0:
		e.logger.Info("no order event handlers registered; worker idle")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func(worker int) {
			defer e.wg.Done()
			e.consume(runCtx, e.logger.With(zap.Int("worker", worker)))
		}(i)
	}

	e.logger.Info("order event worker started",
		zap.Int("workers", e.workers),
		zap.String("topic", e.client.Topic()),
		zap.Int("handlers", len(e.handlers)),
	)
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("order event worker stopped")
		return nil
	}
}

// Dispatch routes msg to the handler for its event type. Events nobody
// handles are skipped so the consumer commits past them.
func (e *Engine) Dispatch(ctx context.Context, msg messaging.Message) error {
	eventType := msg.EventType()
	orderID := messaging.OrderIDFromKey(msg.Key)

	ctx, span := engineTracer.Start(ctx, "Engine.Dispatch", trace.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("order.id", orderID),
		attribute.Int64("messaging.offset", msg.Offset),
	))
	defer span.End()

	logger := e.logger.With(
		zap.String("event.type", eventType),
		zap.String("order.id", orderID),
		zap.Int64("offset", msg.Offset),
	)

	handler, ok := e.handlers[eventType]
	if !ok {
		logger.Debug("order event skipped")
		return nil
	}

	start := time.Now()
	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		logger.Warn("order event handler failed", zap.Error(err))
		return err
	}
	logger.Debug("order event handled", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// consume keeps one consumer attached to the topic, backing off between
// broker failures until ctx ends.
func (e *Engine) consume(ctx context.Context, logger *zap.Logger) {
	backoff := time.Second
	for ctx.Err() == nil {
		err := e.client.Consume(ctx, e.Dispatch)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		logger.Error("order event consumer failed", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
