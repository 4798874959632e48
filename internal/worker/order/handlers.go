package order

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/cafe/internal/messaging"
	ordersvc "github.com/Additional-Code/cafe/internal/service/order"
	"github.com/Additional-Code/cafe/internal/worker"
)

var (
	workerTracer = otel.Tracer("github.com/Additional-Code/cafe/worker/order")
	workerMeter  = otel.Meter("github.com/Additional-Code/cafe/worker/order")
)

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		NewMetrics,
		fx.Annotate(
			NewOrderCreatedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
		fx.Annotate(
			NewStatusChangedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// Metrics holds the instruments fed by order events.
type Metrics struct {
	received        metric.Int64Counter
	preparationTime metric.Float64Histogram
}

// NewMetrics registers the order event instruments.
func NewMetrics() (*Metrics, error) {
	received, err := workerMeter.Int64Counter("cafe.orders.received",
		metric.WithDescription("Order created events consumed"))
	if err != nil {
		return nil, err
	}
	prep, err := workerMeter.Float64Histogram("cafe.orders.preparation_time",
		metric.WithDescription("Time from order placement until it is ready"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{received: received, preparationTime: prep}, nil
}

// NewOrderCreatedHandler counts and logs newly placed orders.
func NewOrderCreatedHandler(logger *zap.Logger, metrics *Metrics) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := startSpan(ctx, msg)
		defer span.End()

		event, err := decode(msg, span, logger)
		if err != nil {
			return err
		}
		metrics.received.Add(ctx, 1)
		logger.Info("order created event processed",
			zap.String("order.id", event.OrderID),
			zap.String("table.id", event.TableID),
			zap.String("total", event.TotalAmount.StringFixed(2)),
		)
		return nil
	}

	return worker.HandlerRegistration{
		EventType: ordersvc.EventOrderCreated,
		Handler:   handler,
	}
}

// NewStatusChangedHandler records how long an order took to become ready.
// Only the change that set ReadyAt is measured, so repeated READY updates and
// later transitions are not counted twice.
func NewStatusChangedHandler(logger *zap.Logger, metrics *Metrics) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := startSpan(ctx, msg)
		defer span.End()

		event, err := decode(msg, span, logger)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String("order.status", event.Status.String()))

		if event.ReadyAt == nil || !event.ReadyAt.Equal(event.OccurredAt) {
			return nil
		}
		prep := event.ReadyAt.Sub(event.CreatedAt)
		if prep < 0 {
			logger.Warn("order ready before it was created", zap.String("order.id", event.OrderID))
			return nil
		}

		metrics.preparationTime.Record(ctx, prep.Seconds(), metric.WithAttributes(
			attribute.String("status", event.Status.String()),
		))
		logger.Info("order preparation time recorded",
			zap.String("order.id", event.OrderID),
			zap.Duration("preparation_time", prep),
		)
		return nil
	}

	return worker.HandlerRegistration{
		EventType: ordersvc.EventOrderStatusChanged,
		Handler:   handler,
	}
}

func startSpan(ctx context.Context, msg messaging.Message) (context.Context, trace.Span) {
	return workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
		attribute.String("messaging.topic", msg.Topic),
		attribute.String("messaging.event_type", msg.EventType()),
	))
}

func decode(msg messaging.Message, span trace.Span, logger *zap.Logger) (*ordersvc.OrderEvent, error) {
	var event ordersvc.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Error("failed to decode order event", zap.Error(err), zap.Int64("offset", msg.Offset))

		span.RecordError(err)
		span.SetStatus(codes.Error, "decode error")
		return nil, err
	}
	return &event, nil
}
