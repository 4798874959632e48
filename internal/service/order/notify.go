package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Additional-Code/cafe/internal/dto"
	"github.com/Additional-Code/cafe/internal/entity"
	"github.com/Additional-Code/cafe/internal/messaging"
)

// Event types carried in the messaging.HeaderEventType header.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is published to the event stream after an order is created or
// changes status.
type OrderEvent struct {
	Type           string             `json:"type"`
	OrderID        string             `json:"orderId"`
	TableID        string             `json:"tableId"`
	Status         entity.OrderStatus `json:"status"`
	PreviousStatus entity.OrderStatus `json:"previousStatus,omitempty"`
	TotalAmount    decimal.Decimal    `json:"totalAmount"`
	CreatedAt      time.Time          `json:"createdAt"`
	ReadyAt        *time.Time         `json:"readyAt,omitempty"`
	DeliveredAt    *time.Time         `json:"deliveredAt,omitempty"`
	// OccurredAt is the write time of the change, so ReadyAt equals it
	// exactly when this change made the order ready.
	OccurredAt time.Time `json:"occurredAt"`
}

// notify publishes payload to each channel in order. Failures are logged and
// counted but never returned. A cancelled request still notifies.
func (s *Service) notify(ctx context.Context, payload dto.OrderResponse, channels ...string) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, channel := range channels {
		if err := s.notifier.Publish(ctx, channel, payload); err != nil {
			s.metrics.notificationsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
			s.logger.Warn("order notification failed",
				zap.String("channel", channel),
				zap.String("order.id", payload.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) publishEvent(ctx context.Context, eventType string, order *entity.Order, previous entity.OrderStatus) {
	if !s.messaging.enabled {
		return
	}
	event := OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		TableID:        order.TableID,
		Status:         order.Status,
		PreviousStatus: previous,
		TotalAmount:    order.TotalAmount,
		CreatedAt:      order.CreatedAt,
		ReadyAt:        order.ReadyAt,
		DeliveredAt:    order.DeliveredAt,
		OccurredAt:     order.UpdatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("event.type", eventType), zap.Error(err))
		return
	}

	msg := messaging.Message{
		Topic:   s.messaging.topic,
		Key:     messaging.OrderKey(order.ID),
		Value:   payload,
		Headers: map[string]string{messaging.HeaderEventType: eventType},
		Time:    event.OccurredAt,
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Warn("publish order event",
			zap.String("event.type", eventType),
			zap.String("order.id", order.ID),
			zap.Error(err),
		)
	}
}
