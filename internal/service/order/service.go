package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/cafe/internal/cache"
	"github.com/Additional-Code/cafe/internal/config"
	"github.com/Additional-Code/cafe/internal/dto"
	"github.com/Additional-Code/cafe/internal/entity"
	"github.com/Additional-Code/cafe/internal/messaging"
	"github.com/Additional-Code/cafe/internal/realtime"
	"github.com/Additional-Code/cafe/internal/repository/catalog"
	repo "github.com/Additional-Code/cafe/internal/repository/order"
	"github.com/Additional-Code/cafe/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/cafe/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/cafe/service/order")
	noopMeter     = noop.NewMeterProvider().Meter("")
)

// Repository persists order aggregates.
type Repository interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	List(ctx context.Context, f repo.Filter) ([]*entity.Order, error)
	Page(ctx context.Context, f repo.Filter, page, size int) ([]*entity.Order, int, error)
	UpdateStatus(ctx context.Context, order *entity.Order) error
	Delete(ctx context.Context, id string) error
}

// Catalog resolves the tables and products orders refer to.
type Catalog interface {
	GetTable(ctx context.Context, id string) (*entity.Table, error)
	GetProduct(ctx context.Context, id string) (*entity.Product, error)
	GetTables(ctx context.Context, ids []string) (map[string]*entity.Table, error)
	GetProducts(ctx context.Context, ids []string) (map[string]*entity.Product, error)
	IncrementProductOrderCount(ctx context.Context, id string) error
}

// Notifier pushes a payload to subscribers of a channel.
type Notifier interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// Service owns the order lifecycle: creation, status changes and deletion,
// plus the notifications and events those raise.
type Service struct {
	repo      Repository
	catalog   Catalog
	notifier  Notifier
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
	metrics   serviceMetrics

	now   func() time.Time
	newID func() string
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository Repository
	Catalog    Catalog
	Notifier   Notifier
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := p.Cache
	if store == nil {
		store = cache.Noop()
	}
	return &Service{
		repo:      p.Repository,
		catalog:   p.Catalog,
		notifier:  p.Notifier,
		cache:     store,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    logger.Named("orders"),
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled && p.Publisher != nil,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
		metrics: newServiceMetrics(logger),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// CreateOrder validates the request, snapshots product prices into the new
// order's items, persists the aggregate and announces it.
//
// Each validated item bumps its product's order counter immediately. Those
// increments are not undone when a later item fails validation.
func (s *Service) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(
		attribute.String("table.id", req.TableID),
		attribute.Int("order.items", len(req.Items)),
	))
	defer span.End()

	if err := validateCreate(req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	table, err := s.catalog.GetTable(ctx, req.TableID)
	if err != nil {
		return nil, s.lookupError(span, "table", req.TableID, err)
	}

	now := s.now()
	order := &entity.Order{
		ID:           s.newID(),
		TableID:      table.ID,
		CustomerName: req.CustomerName,
		Status:       entity.StatusPending,
		Notes:        req.Notes,
	}
	order.Stamp(now)

	products := make(map[string]*entity.Product, len(req.Items))
	for _, line := range req.Items {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, s.lookupError(span, "product", line.ProductID, err)
		}
		if !product.Available {
			span.SetStatus(codes.Error, "product unavailable")
			return nil, errorbank.Validation(
				fmt.Sprintf("product %s is not available", product.Name),
				errorbank.WithDetail("productId", product.ID),
			)
		}

		item := &entity.OrderItem{
			ID:        s.newID(),
			ProductID: product.ID,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
			Notes:     line.Notes,
		}
		item.Stamp(now)
		order.AddItem(item)
		products[product.ID] = product

		s.bumpOrderCount(ctx, product)
	}

	if err := s.repo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}
	span.SetAttributes(attribute.String("order.id", order.ID))
	s.metrics.created.Add(ctx, 1)

	resp := dto.NewOrderResponse(order, table, products)
	s.notify(ctx, resp,
		realtime.ChannelNewOrders,
		realtime.ChannelKitchen,
		realtime.TableChannel(order.TableID),
	)
	s.publishEvent(ctx, EventOrderCreated, order, "")

	s.logger.Info("order created",
		zap.String("order.id", order.ID),
		zap.String("table.id", order.TableID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	return &resp, nil
}

// UpdateOrderStatus moves an order to the requested status. Any transition is
// accepted; lifecycle timestamps are derived by entity.Order.ApplyStatus.
func (s *Service) UpdateOrderStatus(ctx context.Context, id, status string) (*dto.OrderResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateOrderStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", status),
	))
	defer span.End()

	next, err := entity.ParseOrderStatus(status)
	if err != nil {
		span.SetStatus(codes.Error, "invalid status")
		return nil, errorbank.Validation(err.Error(), errorbank.WithDetail("status", status))
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.orderError(span, id, err)
	}

	previous := order.ApplyStatus(next, s.now())
	if err := s.repo.UpdateStatus(ctx, order); err != nil {
		return nil, s.orderError(span, id, err)
	}
	s.invalidate(ctx, id)
	s.metrics.statusChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", previous.String()),
		attribute.String("to", next.String()),
	))

	resp, err := s.hydrate(ctx, order)
	if err != nil {
		return nil, s.hydrateError(span, err)
	}

	s.notify(ctx, *resp,
		realtime.ChannelOrderUpdates,
		realtime.TableChannel(order.TableID),
	)
	s.publishEvent(ctx, EventOrderStatusChanged, order, previous)

	s.logger.Info("order status changed",
		zap.String("order.id", id),
		zap.String("from", previous.String()),
		zap.String("to", next.String()),
	)
	return resp, nil
}

// DeleteOrder removes an order and its items. Deletions are not announced.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.DeleteOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.orderError(span, id, err)
	}
	s.invalidate(ctx, id)

	s.logger.Info("order deleted", zap.String("order.id", id))
	return nil
}

// bumpOrderCount increments the stored counter and mirrors it on product so
// the creation response matches a later read.
func (s *Service) bumpOrderCount(ctx context.Context, product *entity.Product) {
	if err := s.catalog.IncrementProductOrderCount(ctx, product.ID); err != nil {
		s.logger.Warn("product order count not incremented", zap.String("product.id", product.ID), zap.Error(err))
		return
	}
	product.OrderCount++
}

func (s *Service) lookupError(span trace.Span, kind, id string, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		span.SetStatus(codes.Error, kind+" not found")
		return errorbank.NotFound(fmt.Sprintf("%s %s not found", kind, id), errorbank.WithDetail(kind+"Id", id))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "catalog error")
	return errorbank.Internal(fmt.Sprintf("failed to load %s", kind), errorbank.WithCause(err))
}

func (s *Service) orderError(span trace.Span, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return errorbank.NotFound(fmt.Sprintf("order %s not found", id), errorbank.WithDetail("orderId", id))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	return errorbank.Internal("failed to access order", errorbank.WithCause(err))
}

func (s *Service) cacheKey(id string) string {
	return "orders:" + id
}

func (s *Service) getFromCache(ctx context.Context, id string) (*entity.Order, error) {
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) {
	bytes, err := json.Marshal(order)
	if err == nil {
		err = s.cache.Set(ctx, s.cacheKey(order.ID), bytes, s.cacheTTL)
	}
	if err != nil {
		s.logger.Warn("orders cache write failed", zap.String("order.id", order.ID), zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.logger.Warn("orders cache invalidation failed", zap.String("order.id", id), zap.Error(err))
	}
}

type serviceMetrics struct {
	created             metric.Int64Counter
	statusChanges       metric.Int64Counter
	notificationsFailed metric.Int64Counter
}

func newServiceMetrics(logger *zap.Logger) serviceMetrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := serviceMeter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Warn("metric instrument unavailable", zap.String("metric", name), zap.Error(err))
			c, _ = noopMeter.Int64Counter(name)
		}
		return c
	}
	return serviceMetrics{
		created:             counter("cafe.orders.created", "Orders placed"),
		statusChanges:       counter("cafe.orders.status_changes", "Order status transitions"),
		notificationsFailed: counter("cafe.notifications.failed", "Realtime notifications that could not be published"),
	}
}
