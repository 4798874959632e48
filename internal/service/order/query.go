package order

import (
	"context"
	"errors"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Additional-Code/cafe/internal/cache"
	"github.com/Additional-Code/cafe/internal/dto"
	"github.com/Additional-Code/cafe/internal/entity"
	repo "github.com/Additional-Code/cafe/internal/repository/order"
	"github.com/Additional-Code/cafe/pkg/errorbank"
)

const (
	// DefaultPageSize applies when a page request omits its size.
	DefaultPageSize = 20
	// MaxPageSize caps the size of a single page.
	MaxPageSize = 100
)

// GetByID retrieves an order, consulting the cache for the aggregate. Table
// and product projections are always loaded fresh.
func (s *Service) GetByID(ctx context.Context, id string) (*dto.OrderResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.GetByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := s.getFromCache(ctx, id)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("orders cache read failed", zap.String("order.id", id), zap.Error(err))
		}
		order, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, s.orderError(span, id, err)
		}
		s.storeInCache(ctx, order)
	}

	resp, err := s.hydrate(ctx, order)
	if err != nil {
		return nil, s.hydrateError(span, err)
	}
	return resp, nil
}

// GetAll lists every order, oldest first.
func (s *Service) GetAll(ctx context.Context) ([]dto.OrderResponse, error) {
	return s.list(ctx, "OrderService.GetAll", repo.Filter{})
}

// GetByStatus lists orders currently in status.
func (s *Service) GetByStatus(ctx context.Context, status string) ([]dto.OrderResponse, error) {
	parsed, err := entity.ParseOrderStatus(status)
	if err != nil {
		return nil, errorbank.Validation(err.Error(), errorbank.WithDetail("status", status))
	}
	return s.list(ctx, "OrderService.GetByStatus", repo.Filter{Statuses: []entity.OrderStatus{parsed}})
}

// GetByTable lists the orders placed at a table.
func (s *Service) GetByTable(ctx context.Context, tableID string) ([]dto.OrderResponse, error) {
	if isBlank(tableID) {
		return nil, errorbank.Validation("tableId is required")
	}
	return s.list(ctx, "OrderService.GetByTable", repo.Filter{TableID: tableID})
}

// GetActive lists pending, preparing and ready orders, oldest first.
func (s *Service) GetActive(ctx context.Context) ([]dto.OrderResponse, error) {
	return s.list(ctx, "OrderService.GetActive", repo.Filter{Statuses: entity.ActiveStatuses()})
}

// GetByDateRange lists orders created within [start, end], oldest first.
func (s *Service) GetByDateRange(ctx context.Context, start, end time.Time) ([]dto.OrderResponse, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	return s.list(ctx, "OrderService.GetByDateRange", repo.Filter{From: &start, To: &end})
}

// GetByDateRangePage returns one zero-based page of orders created within
// [start, end], newest first. A size of zero selects DefaultPageSize and
// larger sizes are capped at MaxPageSize.
func (s *Service) GetByDateRangePage(ctx context.Context, start, end time.Time, page, size int) (*dto.Page[dto.OrderResponse], error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.GetByDateRangePage", trace.WithAttributes(
		attribute.Int("page.number", page),
		attribute.Int("page.size", size),
	))
	defer span.End()

	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	if page < 0 {
		return nil, errorbank.Validation("page must not be negative", errorbank.WithDetail("page", page))
	}
	switch {
	case size < 0:
		return nil, errorbank.Validation("size must not be negative", errorbank.WithDetail("size", size))
	case size == 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	if page > math.MaxInt/size {
		return nil, errorbank.Validation("page is out of range", errorbank.WithDetail("page", page))
	}

	orders, total, err := s.repo.Page(ctx, repo.Filter{From: &start, To: &end, NewestFirst: true}, page, size)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}

	content, err := s.hydrateAll(ctx, orders)
	if err != nil {
		return nil, s.hydrateError(span, err)
	}
	result := dto.NewPage(content, page, size, total)
	return &result, nil
}

func (s *Service) list(ctx context.Context, op string, f repo.Filter) ([]dto.OrderResponse, error) {
	ctx, span := serviceTracer.Start(ctx, op)
	defer span.End()

	orders, err := s.repo.List(ctx, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))

	out, err := s.hydrateAll(ctx, orders)
	if err != nil {
		return nil, s.hydrateError(span, err)
	}
	return out, nil
}

func (s *Service) hydrate(ctx context.Context, order *entity.Order) (*dto.OrderResponse, error) {
	out, err := s.hydrateAll(ctx, []*entity.Order{order})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// hydrateAll loads the current tables and products referenced by orders in
// two batched lookups and maps every order onto its projection.
func (s *Service) hydrateAll(ctx context.Context, orders []*entity.Order) ([]dto.OrderResponse, error) {
	out := make([]dto.OrderResponse, 0, len(orders))
	if len(orders) == 0 {
		return out, nil
	}

	tableIDs := make([]string, 0, len(orders))
	productIDs := make([]string, 0, len(orders))
	seen := make(map[string]struct{})
	for _, o := range orders {
		if _, ok := seen["t:"+o.TableID]; !ok {
			seen["t:"+o.TableID] = struct{}{}
			tableIDs = append(tableIDs, o.TableID)
		}
		for _, item := range o.Items {
			if _, ok := seen["p:"+item.ProductID]; !ok {
				seen["p:"+item.ProductID] = struct{}{}
				productIDs = append(productIDs, item.ProductID)
			}
		}
	}

	var (
		tables   map[string]*entity.Table
		products map[string]*entity.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tables, err = s.catalog.GetTables(gctx, tableIDs)
		return err
	})
	g.Go(func() error {
		var err error
		products, err = s.catalog.GetProducts(gctx, productIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, o := range orders {
		out = append(out, dto.NewOrderResponse(o, tables[o.TableID], products))
	}
	return out, nil
}

func (s *Service) hydrateError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "hydrate failed")
	return errorbank.Internal("failed to load order details", errorbank.WithCause(err))
}
