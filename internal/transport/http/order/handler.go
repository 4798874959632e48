package order

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/cafe/internal/config"
	"github.com/Additional-Code/cafe/internal/dto"
	"github.com/Additional-Code/cafe/internal/presentation/http/response"
	"github.com/Additional-Code/cafe/internal/transport/http/middleware"
	"github.com/Additional-Code/cafe/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/cafe/transport/http/order")

// localLayout is accepted for date parameters sent without a zone; they are
// read as UTC.
const localLayout = "2006-01-02T15:04:05"

// OrderService is the order lifecycle API the handlers expose.
type OrderService interface {
	CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*dto.OrderResponse, error)
	UpdateOrderStatus(ctx context.Context, id, status string) (*dto.OrderResponse, error)
	DeleteOrder(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*dto.OrderResponse, error)
	GetAll(ctx context.Context) ([]dto.OrderResponse, error)
	GetByStatus(ctx context.Context, status string) ([]dto.OrderResponse, error)
	GetByTable(ctx context.Context, tableID string) ([]dto.OrderResponse, error)
	GetActive(ctx context.Context) ([]dto.OrderResponse, error)
	GetByDateRange(ctx context.Context, start, end time.Time) ([]dto.OrderResponse, error)
	GetByDateRangePage(ctx context.Context, start, end time.Time, page, size int) (*dto.Page[dto.OrderResponse], error)
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc OrderService
}

// NewHandler constructs an order Handler.
func NewHandler(svc OrderService) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance. Customers may place and
// follow orders; listing, status changes and deletion need a staff token.
func Register(e *echo.Echo, h *Handler, cfg config.Config) {
	staff := middleware.Staff(cfg.Auth)
	limited := middleware.RateLimit(cfg.RateLimit)

	g := e.Group("/orders")
	g.POST("", h.create, limited)
	g.GET("", h.list, staff)
	g.GET("/active", h.active)
	g.GET("/status/:status", h.byStatus, staff)
	g.GET("/table/:tableId", h.byTable)
	g.GET("/date-range", h.byDateRange, staff)
	g.GET("/date-range/pageable", h.byDateRangePage, staff)
	g.GET("/:id", h.getByID)
	g.PATCH("/:id/status", h.updateStatus, staff)
	g.DELETE("/:id", h.delete, staff)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.String("table.id", payload.TableID),
	))
	defer span.End()

	order, err := h.svc.CreateOrder(ctx, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(order).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.GetByID(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(order).Build()
}

func (h *Handler) list(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, err := h.svc.GetAll(ctx)
	return renderList(c, orders, err)
}

func (h *Handler) active(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.active")
	defer span.End()

	orders, err := h.svc.GetActive(ctx)
	return renderList(c, orders, err)
}

func (h *Handler) byStatus(c echo.Context) error {
	status := c.Param("status")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.byStatus", trace.WithAttributes(attribute.String("order.status", status)))
	defer span.End()

	orders, err := h.svc.GetByStatus(ctx, status)
	return renderList(c, orders, err)
}

func (h *Handler) byTable(c echo.Context) error {
	tableID := c.Param("tableId")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.byTable", trace.WithAttributes(attribute.String("table.id", tableID)))
	defer span.End()

	orders, err := h.svc.GetByTable(ctx, tableID)
	return renderList(c, orders, err)
}

func (h *Handler) byDateRange(c echo.Context) error {
	start, end, err := dateRange(c)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.byDateRange")
	defer span.End()

	orders, err := h.svc.GetByDateRange(ctx, start, end)
	return renderList(c, orders, err)
}

func (h *Handler) byDateRangePage(c echo.Context) error {
	b := response.New(c)

	start, end, err := dateRange(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	page, err := intParam(c, "page", 0)
	if err != nil {
		return b.WithError(err).Build()
	}
	size, err := intParam(c, "size", 0)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.byDateRangePage", trace.WithAttributes(
		attribute.Int("page.number", page),
		attribute.Int("page.size", size),
	))
	defer span.End()

	result, err := h.svc.GetByDateRangePage(ctx, start, end, page, size)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(result).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload dto.UpdateStatusRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.Status == "" {
		return b.WithError(errorbank.Validation("status is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", payload.Status),
	))
	defer span.End()

	order, err := h.svc.UpdateOrderStatus(ctx, id, payload.Status)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(order).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.delete", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := h.svc.DeleteOrder(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.NoContent()
}

func renderList(c echo.Context, orders []dto.OrderResponse, err error) error {
	b := response.New(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	if orders == nil {
		orders = []dto.OrderResponse{}
	}
	return b.WithData(orders).WithMeta("count", len(orders)).Build()
}

func dateRange(c echo.Context) (time.Time, time.Time, error) {
	start, err := timeParam(c, "startDate")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := timeParam(c, "endDate")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func timeParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, errorbank.BadRequest(name + " is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, errorbank.BadRequest("invalid "+name, errorbank.WithDetail(name, raw), errorbank.WithCause(err))
	}
	return t, nil
}

func intParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithDetail(name, raw), errorbank.WithCause(err))
	}
	return v, nil
}
