package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/cafe/internal/database"
	"github.com/Additional-Code/cafe/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/cafe/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// Filter narrows order listings. Empty fields do not constrain the result.
// From and To are inclusive.
type Filter struct {
	Statuses []entity.OrderStatus
	TableID  string
	From     *time.Time
	To       *time.Time
	// NewestFirst sorts by creation time descending instead of ascending.
	NewestFirst bool
}

// Repository encapsulates read/write access for orders and their items.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists the order and all of its items in one transaction.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.Int("order.items", len(order.Items)),
	))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		if len(order.Items) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&order.Items).Exec(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches an order with its items in placement order.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().
		Model(order).
		Relation("Items", orderItems).
		Where("o.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// List returns every order matching f.
func (r *Repository) List(ctx context.Context, f Filter) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List", filterAttributes(f))
	defer span.End()

	orders := make([]*entity.Order, 0)
	if err := r.query(&orders, f).Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// Page returns one zero-based page of orders matching f plus the total number
// of matches.
func (r *Repository) Page(ctx context.Context, f Filter, page, size int) ([]*entity.Order, int, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Page", filterAttributes(f),
		trace.WithAttributes(attribute.Int("page.number", page), attribute.Int("page.size", size)))
	defer span.End()

	orders := make([]*entity.Order, 0, size)
	total, err := r.query(&orders, f).
		Limit(size).
		Offset(page * size).
		ScanAndCount(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus writes the status and lifecycle timestamps of order.
func (r *Repository) UpdateStatus(ctx context.Context, order *entity.Order) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.status", order.Status.String()),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model(order).
		Column("status", "ready_at", "delivered_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL counts changed rows, so rewriting identical values reports zero.
		if err := r.mustExist(ctx, order.ID); err != nil {
			span.SetStatus(codes.Error, "not found")
			return err
		}
	}
	return nil
}

// mustExist returns ErrNotFound unless an order with id is stored.
func (r *Repository) mustExist(ctx context.Context, id string) error {
	exists, err := r.writer.NewSelect().
		Model((*entity.Order)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// Delete removes the order and its items in one transaction.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Delete", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entity.OrderItem)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*entity.Order)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

func (r *Repository) query(dest *[]*entity.Order, f Filter) *bun.SelectQuery {
	q := r.reader.NewSelect().Model(dest).Relation("Items", orderItems)
	if len(f.Statuses) > 0 {
		q = q.Where("o.status IN (?)", bun.In(f.Statuses))
	}
	if f.TableID != "" {
		q = q.Where("o.table_id = ?", f.TableID)
	}
	if f.From != nil {
		q = q.Where("o.created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("o.created_at <= ?", f.To.UTC())
	}
	if f.NewestFirst {
		return q.Order("o.created_at DESC", "o.id DESC")
	}
	return q.Order("o.created_at ASC", "o.id ASC")
}

func orderItems(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("oi.position ASC")
}

func filterAttributes(f Filter) trace.SpanStartEventOption {
	attrs := []attribute.KeyValue{attribute.Bool("filter.newest_first", f.NewestFirst)}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = s.String()
		}
		attrs = append(attrs, attribute.StringSlice("filter.statuses", statuses))
	}
	if f.TableID != "" {
		attrs = append(attrs, attribute.String("filter.table_id", f.TableID))
	}
	return trace.WithAttributes(attrs...)
}
