package catalog

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

var repoTracer = otel.Tracer("github.com/Additional-Code/cafe/repository/catalog")

// ErrNotFound is returned when a table or product is missing.
var ErrNotFound = errors.New("catalog entry not found")

// Repository reads the tables and products orders refer to.
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

// GetTable fetches a table by id.
func (r *Repository) GetTable(ctx context.Context, id string) (*entity.Table, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.GetTable", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	table := new(entity.Table)
	err := r.reader.NewSelect().Model(table).Where("t.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, notFoundOr(span, err)
	}
	return table, nil
}

// GetProduct fetches a product with its category.
func (r *Repository) GetProduct(ctx context.Context, id string) (*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.GetProduct", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	product := new(entity.Product)
	err := r.reader.NewSelect().Model(product).Relation("Category").Where("p.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, notFoundOr(span, err)
	}
	return product, nil
}

// GetTables loads the given tables keyed by id. Unknown ids are absent from
// the result.
func (r *Repository) GetTables(ctx context.Context, ids []string) (map[string]*entity.Table, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.GetTables", trace.WithAttributes(attribute.Int("table.count", len(ids))))
	defer span.End()

	out := make(map[string]*entity.Table, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var tables []*entity.Table
	if err := r.reader.NewSelect().Model(&tables).Where("t.id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	for _, t := range tables {
		out[t.ID] = t
	}
	return out, nil
}

// GetProducts loads the given products with their categories keyed by id.
// Unknown ids are absent from the result.
func (r *Repository) GetProducts(ctx context.Context, ids []string) (map[string]*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.GetProducts", trace.WithAttributes(attribute.Int("product.count", len(ids))))
	defer span.End()

	out := make(map[string]*entity.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var products []*entity.Product
	if err := r.reader.NewSelect().Model(&products).Relation("Category").Where("p.id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// IncrementProductOrderCount bumps the lifetime order counter in a single
// statement so concurrent orders never lose an increment.
func (r *Repository) IncrementProductOrderCount(ctx context.Context, id string) error {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.IncrementProductOrderCount", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Product)(nil)).
		Set("order_count = order_count + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	}
	return nil
}

// SaveCategory inserts a category or leaves an existing one untouched.
func (r *Repository) SaveCategory(ctx context.Context, category *entity.Category) (bool, error) {
	return r.insertIgnore(ctx, "CatalogRepository.SaveCategory", category)
}

// SaveProduct inserts a product or leaves an existing one untouched.
func (r *Repository) SaveProduct(ctx context.Context, product *entity.Product) (bool, error) {
	return r.insertIgnore(ctx, "CatalogRepository.SaveProduct", product)
}

// SaveTable inserts a table or leaves an existing one untouched.
func (r *Repository) SaveTable(ctx context.Context, table *entity.Table) (bool, error) {
	return r.insertIgnore(ctx, "CatalogRepository.SaveTable", table)
}

// insertIgnore reports whether a row was created.
func (r *Repository) insertIgnore(ctx context.Context, op string, model any) (bool, error) {
	ctx, span := repoTracer.Start(ctx, op)
	defer span.End()

	created := false
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pk := tx.NewSelect().Model(model).WherePK()
		exists, err := pk.Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if _, err := tx.NewInsert().Model(model).Exec(ctx); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return false, err
	}
	return created, nil
}

func notFoundOr(span trace.Span, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "select failed")
	return err
}
