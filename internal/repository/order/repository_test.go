package order

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/cafe/internal/database"
	"github.com/Additional-Code/cafe/internal/database/dbtest"
	"github.com/Additional-Code/cafe/internal/entity"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) (*Repository, *database.Connections) {
	t.Helper()
	conns := dbtest.New(t)
	ctx := context.Background()

	category := &entity.Category{ID: "cat", Name: "Coffee", Active: true}
	category.Stamp(base)
	product := &entity.Product{ID: "prod", Name: "Latte", Price: decimal.NewFromInt(2500), CategoryID: "cat", Available: true}
	product.Stamp(base)
	for _, model := range []any{category, product} {
		_, err := conns.Writer.NewInsert().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
	for _, id := range []string{"t1", "t2"} {
		table := &entity.Table{ID: id, Number: id, Capacity: 2, Active: true}
		table.Stamp(base)
		_, err := conns.Writer.NewInsert().Model(table).Exec(ctx)
		require.NoError(t, err)
	}
	return NewRepository(conns), conns
}

func newOrder(id, table string, createdAt time.Time, status entity.OrderStatus, quantities ...int) *entity.Order {
	order := &entity.Order{ID: id, TableID: table, Status: status}
	order.Stamp(createdAt)
	for i, q := range quantities {
		item := &entity.OrderItem{
			ID:        fmt.Sprintf("%s-item-%d", id, i),
			ProductID: "prod",
			Quantity:  q,
			UnitPrice: decimal.NewFromInt(2500),
		}
		item.Stamp(createdAt)
		order.AddItem(item)
	}
	return order
}

func TestCreateAndGetByID(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	order := newOrder("o1", "t1", base, entity.StatusPending, 2, 1)
	order.CustomerName = "Ana"
	require.NoError(t, repo.Create(ctx, order))

	got, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TableID)
	assert.Equal(t, "Ana", got.CustomerName)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(7500)), got.TotalAmount.String())
	assert.Nil(t, got.ReadyAt)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 0, got.Items[0].Position)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, got.Items[0].Subtotal.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, "o1", got.Items[1].OrderID)
}

func TestCreateRollsBackOnItemFailure(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	order := newOrder("o1", "t1", base, entity.StatusPending, 1)
	order.Items[0].ProductID = "missing-product"
	require.Error(t, repo.Create(ctx, order))

	_, err := repo.GetByID(ctx, "o1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByIDMissing(t *testing.T) {
	repo, _ := newRepo(t)
	_, err := repo.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFilters(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	fixtures := []*entity.Order{
		newOrder("o1", "t1", base, entity.StatusPending, 1),
		newOrder("o2", "t2", base.Add(time.Hour), entity.StatusReady, 1),
		newOrder("o3", "t1", base.Add(2*time.Hour), entity.StatusDelivered, 1),
		newOrder("o4", "t2", base.Add(3*time.Hour), entity.StatusCancelled, 1),
	}
	for _, o := range fixtures {
		require.NoError(t, repo.Create(ctx, o))
	}

	ids := func(orders []*entity.Order) []string {
		out := make([]string, len(orders))
		for i, o := range orders {
			out[i] = o.ID
		}
		return out
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2", "o3", "o4"}, ids(all))
	assert.Len(t, all[0].Items, 1)

	active, err := repo.List(ctx, Filter{Statuses: entity.ActiveStatuses()})
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, ids(active))

	byTable, err := repo.List(ctx, Filter{TableID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o3"}, ids(byTable))

	from, to := base.Add(time.Hour), base.Add(2*time.Hour)
	ranged, err := repo.List(ctx, Filter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{"o2", "o3"}, ids(ranged), "bounds are inclusive")

	newest, err := repo.List(ctx, Filter{NewestFirst: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"o4", "o3", "o2", "o1"}, ids(newest))
}

func TestPage(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newOrder(fmt.Sprintf("o%d", i), "t1", base.Add(time.Duration(i)*time.Minute), entity.StatusPending, 1)))
	}

	from, to := base, base.Add(time.Hour)
	page, total, err := repo.Page(ctx, Filter{From: &from, To: &to, NewestFirst: true}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "o2", page[0].ID)
	assert.Equal(t, "o1", page[1].ID)

	beyond, total, err := repo.Page(ctx, Filter{}, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, beyond)
}

func TestUpdateStatusPersistsTimestamps(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	order := newOrder("o1", "t1", base, entity.StatusPending, 1)
	require.NoError(t, repo.Create(ctx, order))

	order.ApplyStatus(entity.StatusDelivered, base.Add(10*time.Minute))
	require.NoError(t, repo.UpdateStatus(ctx, order))

	got, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDelivered, got.Status)
	require.NotNil(t, got.ReadyAt)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, got.DeliveredAt.Equal(base.Add(10*time.Minute)))
	assert.True(t, got.CreatedAt.Equal(base))

	ghost := newOrder("ghost", "t1", base, entity.StatusReady)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, ghost), ErrNotFound)
}

func TestUpdateStatusWithUnchangedValuesSucceeds(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	order := newOrder("o1", "t1", base, entity.StatusPending, 1)
	require.NoError(t, repo.Create(ctx, order))

	order.ApplyStatus(entity.StatusReady, base.Add(time.Minute))
	require.NoError(t, repo.UpdateStatus(ctx, order))
	order.ApplyStatus(entity.StatusReady, base.Add(time.Minute))
	require.NoError(t, repo.UpdateStatus(ctx, order), "an identical rewrite is not a missing order")
}

func TestMustExist(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newOrder("o1", "t1", base, entity.StatusPending, 1)))

	assert.NoError(t, repo.mustExist(ctx, "o1"))
	assert.ErrorIs(t, repo.mustExist(ctx, "ghost"), ErrNotFound)
}

func TestDeleteRemovesItems(t *testing.T) {
	repo, conns := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newOrder("o1", "t1", base, entity.StatusPending, 1, 2)))

	require.NoError(t, repo.Delete(ctx, "o1"))

	_, err := repo.GetByID(ctx, "o1")
	assert.ErrorIs(t, err, ErrNotFound)
	items, err := conns.Reader.NewSelect().Model((*entity.OrderItem)(nil)).Where("order_id = ?", "o1").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, items)

	assert.ErrorIs(t, repo.Delete(ctx, "o1"), ErrNotFound)
}
