package order

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Additional-Code/cafe/internal/cache"
	"github.com/Additional-Code/cafe/internal/entity"
	"github.com/Additional-Code/cafe/internal/messaging"
	"github.com/Additional-Code/cafe/internal/repository/catalog"
	repo "github.com/Additional-Code/cafe/internal/repository/order"
)

// clone round-trips through JSON so the fake store never shares memory with
// the service, like a real database.
func clone(o *entity.Order) *entity.Order {
	raw, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}
	var out entity.Order
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}

type fakeRepo struct {
	mu         sync.Mutex
	orders     map[string]*entity.Order
	creates    int
	lastFilter repo.Filter
	lastPage   [2]int
	failWith   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]*entity.Order)}
}

func (r *fakeRepo) Create(_ context.Context, o *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.creates++
	r.orders[o.ID] = clone(o)
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return clone(o), nil
}

func (r *fakeRepo) List(_ context.Context, f repo.Filter) ([]*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = f
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []*entity.Order
	for _, o := range r.orders {
		out = append(out, clone(o))
	}
	return out, nil
}

func (r *fakeRepo) Page(_ context.Context, f repo.Filter, page, size int) ([]*entity.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = f
	r.lastPage = [2]int{page, size}
	var out []*entity.Order
	for _, o := range r.orders {
		out = append(out, clone(o))
	}
	return out, len(out), nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, o *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[o.ID]
	if !ok {
		return repo.ErrNotFound
	}
	stored.Status = o.Status
	stored.ReadyAt = o.ReadyAt
	stored.DeliveredAt = o.DeliveredAt
	stored.UpdatedAt = o.UpdatedAt
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.orders, id)
	return nil
}

type fakeCatalog struct {
	mu         sync.Mutex
	tables     map[string]*entity.Table
	products   map[string]*entity.Product
	increments map[string]int
	calls      []string

	failIncrement error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		tables:     make(map[string]*entity.Table),
		products:   make(map[string]*entity.Product),
		increments: make(map[string]int),
	}
}

func (c *fakeCatalog) GetTable(_ context.Context, id string) (*entity.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "table:"+id)
	t, ok := c.tables[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (c *fakeCatalog) GetProduct(_ context.Context, id string) (*entity.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "product:"+id)
	p, ok := c.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *fakeCatalog) GetTables(_ context.Context, ids []string) (map[string]*entity.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*entity.Table)
	for _, id := range ids {
		if t, ok := c.tables[id]; ok {
			cp := *t
			out[id] = &cp
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetProducts(_ context.Context, ids []string) (map[string]*entity.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*entity.Product)
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (c *fakeCatalog) IncrementProductOrderCount(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failIncrement != nil {
		return c.failIncrement
	}
	p, ok := c.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	p.OrderCount++
	c.increments[id]++
	return nil
}

type published struct {
	channel string
	payload any
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []published
	err   error
}

func (n *fakeNotifier) Publish(_ context.Context, channel string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, published{channel: channel, payload: payload})
	return n.err
}

func (n *fakeNotifier) channels() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.calls))
	for i, c := range n.calls {
		out[i] = c.channel
	}
	return out
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []messaging.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *fakePublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePublisher) Topic() string { return "orders.events" }

type countingCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes []string
	getErr  error
}

func newCountingCache() *countingCache {
	return &countingCache{data: make(map[string][]byte)}
}

func (c *countingCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (c *countingCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *countingCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, key)
	delete(c.data, key)
	return nil
}

var errBoom = errors.New("boom")
