package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/cafe/internal/entity"
	"github.com/Additional-Code/cafe/internal/repository/catalog"
)

// Module provides the seeder for CLI commands.
var Module = fx.Provide(New)

// namespace derives stable ids so reseeding finds the rows it wrote before.
var namespace = uuid.MustParse("5b0c3c52-8f3e-4a39-9a57-0d7d2b4c6e11")

// Store persists catalog rows, skipping ones that already exist.
type Store interface {
	SaveCategory(ctx context.Context, category *entity.Category) (bool, error)
	SaveProduct(ctx context.Context, product *entity.Product) (bool, error)
	SaveTable(ctx context.Context, table *entity.Table) (bool, error)
}

// Seeder loads a starter menu and floor plan for local setups.
type Seeder struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Seeder backed by the catalog repository.
func New(repo *catalog.Repository, logger *zap.Logger) *Seeder {
	return newSeeder(repo, logger)
}

func newSeeder(store Store, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type menuItem struct {
	name     string
	price    string
	prepMins int
}

type menuSection struct {
	name  string
	icon  string
	items []menuItem
}

var menu = []menuSection{
	{name: "Coffee", icon: "coffee", items: []menuItem{
		{"Espresso", "2.50", 3},
		{"Cappuccino", "3.80", 5},
		{"Flat White", "4.00", 5},
	}},
	{name: "Tea", icon: "leaf", items: []menuItem{
		{"Green Tea", "3.00", 4},
		{"Chai Latte", "4.20", 6},
	}},
	{name: "Pastries", icon: "croissant", items: []menuItem{
		{"Croissant", "2.90", 2},
		{"Cinnamon Roll", "3.50", 2},
	}},
}

// ID returns the stable seed id for kind/name.
func ID(kind, name string) string {
	return uuid.NewSHA1(namespace, []byte(kind+"/"+name)).String()
}

// Catalog seeds categories, products and tables if they are missing.
func (s *Seeder) Catalog(ctx context.Context) error {
	now := s.now()
	var categories, products, tables int

	for i, section := range menu {
		category := &entity.Category{
			ID:         ID("category", section.name),
			Name:       section.name,
			Icon:       section.icon,
			OrderIndex: i,
			Active:     true,
		}
		category.Stamp(now)
		created, err := s.store.SaveCategory(ctx, category)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", section.name, err)
		}
		if created {
			categories++
		}

		for _, item := range section.items {
			product := &entity.Product{
				ID:              ID("product", item.name),
				Name:            item.name,
				Price:           decimal.RequireFromString(item.price),
				CategoryID:      category.ID,
				Available:       true,
				PreparationTime: item.prepMins,
			}
			product.Stamp(now)
			created, err := s.store.SaveProduct(ctx, product)
			if err != nil {
				return fmt.Errorf("seed product %s: %w", item.name, err)
			}
			if created {
				products++
			}
		}
	}

	for n := 1; n <= 8; n++ {
		number := fmt.Sprintf("%02d", n)
		table := &entity.Table{
			ID:       ID("table", number),
			Number:   number,
			Capacity: 2 + 2*(n%2),
			QRCode:   "table-" + number,
			Location: location(n),
			Active:   true,
		}
		table.Stamp(now)
		created, err := s.store.SaveTable(ctx, table)
		if err != nil {
			return fmt.Errorf("seed table %s: %w", number, err)
		}
		if created {
			tables++
		}
	}

	s.logger.Info("seeded catalog",
		zap.Int("categories", categories),
		zap.Int("products", products),
		zap.Int("tables", tables),
	)
	return nil
}

func location(n int) string {
	if n > 6 {
		return "terrace"
	}
	return "indoor"
}
