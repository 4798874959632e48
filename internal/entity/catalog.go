package entity

import (
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Category groups products on the menu.
type Category struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID          string `bun:"id,pk"`
	Name        string `bun:"name,notnull,unique"`
	Description string `bun:"description,nullzero"`
	Icon        string `bun:"icon,nullzero"`
	OrderIndex  int    `bun:"order_index,notnull"`
	Active      bool   `bun:"active,notnull"`
	Audit
}

// Product is a menu entry. OrderCount is a lifetime counter bumped once per
// order line that references the product.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID              string          `bun:"id,pk"`
	Name            string          `bun:"name,notnull"`
	Description     string          `bun:"description,nullzero"`
	Price           decimal.Decimal `bun:"price,type:decimal(10,2),notnull"`
	CategoryID      string          `bun:"category_id,notnull"`
	Category        *Category       `bun:"rel:belongs-to,join:category_id=id"`
	ImageURL        string          `bun:"image_url,nullzero"`
	Available       bool            `bun:"available,notnull"`
	PreparationTime int             `bun:"preparation_time,nullzero"`
	OrderCount      int64           `bun:"order_count,notnull"`
	Audit
}

// Table is a physical café table customers order from.
type Table struct {
	bun.BaseModel `bun:"table:tables,alias:t"`

	ID       string `bun:"id,pk"`
	Number   string `bun:"number,notnull,unique"`
	Capacity int    `bun:"capacity,notnull"`
	QRCode   string `bun:"qr_code,nullzero"`
	Location string `bun:"location,nullzero"`
	Active   bool   `bun:"active,notnull"`
	Audit
}
