package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Order is the aggregate root for a customer order placed at a table.
// Items are owned by the order and removed with it.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o" json:"-"`

	ID           string          `bun:"id,pk" json:"id"`
	TableID      string          `bun:"table_id,notnull" json:"tableId"`
	CustomerName string          `bun:"customer_name,nullzero" json:"customerName,omitempty"`
	Status       OrderStatus     `bun:"status,notnull" json:"status"`
	TotalAmount  decimal.Decimal `bun:"total_amount,type:decimal(10,2),notnull" json:"totalAmount"`
	Notes        string          `bun:"notes,nullzero" json:"notes,omitempty"`
	ReadyAt      *time.Time      `bun:"ready_at" json:"readyAt,omitempty"`
	DeliveredAt  *time.Time      `bun:"delivered_at" json:"deliveredAt,omitempty"`
	Audit

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id" json:"items"`
}

// OrderItem is one product line of an order. UnitPrice is the product price
// captured when the order was placed and is never re-derived.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi" json:"-"`

	ID        string          `bun:"id,pk" json:"id"`
	OrderID   string          `bun:"order_id,notnull" json:"orderId"`
	ProductID string          `bun:"product_id,notnull" json:"productId"`
	Position  int             `bun:"position,notnull" json:"position"`
	Quantity  int             `bun:"quantity,notnull" json:"quantity"`
	UnitPrice decimal.Decimal `bun:"unit_price,type:decimal(10,2),notnull" json:"unitPrice"`
	Subtotal  decimal.Decimal `bun:"subtotal,type:decimal(10,2),notnull" json:"subtotal"`
	Notes     string          `bun:"notes,nullzero" json:"notes,omitempty"`
	Audit
}

// CalculateSubtotal sets Subtotal = Quantity * UnitPrice.
func (i *OrderItem) CalculateSubtotal() {
	i.Subtotal = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CalculateTotal sets TotalAmount to the sum of item subtotals.
func (o *Order) CalculateTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal)
	}
	o.TotalAmount = total
}

// AddItem appends a line, wiring ownership and keeping the total current.
func (o *Order) AddItem(item *OrderItem) {
	item.OrderID = o.ID
	item.Position = len(o.Items)
	item.CalculateSubtotal()
	o.Items = append(o.Items, item)
	o.CalculateTotal()
}

// ApplyStatus moves the order to next and derives the lifecycle timestamps.
// Any transition is accepted. ReadyAt and DeliveredAt are only ever set once;
// delivering an order that was never marked ready backfills ReadyAt.
// It returns the status the order had before the call.
func (o *Order) ApplyStatus(next OrderStatus, now time.Time) OrderStatus {
	previous := o.Status
	o.Status = next

	switch next {
	case StatusReady:
		if o.ReadyAt == nil {
			o.ReadyAt = timePtr(now)
		}
	case StatusDelivered:
		if o.DeliveredAt == nil {
			o.DeliveredAt = timePtr(now)
		}
		if o.ReadyAt == nil {
			o.ReadyAt = timePtr(now)
		}
	}

	o.Touch(now)
	return previous
}

// PreparationTime is the span between placement and readiness, if known.
func (o *Order) PreparationTime() (time.Duration, bool) {
	if o.ReadyAt == nil || o.CreatedAt.IsZero() {
		return 0, false
	}
	return o.ReadyAt.Sub(o.CreatedAt), true
}

func timePtr(t time.Time) *time.Time {
	return &t
}
