package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/cafe/internal/entity"
)

// CreateOrderRequest is the payload accepted when a customer places an order.
type CreateOrderRequest struct {
	TableID      string                   `json:"tableId"`
	CustomerName string                   `json:"customerName,omitempty"`
	Items        []CreateOrderItemRequest `json:"items"`
	Notes        string                   `json:"notes,omitempty"`
}

// CreateOrderItemRequest is one requested line.
type CreateOrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

// UpdateStatusRequest changes an order's status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID           string              `json:"id"`
	Table        TableResponse       `json:"table"`
	CustomerName string              `json:"customerName,omitempty"`
	Status       string              `json:"status"`
	Items        []OrderItemResponse `json:"items"`
	TotalAmount  decimal.Decimal     `json:"totalAmount"`
	Notes        string              `json:"notes,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	ReadyAt      *time.Time          `json:"readyAt,omitempty"`
	DeliveredAt  *time.Time          `json:"deliveredAt,omitempty"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// OrderItemResponse is one order line with its current product data and the
// price frozen at order time.
type OrderItemResponse struct {
	ID        string          `json:"id"`
	Product   ProductResponse `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Notes     string          `json:"notes,omitempty"`
}

// TableResponse projects a café table.
type TableResponse struct {
	ID       string `json:"id"`
	Number   string `json:"number,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
	QRCode   string `json:"qrCode,omitempty"`
	Location string `json:"location,omitempty"`
	Active   bool   `json:"active"`
}

// ProductResponse projects a menu product.
type ProductResponse struct {
	ID              string            `json:"id"`
	Name            string            `json:"name,omitempty"`
	Description     string            `json:"description,omitempty"`
	Price           *decimal.Decimal  `json:"price,omitempty"`
	Category        *CategoryResponse `json:"category,omitempty"`
	ImageURL        string            `json:"imageUrl,omitempty"`
	PreparationTime int               `json:"preparationTime,omitempty"`
	Available       bool              `json:"available"`
	OrderCount      int64             `json:"orderCount"`
}

// CategoryResponse projects a product category.
type CategoryResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Page is one slice of a paginated listing. Page numbers start at zero.
type Page[T any] struct {
	Content       []T `json:"content"`
	Page          int `json:"page"`
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
}

// NewPage computes the page count for total matches split into size-sized pages.
func NewPage[T any](content []T, page, size, total int) Page[T] {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	if content == nil {
		content = []T{}
	}
	return Page[T]{Content: content, Page: page, Size: size, TotalElements: total, TotalPages: pages}
}

// NewOrderResponse maps an order aggregate plus its freshly loaded table and
// products. A nil table or a product missing from products yields a
// projection carrying only the id.
func NewOrderResponse(order *entity.Order, table *entity.Table, products map[string]*entity.Product) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, NewOrderItemResponse(item, products[item.ProductID]))
	}

	tableResp := TableResponse{ID: order.TableID}
	if table != nil {
		tableResp = NewTableResponse(table)
	}

	return OrderResponse{
		ID:           order.ID,
		Table:        tableResp,
		CustomerName: order.CustomerName,
		Status:       order.Status.String(),
		Items:        items,
		TotalAmount:  order.TotalAmount,
		Notes:        order.Notes,
		CreatedAt:    order.CreatedAt,
		ReadyAt:      order.ReadyAt,
		DeliveredAt:  order.DeliveredAt,
		UpdatedAt:    order.UpdatedAt,
	}
}

// NewOrderItemResponse maps an item; product may be nil.
func NewOrderItemResponse(item *entity.OrderItem, product *entity.Product) OrderItemResponse {
	productResp := ProductResponse{ID: item.ProductID}
	if product != nil {
		productResp = NewProductResponse(product)
	}
	return OrderItemResponse{
		ID:        item.ID,
		Product:   productResp,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		Subtotal:  item.Subtotal,
		Notes:     item.Notes,
	}
}

// NewTableResponse maps a table.
func NewTableResponse(t *entity.Table) TableResponse {
	return TableResponse{
		ID:       t.ID,
		Number:   t.Number,
		Capacity: t.Capacity,
		QRCode:   t.QRCode,
		Location: t.Location,
		Active:   t.Active,
	}
}

// NewProductResponse maps a product and, when loaded, its category.
func NewProductResponse(p *entity.Product) ProductResponse {
	price := p.Price
	resp := ProductResponse{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Price:           &price,
		ImageURL:        p.ImageURL,
		PreparationTime: p.PreparationTime,
		Available:       p.Available,
		OrderCount:      p.OrderCount,
	}
	if p.Category != nil {
		resp.Category = &CategoryResponse{
			ID:          p.Category.ID,
			Name:        p.Category.Name,
			Description: p.Category.Description,
			Icon:        p.Category.Icon,
		}
	}
	return resp
}
