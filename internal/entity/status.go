package entity

import (
	"fmt"
	"strings"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusPreparing OrderStatus = "PREPARING"
	StatusReady     OrderStatus = "READY"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// statusAliases maps accepted spellings, including the labels older clients
// still send, onto canonical statuses.
var statusAliases = map[string]OrderStatus{
	"PENDING":        StatusPending,
	"PREPARING":      StatusPreparing,
	"EN_PREPARACION": StatusPreparing,
	"READY":          StatusReady,
	"LISTO":          StatusReady,
	"DELIVERED":      StatusDelivered,
	"ENTREGADO":      StatusDelivered,
	"CANCELLED":      StatusCancelled,
	"CANCELED":       StatusCancelled,
	"CANCELADO":      StatusCancelled,
}

// ParseOrderStatus resolves a case-insensitive status label.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if status, ok := statusAliases[key]; ok {
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}

// ActiveStatuses lists the states shown on kitchen and floor displays.
func ActiveStatuses() []OrderStatus {
	return []OrderStatus{StatusPending, StatusPreparing, StatusReady}
}

// IsActive reports whether the order still needs attention from staff.
func (s OrderStatus) IsActive() bool {
	return s == StatusPending || s == StatusPreparing || s == StatusReady
}

// IsTerminal reports whether the status ends the normal lifecycle.
// Transitions out of a terminal status are still accepted.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) String() string { return string(s) }
