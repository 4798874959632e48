package order

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Additional-Code/cafe/internal/dto"
	"github.com/Additional-Code/cafe/pkg/errorbank"
)

const (
	maxCustomerNameLen = 100
	maxOrderNotesLen   = 500
	maxItemNotesLen    = 200
)

// validateCreate checks the request shape before any catalog lookup runs.
func validateCreate(req dto.CreateOrderRequest) error {
	if isBlank(req.TableID) {
		return fieldError("tableId", "tableId is required")
	}
	if utf8.RuneCountInString(req.CustomerName) > maxCustomerNameLen {
		return fieldError("customerName", fmt.Sprintf("customerName must be at most %d characters", maxCustomerNameLen))
	}
	if utf8.RuneCountInString(req.Notes) > maxOrderNotesLen {
		return fieldError("notes", fmt.Sprintf("notes must be at most %d characters", maxOrderNotesLen))
	}
	if len(req.Items) == 0 {
		return fieldError("items", "order must contain at least one item")
	}
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if isBlank(item.ProductID) {
			return fieldError(field+".productId", "productId is required")
		}
		if item.Quantity < 1 {
			return fieldError(field+".quantity", "quantity must be at least 1")
		}
		if utf8.RuneCountInString(item.Notes) > maxItemNotesLen {
			return fieldError(field+".notes", fmt.Sprintf("item notes must be at most %d characters", maxItemNotesLen))
		}
	}
	return nil
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return errorbank.Validation("startDate and endDate are required")
	}
	if start.After(end) {
		return errorbank.Validation("startDate must not be after endDate",
			errorbank.WithDetail("startDate", start),
			errorbank.WithDetail("endDate", end),
		)
	}
	return nil
}

func fieldError(field, message string) error {
	return errorbank.Validation(message, errorbank.WithDetail("field", field))
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
