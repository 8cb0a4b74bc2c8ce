package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

// LineItem is one (product, quantity) pair of an order. Stored as submitted.
type LineItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Order is a purchase of one or more line items.
type Order struct {
	ID         int64
	Items      []LineItem
	TotalPrice decimal.Decimal
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Reservation is the total quantity requested for a single product.
type Reservation struct {
	ProductID int64
	Quantity  int
}

// ValidateLineItems checks the shape of an order request.
func ValidateLineItems(items []LineItem) error {
	if len(items) == 0 {
		return NewError(ErrInvalidOrderData, "Order must contain at least one product", nil)
	}
	for i, item := range items {
		if item.ProductID <= 0 {
			return NewError(ErrInvalidOrderData, fmt.Sprintf("line item %d has an invalid product id", i), map[string]any{
				"index":      i,
				"product_id": item.ProductID,
			})
		}
		if item.Quantity <= 0 {
			return NewError(ErrInvalidOrderData, fmt.Sprintf("line item %d must have a quantity greater than zero", i), map[string]any{
				"index":      i,
				"product_id": item.ProductID,
				"quantity":   item.Quantity,
			})
		}
	}
	return nil
}

// Reservations sums quantities per product and returns them sorted by
// ascending product id, the order in which rows must be locked.
func Reservations(items []LineItem) []Reservation {
	totals := make(map[int64]int, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}
	out := make([]Reservation, 0, len(totals))
	for id, qty := range totals {
		out = append(out, Reservation{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// TotalPrice sums unit price × quantity over items. Every item's product must
// be present in prices.
func TotalPrice(items []LineItem, prices map[int64]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(prices[item.ProductID].Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
