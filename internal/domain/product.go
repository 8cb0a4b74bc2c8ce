package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable unit with its available stock.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanReserve reports whether qty units can be taken from the current stock.
func (p Product) CanReserve(qty int) bool {
	return qty > 0 && p.Stock >= qty
}
