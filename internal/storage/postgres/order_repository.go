package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cimillas/storefront/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `id, products, total_price, status, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	if err := row.Scan(&o.ID, &o.Items, &o.TotalPrice, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// CreateOrder inserts an order and returns it with its assigned id.
func (r *OrderRepository) CreateOrder(ctx context.Context, items []domain.LineItem, total decimal.Decimal, status domain.OrderStatus) (domain.Order, error) {
	const stmt = `
INSERT INTO orders (products, total_price, status)
VALUES ($1, $2, $3)
RETURNING ` + orderColumns

	o, err := scanOrder(conn(ctx, r.pool).QueryRow(ctx, stmt, items, total, string(status)))
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOrder(ctx, query, id)
}

// GetOrderForUpdate reloads an order and locks its row for the current
// transaction.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	if txFromContext(ctx) == nil {
		return domain.Order{}, domain.ErrNoTransaction
	}
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.getOrder(ctx, query, id)
}

func (r *OrderRepository) getOrder(ctx context.Context, query string, id int64) (domain.Order, error) {
	o, err := scanOrder(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) SetOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	const stmt = `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := conn(ctx, r.pool).Exec(ctx, stmt, id, string(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
