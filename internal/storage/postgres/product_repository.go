package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cimillas/storefront/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, name, description, price, stock, created_at, updated_at`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// LockProductForUpdate reads a product and holds its row lock until the
// surrounding transaction ends.
func (r *ProductRepository) LockProductForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	tx := txFromContext(ctx)
	if tx == nil {
		return domain.Product{}, domain.ErrNoTransaction
	}

	const query = `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	p, err := scanProduct(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("lock product: %w", err)
	}
	return p, nil
}

// DecrementStock takes qty units from a product. The caller must already hold
// the row lock in the current transaction.
func (r *ProductRepository) DecrementStock(ctx context.Context, id int64, qty int) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return domain.ErrNoTransaction
	}

	const stmt = `
UPDATE products
SET stock = stock - $2, updated_at = NOW()
WHERE id = $1 AND stock >= $2`

	tag, err := tx.Exec(ctx, stmt, id, qty)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrInsufficientInventory
		}
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check product: %w", err)
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrInsufficientInventory
	}
	return nil
}

func (r *ProductRepository) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	const stmt = `
INSERT INTO products (name, description, price, stock)
VALUES ($1, $2, $3, $4)
RETURNING ` + productColumns

	created, err := scanProduct(conn(ctx, r.pool).QueryRow(ctx, stmt, p.Name, p.Description, p.Price, p.Stock))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, domain.ErrDuplicateEntry
		}
		if isCheckViolation(err) {
			return domain.Product{}, domain.ErrInvalidProductData
		}
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	const query = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, error) {
	const query = `SELECT ` + productColumns + ` FROM products ORDER BY id ASC OFFSET $1 LIMIT $2`
	rows, err := conn(ctx, r.pool).Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate products: %w", rows.Err())
	}
	return products, nil
}
