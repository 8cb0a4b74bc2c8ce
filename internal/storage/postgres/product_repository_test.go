package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/cimillas/storefront/internal/domain"
	"github.com/cimillas/storefront/internal/testutil"
	"github.com/shopspring/decimal"
)

func TestProductRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewProductRepository(pool)
	txm := NewTxManager(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("LockProductForUpdate returns product or ErrProductNotFound", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertProduct(t, ctx, pool, "Keyboard", "49.90", 7)

		err := txm.WithTx(ctx, func(txCtx context.Context) error {
			p, err := repo.LockProductForUpdate(txCtx, id)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if p.ID != id || p.Name != "Keyboard" || p.Stock != 7 || !p.Price.Equal(decimal.RequireFromString("49.90")) {
				t.Fatalf("unexpected product: %+v", p)
			}

			_, err = repo.LockProductForUpdate(txCtx, id+1000)
			if !errors.Is(err, domain.ErrProductNotFound) {
				t.Fatalf("expected ErrProductNotFound, got %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("tx failed: %v", err)
		}
	})

	t.Run("locking outside a transaction is rejected", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertProduct(t, ctx, pool, "Mouse", "10", 1)

		if _, err := repo.LockProductForUpdate(ctx, id); !errors.Is(err, domain.ErrNoTransaction) {
			t.Fatalf("expected ErrNoTransaction, got %v", err)
		}
		if err := repo.DecrementStock(ctx, id, 1); !errors.Is(err, domain.ErrNoTransaction) {
			t.Fatalf("expected ErrNoTransaction, got %v", err)
		}
	})

	t.Run("DecrementStock subtracts and refuses to go negative", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertProduct(t, ctx, pool, "Monitor", "199.99", 5)

		err := txm.WithTx(ctx, func(txCtx context.Context) error {
			return repo.DecrementStock(txCtx, id, 3)
		})
		if err != nil {
			t.Fatalf("decrement: %v", err)
		}
		if got := testutil.ProductStock(t, ctx, pool, id); got != 2 {
			t.Fatalf("expected stock 2, got %d", got)
		}

		err = txm.WithTx(ctx, func(txCtx context.Context) error {
			return repo.DecrementStock(txCtx, id, 3)
		})
		if !errors.Is(err, domain.ErrInsufficientInventory) {
			t.Fatalf("expected ErrInsufficientInventory, got %v", err)
		}
		if got := testutil.ProductStock(t, ctx, pool, id); got != 2 {
			t.Fatalf("expected stock unchanged at 2, got %d", got)
		}

		err = txm.WithTx(ctx, func(txCtx context.Context) error {
			return repo.DecrementStock(txCtx, id+1000, 1)
		})
		if !errors.Is(err, domain.ErrProductNotFound) {
			t.Fatalf("expected ErrProductNotFound, got %v", err)
		}
	})

	t.Run("rollback restores stock", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertProduct(t, ctx, pool, "Cable", "3.50", 4)

		boom := errors.New("boom")
		err := txm.WithTx(ctx, func(txCtx context.Context) error {
			if err := repo.DecrementStock(txCtx, id, 4); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if got := testutil.ProductStock(t, ctx, pool, id); got != 4 {
			t.Fatalf("expected stock 4 after rollback, got %d", got)
		}
	})

	t.Run("CreateProduct, GetProduct and ListProducts", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		created, err := repo.CreateProduct(ctx, domain.Product{
			Name:        "Laptop",
			Description: "14 inch",
			Price:       decimal.RequireFromString("1000.00"),
			Stock:       3,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.ID == 0 || created.CreatedAt.IsZero() {
			t.Fatalf("expected id and timestamps, got %+v", created)
		}

		got, err := repo.GetProduct(ctx, created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Name != "Laptop" || got.Description != "14 inch" || got.Stock != 3 {
			t.Fatalf("unexpected product: %+v", got)
		}

		if _, err := repo.GetProduct(ctx, created.ID+1); !errors.Is(err, domain.ErrProductNotFound) {
			t.Fatalf("expected ErrProductNotFound, got %v", err)
		}

		testutil.InsertProduct(t, ctx, pool, "Tablet", "300", 1)
		testutil.InsertProduct(t, ctx, pool, "Phone", "500", 2)

		page, err := repo.ListProducts(ctx, 1, 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page) != 2 || page[0].Name != "Tablet" || page[1].Name != "Phone" {
			t.Fatalf("unexpected page: %+v", page)
		}
	})

	t.Run("CreateProduct maps check violations", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		_, err := repo.CreateProduct(ctx, domain.Product{Name: "Broken", Price: decimal.NewFromInt(1), Stock: -1})
		if !errors.Is(err, domain.ErrInvalidProductData) {
			t.Fatalf("expected ErrInvalidProductData, got %v", err)
		}
	})
}
