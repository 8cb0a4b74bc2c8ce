package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cimillas/storefront/internal/app"
	"github.com/cimillas/storefront/internal/clock"
	"github.com/cimillas/storefront/internal/storage/postgres"
	"github.com/cimillas/storefront/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

func newIntegrationServer(t *testing.T, pool *pgxpool.Pool) *httptest.Server {
	t.Helper()
	txm := postgres.NewTxManager(pool)
	products := postgres.NewProductRepository(pool)
	orders := app.NewOrderService(txm, products, postgres.NewOrderRepository(pool), clock.NewSystem(),
		app.WithOrderEvents(postgres.NewOutboxRepository(pool), "orders.completed"),
	)
	srv := httptest.NewServer(NewRouter(RouterDeps{
		Orders:       orders,
		Products:     app.NewProductService(products, nil),
		ProductToken: testProductToken,
		OrderToken:   testOrderToken,
		DB:           pool,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postOrder(t *testing.T, srv *httptest.Server, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/orders", strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, testOrderToken)

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Errorf("post order: %v", err)
		return 0, nil
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Errorf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestOrdersIntegration(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	srv := newIntegrationServer(t, pool)

	t.Run("completes an order and records the event", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		widget := testutil.InsertProduct(t, ctx, pool, "Widget", "100.00", 10)
		gadget := testutil.InsertProduct(t, ctx, pool, "Gadget", "25.50", 4)

		status, body := postOrder(t, srv, fmt.Sprintf(
			`{"products":[{"product_id":%d,"quantity":2},{"product_id":%d,"quantity":3}]}`, gadget, widget))
		if status != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %v", status, body)
		}
		if body["status"] != "completed" || body["total_price"] != 351.0 {
			t.Fatalf("unexpected order: %v", body)
		}
		if got := testutil.ProductStock(t, ctx, pool, widget); got != 7 {
			t.Fatalf("expected widget stock 7, got %d", got)
		}
		if got := testutil.ProductStock(t, ctx, pool, gadget); got != 2 {
			t.Fatalf("expected gadget stock 2, got %d", got)
		}
		if got := testutil.CountRows(t, ctx, pool, "outbox"); got != 1 {
			t.Fatalf("expected 1 outbox row, got %d", got)
		}
	})

	t.Run("unknown product leaves nothing behind", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		widget := testutil.InsertProduct(t, ctx, pool, "Widget", "100.00", 10)

		status, body := postOrder(t, srv, fmt.Sprintf(
			`{"products":[{"product_id":%d,"quantity":1},{"product_id":999,"quantity":1}]}`, widget))
		if status != http.StatusNotFound || body["code"] != 4000.0 {
			t.Fatalf("expected product not found, got %d: %v", status, body)
		}
		if got := testutil.CountRows(t, ctx, pool, "orders"); got != 0 {
			t.Fatalf("expected no orders, got %d", got)
		}
		if got := testutil.ProductStock(t, ctx, pool, widget); got != 10 {
			t.Fatalf("stock changed: %d", got)
		}
	})

	t.Run("insufficient stock is rejected", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		widget := testutil.InsertProduct(t, ctx, pool, "Widget", "100.00", 1)

		status, body := postOrder(t, srv, fmt.Sprintf(`{"products":[{"product_id":%d,"quantity":2}]}`, widget))
		if status != http.StatusConflict || body["code"] != 5002.0 {
			t.Fatalf("expected insufficient inventory, got %d: %v", status, body)
		}
		details, _ := body["details"].(map[string]any)
		if details["available_stock"] != 1.0 || details["requested_stock"] != 2.0 {
			t.Fatalf("unexpected details: %v", details)
		}
		if got := testutil.CountRows(t, ctx, pool, "orders"); got != 0 {
			t.Fatalf("expected no orders, got %d", got)
		}
	})

	t.Run("concurrent orders never oversell", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		const stock, buyers = 5, 20
		widget := testutil.InsertProduct(t, ctx, pool, "Widget", "10.00", stock)
		gadget := testutil.InsertProduct(t, ctx, pool, "Gadget", "1.00", 100)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			completed int
			rejected  int
		)
		for i := 0; i < buyers; i++ {
			// Alternate the request order so both lock orderings are exercised.
			body := fmt.Sprintf(`{"products":[{"product_id":%d,"quantity":1},{"product_id":%d,"quantity":1}]}`, widget, gadget)
			if i%2 == 1 {
				body = fmt.Sprintf(`{"products":[{"product_id":%d,"quantity":1},{"product_id":%d,"quantity":1}]}`, gadget, widget)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				status, _ := postOrder(t, srv, body)
				mu.Lock()
				defer mu.Unlock()
				switch status {
				case http.StatusCreated:
					completed++
				case http.StatusConflict:
					rejected++
				}
			}()
		}
		wg.Wait()

		if completed != stock || rejected != buyers-stock {
			t.Fatalf("expected %d completed and %d rejected, got %d and %d", stock, buyers-stock, completed, rejected)
		}
		if got := testutil.ProductStock(t, ctx, pool, widget); got != 0 {
			t.Fatalf("expected widget stock 0, got %d", got)
		}
		if got := testutil.ProductStock(t, ctx, pool, gadget); got != 100-stock {
			t.Fatalf("expected gadget stock %d, got %d", 100-stock, got)
		}
		var completedRows int
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE status = 'completed'`).Scan(&completedRows); err != nil {
			t.Fatalf("count completed orders: %v", err)
		}
		if completedRows != stock {
			t.Fatalf("expected %d completed orders, got %d", stock, completedRows)
		}
	})

	t.Run("ready reports the database", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/ready")
		if err != nil {
			t.Fatalf("get ready: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	})
}
