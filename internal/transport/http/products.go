package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cimillas/storefront/internal/app"
	"github.com/cimillas/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductCatalog is the minimal interface needed by the product handlers.
type ProductCatalog interface {
	CreateProduct(ctx context.Context, in app.CreateProductInput) (domain.Product, error)
	ListProducts(ctx context.Context, in app.ListProductsInput) ([]domain.Product, error)
}

type createProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type productResponse struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	Stock       int         `json:"stock"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type listProductsResponse struct {
	Products []productResponse `json:"products"`
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       json.Number(p.Price.StringFixed(2)),
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func HandleListProducts(svc ProductCatalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, ok := queryInt(r, "skip", 0)
		if !ok {
			writeKind(w, r, domain.ErrValidation, "skip must be an integer", map[string]any{"skip": r.URL.Query().Get("skip")})
			return
		}
		limit, ok := queryInt(r, "limit", app.DefaultProductLimit)
		if !ok {
			writeKind(w, r, domain.ErrValidation, "limit must be an integer", map[string]any{"limit": r.URL.Query().Get("limit")})
			return
		}

		products, err := svc.ListProducts(r.Context(), app.ListProductsInput{Skip: skip, Limit: limit})
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		resp := listProductsResponse{Products: make([]productResponse, 0, len(products))}
		for _, p := range products {
			resp.Products = append(resp.Products, newProductResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func HandleCreateProduct(svc ProductCatalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProductRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeKind(w, r, domain.ErrValidation, "invalid request body", map[string]any{"error": err.Error()})
			return
		}

		p, err := svc.CreateProduct(r.Context(), app.CreateProductInput{
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Stock:       req.Stock,
		})
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, newProductResponse(p))
	}
}

func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
