package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cimillas/storefront/internal/app"
	"github.com/cimillas/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

// OrderProcessor is the minimal interface needed by the order handlers.
type OrderProcessor interface {
	ProcessOrder(ctx context.Context, in app.ProcessOrderInput) (domain.Order, error)
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
}

// IdempotencyStore remembers the order produced for an Idempotency-Key.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (orderID int64, started bool, err error)
	Complete(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}

type createOrderRequest struct {
	Products []domain.LineItem `json:"products"`
}

type orderResponse struct {
	ID         int64             `json:"id"`
	Products   []domain.LineItem `json:"products"`
	TotalPrice json.Number       `json:"total_price"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func newOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:         o.ID,
		Products:   o.Items,
		TotalPrice: json.Number(o.TotalPrice.StringFixed(2)),
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

// HandleCreateOrder returns an HTTP handler that fulfils an order. With an
// Idempotency-Key and a store, a repeated key returns the first order with 200.
func HandleCreateOrder(svc OrderProcessor, idem IdempotencyStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeKind(w, r, domain.ErrValidation, "invalid request body", map[string]any{"error": err.Error()})
			return
		}

		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" || idem == nil {
			order, err := svc.ProcessOrder(r.Context(), app.ProcessOrderInput{Items: req.Products})
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			writeJSON(w, http.StatusCreated, newOrderResponse(order))
			return
		}

		existingID, started, err := idem.Begin(r.Context(), key)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		if !started {
			order, err := svc.GetOrder(r.Context(), existingID)
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, newOrderResponse(order))
			return
		}

		order, err := svc.ProcessOrder(r.Context(), app.ProcessOrderInput{Items: req.Products})
		if err != nil {
			if relErr := idem.Release(context.WithoutCancel(r.Context()), key); relErr != nil {
				logger.Warn("release idempotency key", zap.String("key", key), zap.Error(relErr))
			}
			writeError(w, r, logger, err)
			return
		}
		if err := idem.Complete(context.WithoutCancel(r.Context()), key, order.ID); err != nil {
			logger.Warn("record idempotency result", zap.String("key", key), zap.Int64("order_id", order.ID), zap.Error(err))
		}
		writeJSON(w, http.StatusCreated, newOrderResponse(order))
	}
}

func HandleGetOrder(svc OrderProcessor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "orderID")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeKind(w, r, domain.ErrValidation, "invalid order id", map[string]any{"order_id": raw})
			return
		}

		order, err := svc.GetOrder(r.Context(), id)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}
