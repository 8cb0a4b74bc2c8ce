package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cimillas/storefront/internal/clock"
	"github.com/cimillas/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryLedger must be called inside a transaction opened by the
// Transactor; row locks last until that transaction ends.
type InventoryLedger interface {
	LockProductForUpdate(ctx context.Context, id int64) (domain.Product, error)
	DecrementStock(ctx context.Context, id int64, qty int) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, items []domain.LineItem, total decimal.Decimal, status domain.OrderStatus) (domain.Order, error)
	SetOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (domain.Order, error)
}

// EventRecorder stores an event in the caller's transaction.
type EventRecorder interface {
	Insert(ctx context.Context, topic, key string, payload any) (uuid.UUID, error)
}

// OrderMetrics receives one observation per ProcessOrder call.
type OrderMetrics interface {
	ObserveOrder(result string, elapsed time.Duration)
}

type OrderService struct {
	tx        Transactor
	inventory InventoryLedger
	orders    OrderStore
	clock     clock.Clock
	logger    *zap.Logger
	events    EventRecorder
	topic     string
	metrics   OrderMetrics
}

type OrderOption func(*OrderService)

func WithOrderLogger(l *zap.Logger) OrderOption {
	return func(s *OrderService) { s.logger = l }
}

// WithOrderEvents records an OrderCompleted event on topic in the same
// transaction that decrements stock.
func WithOrderEvents(rec EventRecorder, topic string) OrderOption {
	return func(s *OrderService) {
		s.events = rec
		s.topic = topic
	}
}

func WithOrderMetrics(m OrderMetrics) OrderOption {
	return func(s *OrderService) { s.metrics = m }
}

func NewOrderService(tx Transactor, inventory InventoryLedger, orders OrderStore, clk clock.Clock, opts ...OrderOption) *OrderService {
	s := &OrderService{
		tx:        tx,
		inventory: inventory,
		orders:    orders,
		clock:     clk,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ProcessOrderInput struct {
	Items []domain.LineItem
}

// OrderCompleted is the payload published once an order has been fulfilled.
type OrderCompleted struct {
	OrderID     int64             `json:"order_id"`
	Items       []domain.LineItem `json:"products"`
	TotalPrice  decimal.Decimal   `json:"total_price"`
	Status      string            `json:"status"`
	CompletedAt time.Time         `json:"completed_at"`
}

// ProcessOrder reserves stock and records a pending order in one transaction,
// then completes the order and decrements stock in a second one. A failure in
// the first phase leaves no trace. A failure in the second phase leaves stock
// untouched and the order pending.
func (s *OrderService) ProcessOrder(ctx context.Context, in ProcessOrderInput) (order domain.Order, err error) {
	start := s.clock.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOrder(resultLabel(err), s.clock.Now().Sub(start))
		}
	}()

	if err := domain.ValidateLineItems(in.Items); err != nil {
		return domain.Order{}, err
	}
	reservations := domain.Reservations(in.Items)

	pending, err := s.reserve(ctx, in.Items, reservations)
	if err != nil {
		s.logger.Warn("order reservation failed", zap.Error(err))
		return domain.Order{}, s.surface(err, "An error occurred while creating the order")
	}
	s.logger.Debug("order reserved",
		zap.Int64("order_id", pending.ID),
		zap.String("total_price", pending.TotalPrice.String()),
	)

	completed, err := s.complete(ctx, pending.ID, reservations)
	if err != nil {
		s.logger.Warn("order completion failed", zap.Int64("order_id", pending.ID), zap.Error(err))
		return domain.Order{}, s.surface(err, "An error occurred while completing the order")
	}
	s.logger.Info("order completed",
		zap.Int64("order_id", completed.ID),
		zap.String("total_price", completed.TotalPrice.String()),
	)
	return completed, nil
}

func (s *OrderService) reserve(ctx context.Context, items []domain.LineItem, reservations []domain.Reservation) (domain.Order, error) {
	var order domain.Order
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		prices := make(map[int64]decimal.Decimal, len(reservations))
		for _, r := range reservations {
			p, err := s.lockAndCheck(txCtx, r)
			if err != nil {
				return err
			}
			prices[p.ID] = p.Price
		}

		var err error
		order, err = s.orders.CreateOrder(txCtx, items, domain.TotalPrice(items, prices), domain.OrderStatusPending)
		return err
	})
	return order, err
}

func (s *OrderService) complete(ctx context.Context, orderID int64, reservations []domain.Reservation) (domain.Order, error) {
	var order domain.Order
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.orders.GetOrderForUpdate(txCtx, orderID); err != nil {
			return err
		}
		if err := s.orders.SetOrderStatus(txCtx, orderID, domain.OrderStatusCompleted); err != nil {
			return err
		}

		current, err := s.orders.GetOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if current.Status != domain.OrderStatusCompleted {
			return domain.NewError(domain.ErrCannotUpdateStock, "Cannot update stock for an order that is not completed", map[string]any{
				"order_id": orderID,
				"status":   string(current.Status),
			})
		}

		for _, r := range reservations {
			if _, err := s.lockAndCheck(txCtx, r); err != nil {
				return err
			}
			if err := s.inventory.DecrementStock(txCtx, r.ProductID, r.Quantity); err != nil {
				return err
			}
			s.logger.Debug("stock updated",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", r.ProductID),
				zap.Int("quantity", r.Quantity),
			)
		}

		if s.events != nil {
			payload := OrderCompleted{
				OrderID:     current.ID,
				Items:       current.Items,
				TotalPrice:  current.TotalPrice,
				Status:      string(current.Status),
				CompletedAt: s.clock.Now(),
			}
			if _, err := s.events.Insert(txCtx, s.topic, strconv.FormatInt(current.ID, 10), payload); err != nil {
				return err
			}
		}

		order = current
		return nil
	})
	return order, err
}

func (s *OrderService) lockAndCheck(ctx context.Context, r domain.Reservation) (domain.Product, error) {
	p, err := s.inventory.LockProductForUpdate(ctx, r.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.Product{}, domain.NewError(domain.ErrProductNotFound, "Product not found", map[string]any{
				"product_id": r.ProductID,
			})
		}
		return domain.Product{}, err
	}
	if !p.CanReserve(r.Quantity) {
		return domain.Product{}, domain.NewError(domain.ErrInsufficientInventory, "Insufficient stock for order", map[string]any{
			"product_id":      p.ID,
			"product_name":    p.Name,
			"available_stock": p.Stock,
			"requested_stock": r.Quantity,
		})
	}
	return p, nil
}

// surface returns domain failures unchanged and wraps everything else as a
// DatabaseError.
func (s *OrderService) surface(err error, message string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	if domain.IsDomainKind(err) {
		return domain.NewError(domain.KindOf(err), "", nil)
	}
	return domain.NewDatabaseError(message, err)
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	if id <= 0 {
		return domain.Order{}, domain.NewError(domain.ErrInvalidOrderData, fmt.Sprintf("invalid order id %d", id), map[string]any{"order_id": id})
	}
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, domain.NewError(domain.ErrOrderNotFound, "Order not found", map[string]any{"order_id": id})
		}
		return domain.Order{}, s.surface(err, "An error occurred while fetching the order")
	}
	return order, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "completed"
	}
	switch domain.KindOf(err) {
	case domain.ErrInvalidOrderData:
		return "invalid_order_data"
	case domain.ErrProductNotFound:
		return "product_not_found"
	case domain.ErrInsufficientInventory:
		return "insufficient_inventory"
	case domain.ErrCannotUpdateStock:
		return "cannot_update_stock"
	case domain.ErrDatabase:
		return "database_error"
	}
	return "unknown_error"
}
