package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cimillas/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeTxKey struct{}

type recordedEvent struct {
	Topic   string
	Key     string
	Payload any
}

// memStore is an in-memory inventory, order store and outbox. Transactions
// are serialized and roll back every map on error.
type memStore struct {
	txMu sync.Mutex

	mu          sync.Mutex
	products    map[int64]domain.Product
	orders      map[int64]domain.Order
	events      []recordedEvent
	nextOrderID int64
	locks       []int64

	staleStatus  bool
	decrementErr error
	createErr    error
	afterCreate  func(s *memStore)
}

func newMemStore(products ...domain.Product) *memStore {
	s := &memStore{
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]domain.Order),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func product(id int64, name, price string, stock int) domain.Product {
	return domain.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), Stock: stock}
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	products := make(map[int64]domain.Product, len(s.products))
	for k, v := range s.products {
		products[k] = v
	}
	orders := make(map[int64]domain.Order, len(s.orders))
	for k, v := range s.orders {
		orders[k] = v
	}
	events := append([]recordedEvent(nil), s.events...)
	nextID := s.nextOrderID
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.products, s.orders, s.events, s.nextOrderID = products, orders, events, nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	return ctx.Value(fakeTxKey{}) != nil
}

func (s *memStore) LockProductForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	if !inTx(ctx) {
		return domain.Product{}, domain.ErrNoTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = append(s.locks, id)
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *memStore) DecrementStock(ctx context.Context, id int64, qty int) error {
	if !inTx(ctx) {
		return domain.ErrNoTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decrementErr != nil {
		return s.decrementErr
	}
	p, ok := s.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Stock < qty {
		return domain.ErrInsufficientInventory
	}
	p.Stock -= qty
	s.products[id] = p
	return nil
}

func (s *memStore) CreateOrder(_ context.Context, items []domain.LineItem, total decimal.Decimal, status domain.OrderStatus) (domain.Order, error) {
	s.mu.Lock()
	if s.createErr != nil {
		s.mu.Unlock()
		return domain.Order{}, s.createErr
	}
	s.nextOrderID++
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	o := domain.Order{
		ID:         s.nextOrderID,
		Items:      append([]domain.LineItem(nil), items...),
		TotalPrice: total,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.orders[o.ID] = o
	hook := s.afterCreate
	s.mu.Unlock()

	if hook != nil {
		hook(s)
	}
	return o, nil
}

func (s *memStore) SetOrderStatus(_ context.Context, id int64, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if s.staleStatus {
		return nil
	}
	o.Status = status
	s.orders[id] = o
	return nil
}

func (s *memStore) GetOrder(_ context.Context, id int64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s *memStore) GetOrderForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	if !inTx(ctx) {
		return domain.Order{}, domain.ErrNoTransaction
	}
	return s.GetOrder(ctx, id)
}

func (s *memStore) Insert(_ context.Context, topic, key string, payload any) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{Topic: topic, Key: key, Payload: payload})
	return uuid.New(), nil
}

func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) ordersByStatus() map[domain.OrderStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.OrderStatus]int)
	for _, o := range s.orders {
		out[o.Status]++
	}
	return out
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memStore) setStock(id int64, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.Stock = stock
	s.products[id] = p
}

func (s *memStore) lockLog() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.locks...)
}

type recordingMetrics struct {
	mu      sync.Mutex
	results []string
}

func (m *recordingMetrics) ObserveOrder(result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

var errConnReset = errors.New("connection reset by peer")
