package app

import (
	"context"
	"errors"
	"strings"

	"github.com/cimillas/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultProductLimit = 10
	MaxProductLimit     = 100
)

type ProductRepository interface {
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, error)
}

type ProductService struct {
	repo   ProductRepository
	logger *zap.Logger
}

func NewProductService(repo ProductRepository, logger *zap.Logger) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		repo:   repo,
		logger: logger,
	}
}

type CreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

func (s *ProductService) CreateProduct(ctx context.Context, in CreateProductInput) (domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Product{}, domain.NewError(domain.ErrInvalidProductData, "Product name is required", map[string]any{"field": "name"})
	}
	if in.Price.IsNegative() {
		return domain.Product{}, domain.NewError(domain.ErrInvalidProductData, "Product price must not be negative", map[string]any{
			"field": "price",
			"price": in.Price.String(),
		})
	}
	if in.Stock < 0 {
		return domain.Product{}, domain.NewError(domain.ErrInvalidProductData, "Product stock must not be negative", map[string]any{
			"field": "stock",
			"stock": in.Stock,
		})
	}

	p, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:        name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
	})
	if err != nil {
		if domain.IsDomainKind(err) {
			return domain.Product{}, domain.NewError(domain.KindOf(err), "", nil)
		}
		s.logger.Error("create product failed", zap.Error(err))
		return domain.Product{}, domain.NewDatabaseError("An error occurred while creating the product", err)
	}
	s.logger.Info("product created", zap.Int64("product_id", p.ID), zap.Int("stock", p.Stock))
	return p, nil
}

type ListProductsInput struct {
	Skip  int
	Limit int
}

// ListProducts pages through the catalogue in id order. A zero limit selects
// DefaultProductLimit.
func (s *ProductService) ListProducts(ctx context.Context, in ListProductsInput) ([]domain.Product, error) {
	if in.Skip < 0 {
		return nil, domain.NewError(domain.ErrValidation, "skip must not be negative", map[string]any{"skip": in.Skip})
	}
	limit := in.Limit
	if limit == 0 {
		limit = DefaultProductLimit
	}
	if limit < 1 || limit > MaxProductLimit {
		return nil, domain.NewError(domain.ErrValidation, "limit must be between 1 and 100", map[string]any{"limit": in.Limit})
	}

	products, err := s.repo.ListProducts(ctx, in.Skip, limit)
	if err != nil {
		s.logger.Error("list products failed", zap.Error(err))
		return nil, domain.NewDatabaseError("An error occurred while listing products", err)
	}
	return products, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.Product{}, domain.NewError(domain.ErrProductNotFound, "Product not found", map[string]any{"product_id": id})
		}
		return domain.Product{}, domain.NewDatabaseError("An error occurred while fetching the product", err)
	}
	return p, nil
}
