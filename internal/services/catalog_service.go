package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

// CatalogServiceDeps bundles collaborators for the catalog service.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
}

type catalogService struct {
	products repositories.ProductRepository
}

// NewCatalogService constructs a read-only catalog lookup.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	return &catalogService{products: deps.Products}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, mapRepositoryError(err, ErrProductNotFound, nil)
	}
	return product, nil
}

// GetProducts omits ids that do not resolve.
func (s *catalogService) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	return products, nil
}

func (s *catalogService) AvailableSizes(ctx context.Context, productID, color string) ([]domain.SizeStock, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	variant, ok := product.Color(strings.TrimSpace(color))
	if !ok {
		return nil, fmt.Errorf("%w: color %q", ErrVariantNotFound, color)
	}
	sizes := make([]domain.SizeStock, 0, len(variant.Sizes))
	for _, size := range variant.Sizes {
		if size.Stock > 0 {
			sizes = append(sizes, size)
		}
	}
	return sizes, nil
}
