package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	pfirestore "github.com/Rohansunwar5/sweety-server-sub000/internal/platform/firestore"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

const productsCollection = "products"

// ProductRepository reads catalog entries stored in the products collection.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDocument]
}

// NewProductRepository constructs a Firestore backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
	}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	doc, err := r.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(id), nil
}

// FindByIDs batch loads products. Missing IDs are absent from the result rather than an error.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(productIDs))
	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, client.Collection(productsCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.getAll", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		doc, err := pfirestore.Decode[productDocument](snap)
		if err != nil {
			return nil, err
		}
		out[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return out, nil
}

// Save upserts a product. Used by seeding and tests; the storefront API never writes products.
func (r *ProductRepository) Save(ctx context.Context, product domain.Product) error {
	return r.products.Set(ctx, product.ID, newProductDocument(product))
}

// InventoryRepository manipulates the size level stock embedded in product documents.
type InventoryRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDocument]
	clock    func() time.Time
}

// NewInventoryRepository constructs a Firestore backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{
		provider: provider,
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
		clock:    time.Now,
	}, nil
}

func (r *InventoryRepository) Available(ctx context.Context, key repositories.StockKey) (int, error) {
	doc, err := r.products.Get(ctx, key.ProductID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return 0, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, key, "product not found", err)
		}
		return 0, err
	}
	ci, si, ok := doc.locate(key.Color, key.Size)
	if !ok {
		return 0, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, key, fmt.Sprintf("no stock entry for color %q size %q", key.Color, key.Size), nil)
	}
	return doc.Colors[ci].Sizes[si].Stock, nil
}

// Adjust applies delta inside a transaction and refuses any result below zero.
func (r *InventoryRepository) Adjust(ctx context.Context, key repositories.StockKey, delta int) (int, error) {
	ref, err := r.products.Doc(ctx, key.ProductID)
	if err != nil {
		return 0, err
	}

	var result int
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, key, "product not found", err)
			}
			return err
		}
		doc, err := pfirestore.Decode[productDocument](snap)
		if err != nil {
			return err
		}
		ci, si, ok := doc.locate(key.Color, key.Size)
		if !ok {
			return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, key, fmt.Sprintf("no stock entry for color %q size %q", key.Color, key.Size), nil)
		}

		current := doc.Colors[ci].Sizes[si].Stock
		next := current + delta
		if next < 0 {
			invErr := repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, key, fmt.Sprintf("only %d left, %d requested", current, -delta), nil)
			invErr.Available = current
			return invErr
		}
		doc.Colors[ci].Sizes[si].Stock = next
		result = next
		return tx.Update(ref, []firestore.Update{
			{Path: "colors", Value: doc.Colors},
			{Path: "updatedAt", Value: r.clock().UTC()},
		})
	})
	if err != nil {
		var invErr *repositories.InventoryError
		if errors.As(err, &invErr) {
			invErr.Op = "inventory.adjust"
			return 0, invErr
		}
		return 0, pfirestore.WrapError("inventory.adjust", err)
	}
	return result, nil
}

var (
	_ repositories.ProductRepository   = (*ProductRepository)(nil)
	_ repositories.InventoryRepository = (*InventoryRepository)(nil)
)
