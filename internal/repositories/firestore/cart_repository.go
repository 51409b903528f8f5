package firestore

import (
	"context"
	"errors"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	pfirestore "github.com/Rohansunwar5/sweety-server-sub000/internal/platform/firestore"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

const cartsCollection = "carts"

// CartRepository stores one document per owner, keyed by CartOwner.Key.
type CartRepository struct {
	carts *pfirestore.Collection[cartDocument]
}

// NewCartRepository constructs a Firestore backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{carts: pfirestore.NewCollection[cartDocument](provider, cartsCollection)}, nil
}

func (r *CartRepository) Get(ctx context.Context, owner domain.CartOwner) (domain.Cart, error) {
	doc, err := r.carts.Get(ctx, owner.Key())
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.toDomain(), nil
}

func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if err := r.carts.Set(ctx, cart.Owner.Key(), newCartDocument(cart)); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (r *CartRepository) Delete(ctx context.Context, owner domain.CartOwner) error {
	return r.carts.Delete(ctx, owner.Key())
}

var _ repositories.CartRepository = (*CartRepository)(nil)
