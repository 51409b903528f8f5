package firestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	pfirestore "github.com/Rohansunwar5/sweety-server-sub000/internal/platform/firestore"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/pagination"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

const discountsCollection = "discounts"

// DiscountRepository persists coupons and vouchers. Codes are unique across both kinds.
type DiscountRepository struct {
	provider  *pfirestore.Provider
	discounts *pfirestore.Collection[discountDocument]
}

// NewDiscountRepository constructs a Firestore backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	return &DiscountRepository{
		provider:  provider,
		discounts: pfirestore.NewCollection[discountDocument](provider, discountsCollection),
	}, nil
}

// Insert creates the discount, failing with a conflict when the code is already taken.
func (r *DiscountRepository) Insert(ctx context.Context, discount domain.Discount) error {
	return r.write(ctx, "discounts.insert", discount, true)
}

// Update replaces the discount, failing with a conflict when another discount owns the code.
func (r *DiscountRepository) Update(ctx context.Context, discount domain.Discount) error {
	return r.write(ctx, "discounts.update", discount, false)
}

func (r *DiscountRepository) write(ctx context.Context, op string, discount domain.Discount, create bool) error {
	ref, err := r.discounts.Doc(ctx, discount.ID)
	if err != nil {
		return err
	}
	coll, err := r.discounts.Ref(ctx)
	if err != nil {
		return err
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(coll.Where("code", "==", discount.Code).Limit(2)).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			if snap.Ref.ID != discount.ID {
				return pfirestore.Conflict(op, fmt.Errorf("code %s already exists", discount.Code))
			}
		}
		doc := newDiscountDocument(discount)
		if create {
			return tx.Create(ref, doc)
		}
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, doc)
	})
	return pfirestore.WrapError(op, err)
}

func (r *DiscountRepository) Delete(ctx context.Context, discountID string) error {
	return r.discounts.Delete(ctx, discountID)
}

func (r *DiscountRepository) FindByID(ctx context.Context, discountID string) (domain.Discount, error) {
	doc, err := r.discounts.Get(ctx, discountID)
	if err != nil {
		return domain.Discount{}, err
	}
	return doc.toDomain(discountID), nil
}

func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (domain.Discount, error) {
	docs, err := r.discounts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.Discount{}, err
	}
	if len(docs) == 0 {
		return domain.Discount{}, pfirestore.NotFound("discounts.findByCode", fmt.Errorf("code %s not found", code))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *DiscountRepository) List(ctx context.Context, filter repositories.DiscountListFilter) (domain.CursorPage[domain.Discount], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Discount]{}, err
	}
	size := pagination.Normalize(filter.Pagination.PageSize)

	docs, err := r.discounts.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Kind != "" {
			q = q.Where("kind", "==", string(filter.Kind))
		}
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Discount]{}, err
	}

	page := domain.CursorPage[domain.Discount]{Items: make([]domain.Discount, 0, min(len(docs), size))}
	for i, doc := range docs {
		if i == size {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// MarkUsed checks and records usage of code by userID in a single transaction.
func (r *DiscountRepository) MarkUsed(ctx context.Context, code string, userID string, now time.Time) (domain.Discount, error) {
	coll, err := r.discounts.Ref(ctx)
	if err != nil {
		return domain.Discount{}, err
	}
	code = strings.TrimSpace(code)

	var updated domain.Discount
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(coll.Where("code", "==", code).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			return repositories.NewDiscountError(repositories.DiscountErrorNotFound, fmt.Sprintf("code %s not found", code))
		}
		doc, err := pfirestore.Decode[discountDocument](snaps[0])
		if err != nil {
			return err
		}
		if slices.Contains(doc.UsedBy, userID) {
			return repositories.NewDiscountError(repositories.DiscountErrorAlreadyUsed, fmt.Sprintf("code %s already used by user", code))
		}
		if doc.UsageLimit != nil && doc.UsedCount >= *doc.UsageLimit {
			return repositories.NewDiscountError(repositories.DiscountErrorUsageLimit, fmt.Sprintf("code %s reached its usage limit", code))
		}

		doc.UsedCount++
		doc.UsedBy = append(doc.UsedBy, userID)
		doc.UpdatedAt = now
		updated = doc.toDomain(snaps[0].Ref.ID)
		return tx.Update(snaps[0].Ref, []firestore.Update{
			{Path: "usedCount", Value: firestore.Increment(1)},
			{Path: "usedBy", Value: firestore.ArrayUnion(userID)},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		var discountErr *repositories.DiscountError
		if errors.As(err, &discountErr) {
			return domain.Discount{}, discountErr
		}
		return domain.Discount{}, pfirestore.WrapError("discounts.markUsed", err)
	}
	return updated, nil
}

// ReleaseUsage removes userID from the code's usage record and gives back one use.
func (r *DiscountRepository) ReleaseUsage(ctx context.Context, code string, userID string, now time.Time) error {
	coll, err := r.discounts.Ref(ctx)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(coll.Where("code", "==", code).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			return repositories.NewDiscountError(repositories.DiscountErrorNotFound, fmt.Sprintf("code %s not found", code))
		}
		doc, err := pfirestore.Decode[discountDocument](snaps[0])
		if err != nil {
			return err
		}
		if !slices.Contains(doc.UsedBy, userID) {
			return nil
		}
		updates := []firestore.Update{
			{Path: "usedBy", Value: firestore.ArrayRemove(userID)},
			{Path: "updatedAt", Value: now},
		}
		if doc.UsedCount > 0 {
			updates = append(updates, firestore.Update{Path: "usedCount", Value: firestore.Increment(-1)})
		}
		return tx.Update(snaps[0].Ref, updates)
	})
	if err != nil {
		var discountErr *repositories.DiscountError
		if errors.As(err, &discountErr) {
			return discountErr
		}
		return pfirestore.WrapError("discounts.releaseUsage", err)
	}
	return nil
}

var _ repositories.DiscountRepository = (*DiscountRepository)(nil)
