package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

func TestInventoryAdjustNeverGoesNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct("p1", 1000, map[string]int{"M": 2})

	count, err := f.inventory.AdjustStock(ctx, StockAdjustment{ProductID: "p1", Color: "Red", Size: "M", Delta: -2})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = f.inventory.AdjustStock(ctx, StockAdjustment{ProductID: "p1", Color: "Red", Size: "M", Delta: -1})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 0, f.stock(t, "p1", "M"), "a refused adjustment is not clamped")

	count, err = f.inventory.AdjustStock(ctx, StockAdjustment{ProductID: "p1", Size: "M", Delta: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, count, "blank color addresses the first variant")
}

func TestInventoryAvailableStockErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct("p1", 1000, map[string]int{"M": 2})

	_, err := f.inventory.AvailableStock(ctx, "p1", "Blue", "M")
	assert.ErrorIs(t, err, ErrVariantNotFound)

	_, err = f.inventory.AvailableStock(ctx, "", "Red", "M")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInventoryLinesAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct("p1", 1000, map[string]int{"M": 5})
	f.seedProduct("p2", 1000, map[string]int{"S": 1})

	var logged []string
	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory:     f.store.Inventory(),
		MeterProvider: noop.NewMeterProvider(),
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	require.NoError(t, err)

	lines := []StockLine{
		{ProductID: "p1", Color: "Red", Size: "M", Quantity: 2},
		{ProductID: "p2", Color: "Red", Size: "S", Quantity: 2},
		{ProductID: "p1", Color: "Red", Size: "M", Quantity: 0},
	}
	result := svc.ReserveLines(ctx, lines)
	require.Len(t, result.Applied, 1)
	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, ErrInsufficientStock)
	assert.Equal(t, 3, f.stock(t, "p1", "M"), "earlier lines stay reserved")
	assert.Equal(t, []string{"inventory.reserve.line.failed"}, logged)

	warnings := result.Warnings(warnStockReserve)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "p2")

	restored := svc.RestoreLines(ctx, result.Applied)
	assert.Empty(t, restored.Failures)
	assert.Equal(t, 5, f.stock(t, "p1", "M"))
}

func TestInventoryMapsUnexpectedErrorsToInternal(t *testing.T) {
	f := newFixture(t)
	f.seedProduct("p1", 1000, map[string]int{"M": 5})
	f.store.FailAdjust(func(repositories.StockKey, int) error { return errors.New("deadline exceeded") })

	_, err := f.inventory.AdjustStock(context.Background(), StockAdjustment{ProductID: "p1", Size: "M", Delta: -1})
	assert.ErrorIs(t, err, ErrInternal)
}

func TestCatalogAvailableSizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct("p1", 1000, map[string]int{"S": 0, "M": 2, "L": 1})

	sizes, err := f.catalog.AvailableSizes(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, sizes, 2)
	assert.Equal(t, "M", sizes[0].Size)
	assert.Equal(t, "L", sizes[1].Size)

	products, err := f.catalog.GetProducts(ctx, []string{"p1", "missing", "p1", " "})
	require.NoError(t, err)
	assert.Len(t, products, 1)

	_, err = f.catalog.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)
}
