package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

const (
	opReserve = "reserve"
	opRestore = "restore"
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory     repositories.InventoryRepository
	MeterProvider metric.MeterProvider
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo     repositories.InventoryRepository
	failures metric.Int64Counter
	logger   func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	provider := deps.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	failures, err := provider.Meter("github.com/Rohansunwar5/sweety-server-sub000/internal/services").Int64Counter(
		"inventory.line.failures",
		metric.WithDescription("Stock lines that could not be reserved or restored"),
	)
	if err != nil {
		return nil, fmt.Errorf("inventory service: create failure counter: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:     deps.Inventory,
		failures: failures,
		logger:   logger,
	}, nil
}

func (s *inventoryService) AvailableStock(ctx context.Context, productID, color, size string) (int, error) {
	key, err := stockKey(productID, color, size)
	if err != nil {
		return 0, err
	}
	count, err := s.repo.Available(ctx, key)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

func (s *inventoryService) AdjustStock(ctx context.Context, adj StockAdjustment) (int, error) {
	key, err := stockKey(adj.ProductID, adj.Color, adj.Size)
	if err != nil {
		return 0, err
	}
	if adj.Delta == 0 {
		return s.AvailableStock(ctx, adj.ProductID, adj.Color, adj.Size)
	}
	count, err := s.repo.Adjust(ctx, key, adj.Delta)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

func (s *inventoryService) ReserveLines(ctx context.Context, lines []StockLine) StockResult {
	return s.applyLines(ctx, lines, opReserve, -1)
}

func (s *inventoryService) RestoreLines(ctx context.Context, lines []StockLine) StockResult {
	return s.applyLines(ctx, lines, opRestore, 1)
}

// applyLines adjusts each line on its own. A failing line does not undo the lines before it.
func (s *inventoryService) applyLines(ctx context.Context, lines []StockLine, op string, sign int) StockResult {
	var result StockResult
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		_, err := s.AdjustStock(ctx, StockAdjustment{
			ProductID: line.ProductID,
			Color:     line.Color,
			Size:      line.Size,
			Delta:     sign * line.Quantity,
		})
		if err != nil {
			result.Failures = append(result.Failures, StockFailure{Line: line, Err: err})
			s.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("operation", op),
				attribute.String("product_id", line.ProductID),
			))
			s.logger(ctx, "inventory."+op+".line.failed", map[string]any{
				"productId": line.ProductID,
				"color":     line.Color,
				"size":      line.Size,
				"quantity":  line.Quantity,
				"error":     err.Error(),
			})
			continue
		}
		result.Applied = append(result.Applied, line)
	}
	return result
}

func (s *inventoryService) mapRepositoryError(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s/%s/%s has %d available", ErrInsufficientStock,
				invErr.Key.ProductID, invErr.Key.Color, invErr.Key.Size, invErr.Available)
		case repositories.InventoryErrorStockNotFound:
			return fmt.Errorf("%w: %s", ErrVariantNotFound, invErr.Message)
		}
	}
	return mapRepositoryError(err, ErrProductNotFound, nil)
}

// Warnings converts failures into caller visible warnings.
func (r StockResult) Warnings(code string) []Warning {
	if len(r.Failures) == 0 {
		return nil
	}
	out := make([]Warning, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, Warning{
			Code:    code,
			Message: fmt.Sprintf("%s %s/%s x%d: %v", f.Line.ProductID, f.Line.Color, f.Line.Size, f.Line.Quantity, f.Err),
		})
	}
	return out
}

func stockKey(productID, color, size string) (repositories.StockKey, error) {
	productID = strings.TrimSpace(productID)
	size = strings.TrimSpace(size)
	if productID == "" || size == "" {
		return repositories.StockKey{}, fmt.Errorf("%w: product id and size are required", ErrInvalidInput)
	}
	return repositories.StockKey{ProductID: productID, Color: strings.TrimSpace(color), Size: size}, nil
}
