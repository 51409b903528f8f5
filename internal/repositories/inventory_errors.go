package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for stock operations.
type InventoryErrorCode string

const (
	// InventoryErrorInsufficientStock indicates the adjustment would drive the count below zero.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorStockNotFound indicates the product has no such color or size.
	InventoryErrorStockNotFound InventoryErrorCode = "inventory_stock_not_found"
)

// InventoryError wraps stock failures with machine readable codes and the affected key.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	Key       StockKey
	Available int
	Message   string
	Err       error
}

func (e *InventoryError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op == "":
		return fmt.Sprintf("%s (%s/%s/%s)", e.Message, e.Key.ProductID, e.Key.Color, e.Key.Size)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the stock record is missing.
func (e *InventoryError) IsNotFound() bool {
	return e != nil && e.Code == InventoryErrorStockNotFound
}

// IsConflict reports whether the adjustment was refused by the stock guard.
func (e *InventoryError) IsConflict() bool {
	return e != nil && e.Code == InventoryErrorInsufficientStock
}

// IsUnavailable is always false; transport failures are reported through the wrapped error.
func (e *InventoryError) IsUnavailable() bool {
	return false
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, key StockKey, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Key:     key,
		Message: message,
		Err:     err,
	}
}
