package repositories

import "fmt"

// DiscountErrorCode enumerates the guard failures of discount usage marking.
type DiscountErrorCode string

const (
	// DiscountErrorAlreadyUsed indicates the user already appears in the usage set.
	DiscountErrorAlreadyUsed DiscountErrorCode = "discount_already_used"
	// DiscountErrorUsageLimit indicates the global usage counter reached its limit.
	DiscountErrorUsageLimit DiscountErrorCode = "discount_usage_limit"
	// DiscountErrorNotFound indicates no discount carries the code.
	DiscountErrorNotFound DiscountErrorCode = "discount_not_found"
)

// DiscountError reports why MarkUsed refused to record a usage.
type DiscountError struct {
	Code    DiscountErrorCode
	Message string
}

func (e *DiscountError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("discount: %s", e.Message)
}

func (e *DiscountError) IsNotFound() bool    { return e != nil && e.Code == DiscountErrorNotFound }
func (e *DiscountError) IsConflict() bool    { return e != nil && e.Code != DiscountErrorNotFound }
func (e *DiscountError) IsUnavailable() bool { return false }

// NewDiscountError constructs a typed discount error.
func NewDiscountError(code DiscountErrorCode, message string) *DiscountError {
	if message == "" {
		message = string(code)
	}
	return &DiscountError{Code: code, Message: message}
}
