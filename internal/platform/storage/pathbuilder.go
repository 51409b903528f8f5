package storage

import (
	"fmt"
	"strings"
)

const receiptExtension = ".json"

// ReceiptObjectKey returns the bucket key for an order receipt: orders/{orderID}/receipts/{receipt}.json.
// Both parts are used as single path segments, so separators and ".." are rejected.
func ReceiptObjectKey(orderID, receipt string) (string, error) {
	order, err := cleanSegment("order id", orderID)
	if err != nil {
		return "", err
	}
	name, err := cleanSegment("receipt", receipt)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(name, receiptExtension) {
		name += receiptExtension
	}
	return "orders/" + order + "/receipts/" + name, nil
}

func cleanSegment(label, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", label)
	case strings.ContainsAny(value, `/\`), strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s %q is not a valid path segment", label, value)
	}
	return value, nil
}
