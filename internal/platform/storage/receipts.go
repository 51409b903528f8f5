package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
)

const receiptContentType = "application/json"

// ObjectWriter persists a finished object. The Cloud Storage implementation is gcsObjectWriter.
type ObjectWriter interface {
	WriteObject(ctx context.Context, bucket, object string, data []byte, attrs ObjectAttrs) error
}

// ObjectAttrs are applied to the written object.
type ObjectAttrs struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

type gcsObjectWriter struct {
	client *gcs.Client
}

// NewGCSObjectWriter adapts a Cloud Storage client to ObjectWriter.
func NewGCSObjectWriter(client *gcs.Client) (ObjectWriter, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	return &gcsObjectWriter{client: client}, nil
}

func (w *gcsObjectWriter) WriteObject(ctx context.Context, bucket, object string, data []byte, attrs ObjectAttrs) error {
	writer := w.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = attrs.ContentType
	writer.CacheControl = attrs.CacheControl
	writer.Metadata = attrs.Metadata
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("storage: close %s: %w", object, err)
	}
	return nil
}

// ReceiptArchiver writes a JSON receipt for captured payments into the receipts bucket.
type ReceiptArchiver struct {
	bucket string
	writer ObjectWriter
	clock  func() time.Time
}

// NewReceiptArchiver constructs an archiver for bucket.
func NewReceiptArchiver(bucket string, writer ObjectWriter, clock func() time.Time) (*ReceiptArchiver, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("receipt archiver: bucket is required")
	}
	if writer == nil {
		return nil, errors.New("receipt archiver: writer is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &ReceiptArchiver{bucket: bucket, writer: writer, clock: clock}, nil
}

type receiptDocument struct {
	Receipt        string         `json:"receipt"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber"`
	UserID         string         `json:"userId"`
	PaymentID      string         `json:"paymentId"`
	GatewayID      string         `json:"gatewayPaymentId,omitempty"`
	Method         string         `json:"method"`
	Currency       string         `json:"currency"`
	Lines          []receiptLine  `json:"lines"`
	Totals         receiptTotals  `json:"totals"`
	BillingAddress domain.Address `json:"billingAddress"`
	CapturedAt     *time.Time     `json:"capturedAt,omitempty"`
	IssuedAt       time.Time      `json:"issuedAt"`
}

type receiptLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

type receiptTotals struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// ArchiveReceipt stores the receipt once. Re-archiving the same receipt keeps the first copy.
func (a *ReceiptArchiver) ArchiveReceipt(ctx context.Context, order domain.Order, payment domain.Payment) (string, error) {
	if a == nil || a.writer == nil {
		return "", errors.New("receipt archiver: not initialised")
	}
	receipt := strings.TrimSpace(payment.Receipt)
	if receipt == "" {
		receipt = payment.ID
	}
	object, err := ReceiptObjectKey(order.ID, receipt)
	if err != nil {
		return "", err
	}

	lines := make([]receiptLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, receiptLine{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Color:     item.Color,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}
	doc := receiptDocument{
		Receipt:        receipt,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PaymentID:      payment.ID,
		GatewayID:      payment.GatewayPaymentID,
		Method:         order.PaymentMethod,
		Currency:       order.Currency,
		Lines:          lines,
		Totals:         receiptTotals(order.Totals),
		BillingAddress: order.BillingAddress,
		CapturedAt:     payment.CapturedAt,
		IssuedAt:       a.clock().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("receipt archiver: marshal: %w", err)
	}

	attrs := ObjectAttrs{
		ContentType:  receiptContentType,
		CacheControl: "private, max-age=0",
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"paymentId":   payment.ID,
		},
	}
	if err := a.writer.WriteObject(ctx, a.bucket, object, data, attrs); err != nil {
		return "", err
	}
	return object, nil
}
