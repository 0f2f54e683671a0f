package domain

import (
	"context"
	"io"
	"path"
	"time"
)

// Receipt kinds, one object-storage partition each.
const (
	ReceiptOrders      = "orders"
	ReceiptApprovals   = "approvals"
	ReceiptDeployments = "deployments"
)

// ReceiptKinds lists every receipt partition.
var ReceiptKinds = []string{ReceiptOrders, ReceiptApprovals, ReceiptDeployments}

// ReceiptDir returns the object prefix holding receipts of kind written on
// the UTC day of at, with a trailing slash.
func ReceiptDir(kind string, at time.Time) string {
	return path.Join("receipts", kind, at.UTC().Format(time.DateOnly)) + "/"
}

// ReceiptPath returns the object path of one receipt.
func ReceiptPath(kind string, at time.Time, id string) string {
	return ReceiptDir(kind, at) + id + ".json"
}

// Receipt describes one stored receipt document.
type Receipt struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Day          string    `json:"day"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// ReceiptReader browses the receipts written through a BlobWriter.
type ReceiptReader interface {
	// ListReceipts returns the receipts of kind for the UTC day of day,
	// newest first.
	ListReceipts(ctx context.Context, kind string, day time.Time) ([]Receipt, error)
	// OpenReceipt returns the receipt document or ErrNotFound.
	OpenReceipt(ctx context.Context, kind string, day time.Time, id string) (io.ReadCloser, error)
}
