package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Wallet    string         `json:"wallet,omitempty"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log of onboarding and order
// events.
type AuditStore interface {
	Log(ctx context.Context, event, wallet string, detail map[string]any) error
	List(ctx context.Context, wallet string, opts ListOpts) ([]AuditEntry, error)
}
