package payment

import (
	"context"
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Filter defines filtering options for payment queries
type Filter struct {
	shared.Filter
	InvoiceID *uuid.UUID // Filter by target invoice
}

// Repository defines the interface for payment persistence
type Repository interface {
	// FindByID finds a payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByIDForAccount finds a payment by ID scoped to an account
	FindByIDForAccount(ctx context.Context, accountID, id uuid.UUID) (*Payment, error)

	// FindByAccount finds all payments of an account ordered by creation time
	FindByAccount(ctx context.Context, accountID uuid.UUID, filter Filter) ([]Payment, error)

	// FindByInvoice finds all payments against an invoice, oldest first
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)

	// FindDueForRetry finds payments whose scheduled retry time has passed
	FindDueForRetry(ctx context.Context, asOf time.Time, limit int) ([]Payment, error)

	// Save creates or updates a payment
	Save(ctx context.Context, p *Payment) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, p *Payment, expectedVersion int) error
}

// RefundRepository defines the interface for refund persistence
type RefundRepository interface {
	// FindByID finds a refund by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Refund, error)

	// FindByPayment finds all refunds issued against a payment
	FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]Refund, error)

	// Save creates or updates a refund
	Save(ctx context.Context, r *Refund) error
}
