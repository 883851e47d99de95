package invoice

import (
	"context"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Filter defines filtering options for invoice queries
type Filter struct {
	shared.Filter
	Currency *string // Filter by invoice currency
	Settled  *bool   // Filter by settlement state
}

// Repository defines the interface for invoice persistence
type Repository interface {
	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByIDForAccount finds an invoice by ID scoped to an account
	FindByIDForAccount(ctx context.Context, accountID, id uuid.UUID) (*Invoice, error)

	// FindByInvoiceNumber finds an invoice by its number for an account
	FindByInvoiceNumber(ctx context.Context, accountID uuid.UUID, invoiceNumber string) (*Invoice, error)

	// FindByAccount finds all invoices of an account, oldest first
	FindByAccount(ctx context.Context, accountID uuid.UUID, filter Filter) ([]Invoice, error)

	// CountByAccount counts the invoices of an account matching the filter,
	// ignoring pagination
	CountByAccount(ctx context.Context, accountID uuid.UUID, filter Filter) (int64, error)

	// FindUnsettled finds all invoices of an account with a remaining balance
	FindUnsettled(ctx context.Context, accountID uuid.UUID) ([]Invoice, error)

	// Save creates or updates an invoice
	Save(ctx context.Context, inv *Invoice) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, inv *Invoice, expectedVersion int) error
}
