package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/billing/backend/internal/domain/invoice"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements invoice.Repository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

var _ invoice.Repository = (*GormInvoiceRepository)(nil)

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForAccount finds an invoice by ID for a specific account
func (r *GormInvoiceRepository) FindByIDForAccount(ctx context.Context, accountID, id uuid.UUID) (*invoice.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND id = ?", accountID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoiceNumber finds an invoice by its number for an account
func (r *GormInvoiceRepository) FindByInvoiceNumber(ctx context.Context, accountID uuid.UUID, invoiceNumber string) (*invoice.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND invoice_number = ?", accountID, invoiceNumber).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByAccount finds all invoices for an account with filtering
func (r *GormInvoiceRepository) FindByAccount(ctx context.Context, accountID uuid.UUID, filter invoice.Filter) ([]invoice.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("account_id = ?", accountID)
	query = r.applyInvoiceFilter(query, filter)

	if err := query.Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	invoices := make([]invoice.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain()
	}
	return invoices, nil
}

// CountByAccount counts the invoices of an account matching the filter
func (r *GormInvoiceRepository) CountByAccount(ctx context.Context, accountID uuid.UUID, filter invoice.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("account_id = ?", accountID)
	query = r.applyInvoiceWhere(query, filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindUnsettled finds all invoices of an account that have not settled yet
func (r *GormInvoiceRepository) FindUnsettled(ctx context.Context, accountID uuid.UUID) ([]invoice.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND settled_at IS NULL", accountID).
		Order("created_at ASC").
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	invoices := make([]invoice.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain()
	}
	return invoices, nil
}

// Save creates or updates an invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *invoice.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, inv *invoice.Invoice, expectedVersion int) error {
	return saveInvoiceWithLock(r.db.WithContext(ctx), inv, expectedVersion)
}

func saveInvoiceWithLock(db *gorm.DB, inv *invoice.Invoice, expectedVersion int) error {
	model := models.InvoiceModelFromDomain(inv)
	// Select("*") forces zero-valued columns (a cleared settled_at) to be written.
	result := db.
		Model(model).
		Where("id = ? AND version = ?", inv.ID, expectedVersion).
		Select("*").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("OPTIMISTIC_LOCK_ERROR", "The record has been modified by another transaction")
	}
	return nil
}

// applyInvoiceWhere applies the optional filter conditions to a query
func (r *GormInvoiceRepository) applyInvoiceWhere(query *gorm.DB, filter invoice.Filter) *gorm.DB {
	if filter.Currency != nil && *filter.Currency != "" {
		query = query.Where("currency = ?", *filter.Currency)
	}
	if filter.Settled != nil {
		if *filter.Settled {
			query = query.Where("settled_at IS NOT NULL")
		} else {
			query = query.Where("settled_at IS NULL")
		}
	}
	return query
}

// applyInvoiceFilter applies optional filters, sorting, and pagination to a query
func (r *GormInvoiceRepository) applyInvoiceFilter(query *gorm.DB, filter invoice.Filter) *gorm.DB {
	query = r.applyInvoiceWhere(query, filter)

	orderBy := ValidateSortField(filter.OrderBy, InvoiceSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(fmt.Sprintf("%s %s", orderBy, orderDir))

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	return query
}
