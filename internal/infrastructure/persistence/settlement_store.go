package persistence

import (
	"context"

	"github.com/billing/backend/internal/domain/invoice"
	"github.com/billing/backend/internal/domain/payment"
	"github.com/billing/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSettlementStore writes the cross-aggregate outcome of a
// reconciliation step in a single database transaction, so a terminal
// payment verdict and its invoice application can never diverge.
type GormSettlementStore struct {
	db *gorm.DB
}

// NewGormSettlementStore creates a new GormSettlementStore
func NewGormSettlementStore(db *gorm.DB) *GormSettlementStore {
	return &GormSettlementStore{db: db}
}

// SaveGatewayResult persists the payment and the invoice atomically, each
// under its optimistic version check. Either both rows commit or neither.
func (s *GormSettlementStore) SaveGatewayResult(
	ctx context.Context,
	p *payment.Payment, paymentVersion int,
	inv *invoice.Invoice, invoiceVersion int,
) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := savePaymentWithLock(tx, p, paymentVersion); err != nil {
			return err
		}
		return saveInvoiceWithLock(tx, inv, invoiceVersion)
	})
}

// SaveRefundOutcome persists the refund and, when the refund restored
// balance, the invoice in one transaction. A nil invoice records the
// refund alone.
func (s *GormSettlementStore) SaveRefundOutcome(
	ctx context.Context,
	ref *payment.Refund,
	inv *invoice.Invoice, invoiceVersion int,
) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if inv != nil {
			if err := saveInvoiceWithLock(tx, inv, invoiceVersion); err != nil {
				return err
			}
		}
		return tx.Save(models.RefundModelFromDomain(ref)).Error
	})
}
