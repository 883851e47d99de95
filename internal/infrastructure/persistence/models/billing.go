package models

import (
	"time"

	"github.com/billing/backend/internal/domain/invoice"
	"github.com/billing/backend/internal/domain/payment"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
type InvoiceModel struct {
	AccountAggregateModel
	InvoiceNumber string                      `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoice_account_number,priority:2"`
	Currency      valueobject.Currency        `gorm:"type:varchar(3);not null"`
	Items         invoice.Items               `gorm:"type:jsonb;default:'[]'"`
	Applications  invoice.PaymentApplications `gorm:"type:jsonb;default:'[]'"`
	PaidAmount    decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	SettledAt     *time.Time                  `gorm:"index"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *invoice.Invoice {
	return &invoice.Invoice{
		AccountAggregateRoot: shared.AccountAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: shared.BaseEntity{
					ID:        m.ID,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				},
				Version: m.Version,
			},
			AccountID: m.AccountID,
		},
		InvoiceNumber: m.InvoiceNumber,
		Currency:      m.Currency,
		Items:         m.Items,
		Applications:  m.Applications,
		PaidAmount:    m.PaidAmount,
		SettledAt:     m.SettledAt,
	}
}

// FromDomain populates the persistence model from a domain Invoice entity.
func (m *InvoiceModel) FromDomain(inv *invoice.Invoice) {
	m.FromDomainAccountAggregateRoot(inv.AccountAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.Currency = inv.Currency
	m.Items = inv.Items
	m.Applications = inv.Applications
	m.PaidAmount = inv.PaidAmount
	m.SettledAt = inv.SettledAt
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *invoice.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root.
type PaymentModel struct {
	AccountAggregateModel
	InvoiceID       uuid.UUID            `gorm:"type:uuid;not null;index"`
	PurchasedAmount decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency        valueobject.Currency `gorm:"type:varchar(3);not null"`
	Transactions    payment.Transactions `gorm:"type:jsonb;default:'[]'"`
	NextRetryAt     *time.Time           `gorm:"index"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment entity.
func (m *PaymentModel) ToDomain() *payment.Payment {
	return &payment.Payment{
		AccountAggregateRoot: shared.AccountAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: shared.BaseEntity{
					ID:        m.ID,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				},
				Version: m.Version,
			},
			AccountID: m.AccountID,
		},
		InvoiceID:       m.InvoiceID,
		PurchasedAmount: m.PurchasedAmount,
		Currency:        m.Currency,
		Transactions:    m.Transactions,
		NextRetryAt:     m.NextRetryAt,
	}
}

// FromDomain populates the persistence model from a domain Payment entity.
func (m *PaymentModel) FromDomain(p *payment.Payment) {
	m.FromDomainAccountAggregateRoot(p.AccountAggregateRoot)
	m.InvoiceID = p.InvoiceID
	m.PurchasedAmount = p.PurchasedAmount
	m.Currency = p.Currency
	m.Transactions = p.Transactions
	m.NextRetryAt = p.NextRetryAt
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment.
func PaymentModelFromDomain(p *payment.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// RefundModel is the persistence model for the Refund aggregate root.
type RefundModel struct {
	AccountAggregateModel
	PaymentID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	InvoiceID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	Amount           decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency         valueobject.Currency `gorm:"type:varchar(3);not null"`
	Status           payment.RefundStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	GatewayReference string               `gorm:"type:varchar(100)"`
	ErrorCode        string               `gorm:"type:varchar(50)"`
	ErrorMessage     string               `gorm:"type:varchar(500)"`
	CompletedAt      *time.Time
}

// TableName returns the table name for GORM
func (RefundModel) TableName() string {
	return "refunds"
}

// ToDomain converts the persistence model to a domain Refund entity.
func (m *RefundModel) ToDomain() *payment.Refund {
	return &payment.Refund{
		AccountAggregateRoot: shared.AccountAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: shared.BaseEntity{
					ID:        m.ID,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				},
				Version: m.Version,
			},
			AccountID: m.AccountID,
		},
		PaymentID:        m.PaymentID,
		InvoiceID:        m.InvoiceID,
		Amount:           m.Amount,
		Currency:         m.Currency,
		Status:           m.Status,
		GatewayReference: m.GatewayReference,
		ErrorCode:        m.ErrorCode,
		ErrorMessage:     m.ErrorMessage,
		CompletedAt:      m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain Refund entity.
func (m *RefundModel) FromDomain(r *payment.Refund) {
	m.FromDomainAccountAggregateRoot(r.AccountAggregateRoot)
	m.PaymentID = r.PaymentID
	m.InvoiceID = r.InvoiceID
	m.Amount = r.Amount
	m.Currency = r.Currency
	m.Status = r.Status
	m.GatewayReference = r.GatewayReference
	m.ErrorCode = r.ErrorCode
	m.ErrorMessage = r.ErrorMessage
	m.CompletedAt = r.CompletedAt
}

// RefundModelFromDomain creates a new persistence model from a domain Refund.
func RefundModelFromDomain(r *payment.Refund) *RefundModel {
	m := &RefundModel{}
	m.FromDomain(r)
	return m
}
