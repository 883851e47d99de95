package payment

import (
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundStatus represents the status of a refund
type RefundStatus string

const (
	// RefundStatusPending indicates the refund is being processed by the gateway
	RefundStatusPending RefundStatus = "PENDING"
	// RefundStatusSuccess indicates the refund settled
	RefundStatusSuccess RefundStatus = "SUCCESS"
	// RefundStatusFailed indicates the gateway rejected the refund
	RefundStatusFailed RefundStatus = "FAILED"
)

// IsValid checks if the status is a valid RefundStatus
func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusPending, RefundStatusSuccess, RefundStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the refund is in a terminal state
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusSuccess || s == RefundStatusFailed
}

// String returns the string representation of RefundStatus
func (s RefundStatus) String() string {
	return string(s)
}

// Refund represents a refund aggregate root: a reversal of part of a
// settled payment back toward the payer. The refund amount is denominated
// in the invoice currency, like the application it unwinds.
type Refund struct {
	shared.AccountAggregateRoot
	PaymentID        uuid.UUID            `json:"payment_id"`
	InvoiceID        uuid.UUID            `json:"invoice_id"`
	Amount           decimal.Decimal      `json:"amount"`
	Currency         valueobject.Currency `json:"currency"`
	Status           RefundStatus         `json:"status"`
	GatewayReference string               `json:"gateway_reference,omitempty"`
	ErrorCode        string               `json:"error_code,omitempty"`
	ErrorMessage     string               `json:"error_message,omitempty"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty"`
}

// NewRefund creates a new pending refund against a payment
func NewRefund(accountID, paymentID, invoiceID uuid.UUID, amount valueobject.Money, now time.Time) (*Refund, error) {
	if paymentID == uuid.Nil || invoiceID == uuid.Nil {
		return nil, ErrRefundInvalidPayment
	}
	if !amount.IsPositive() {
		return nil, ErrRefundInvalidAmount
	}

	return &Refund{
		AccountAggregateRoot: shared.NewAccountAggregateRoot(accountID, now),
		PaymentID:            paymentID,
		InvoiceID:            invoiceID,
		Amount:               amount.Amount(),
		Currency:             amount.Currency(),
		Status:               RefundStatusPending,
	}, nil
}

// GetAmountMoney returns the refund amount as Money
func (r *Refund) GetAmountMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(r.Amount, r.Currency)
	return m
}

// Complete marks the refund as settled. Completing an already successful
// refund is a no-op so gateway callbacks can be replayed safely.
func (r *Refund) Complete(gatewayReference string, now time.Time) error {
	if r.Status == RefundStatusSuccess {
		return nil
	}
	if r.Status != RefundStatusPending {
		return ErrRefundNotCompletable
	}

	r.Status = RefundStatusSuccess
	r.GatewayReference = gatewayReference
	r.CompletedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewPaymentRefundedEvent(r, now))

	return nil
}

// Fail marks the refund as rejected by the gateway
func (r *Refund) Fail(errorCode, errorMessage string, now time.Time) error {
	if r.Status != RefundStatusPending {
		return ErrRefundNotCompletable
	}

	r.Status = RefundStatusFailed
	r.ErrorCode = errorCode
	r.ErrorMessage = errorMessage
	r.CompletedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewRefundFailedEvent(r, now))

	return nil
}
