package payment

import (
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Completion signal names carried on the event bus
const (
	EventTypePayment               = "PAYMENT"
	EventTypePaymentError          = "PAYMENT_ERROR"
	EventTypePaymentRetryScheduled = "PAYMENT_RETRY_SCHEDULED"
)

// PaymentSucceededEvent is raised when a gateway attempt settles
type PaymentSucceededEvent struct {
	shared.BaseDomainEvent
	PaymentID         uuid.UUID        `json:"payment_id"`
	InvoiceID         uuid.UUID        `json:"invoice_id"`
	TransactionID     uuid.UUID        `json:"transaction_id"`
	AttemptNumber     int              `json:"attempt_number"`
	RequestedAmount   decimal.Decimal  `json:"requested_amount"`
	RequestedCurrency string           `json:"requested_currency"`
	ProcessedAmount   *decimal.Decimal `json:"processed_amount,omitempty"`
	ProcessedCurrency string           `json:"processed_currency,omitempty"`
	GatewayReference  string           `json:"gateway_reference,omitempty"`
}

// EventType returns the event type name
func (e *PaymentSucceededEvent) EventType() string {
	return EventTypePayment
}

// NewPaymentSucceededEvent creates a new PaymentSucceededEvent
func NewPaymentSucceededEvent(p *Payment, txn *Transaction, now time.Time) *PaymentSucceededEvent {
	return &PaymentSucceededEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypePayment, "Payment", p.ID, p.AccountID, now),
		PaymentID:         p.ID,
		InvoiceID:         p.InvoiceID,
		TransactionID:     txn.ID,
		AttemptNumber:     txn.AttemptNumber,
		RequestedAmount:   txn.RequestedAmount,
		RequestedCurrency: string(txn.RequestedCurrency),
		ProcessedAmount:   txn.ProcessedAmount,
		ProcessedCurrency: string(txn.ProcessedCurrency),
		GatewayReference:  txn.GatewayReference,
	}
}

// PaymentFailedEvent is raised when a gateway attempt reaches a terminal
// failure, whether a decline or a plugin error
type PaymentFailedEvent struct {
	shared.BaseDomainEvent
	PaymentID         uuid.UUID         `json:"payment_id"`
	InvoiceID         uuid.UUID         `json:"invoice_id"`
	TransactionID     uuid.UUID         `json:"transaction_id"`
	AttemptNumber     int               `json:"attempt_number"`
	Status            TransactionStatus `json:"status"`
	RequestedAmount   decimal.Decimal   `json:"requested_amount"`
	RequestedCurrency string            `json:"requested_currency"`
	ErrorCode         string            `json:"error_code,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
}

// EventType returns the event type name
func (e *PaymentFailedEvent) EventType() string {
	return EventTypePaymentError
}

// NewPaymentFailedEvent creates a new PaymentFailedEvent
func NewPaymentFailedEvent(p *Payment, txn *Transaction, now time.Time) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypePaymentError, "Payment", p.ID, p.AccountID, now),
		PaymentID:         p.ID,
		InvoiceID:         p.InvoiceID,
		TransactionID:     txn.ID,
		AttemptNumber:     txn.AttemptNumber,
		Status:            txn.Status,
		RequestedAmount:   txn.RequestedAmount,
		RequestedCurrency: string(txn.RequestedCurrency),
		ErrorCode:         txn.ErrorCode,
		ErrorMessage:      txn.ErrorMessage,
	}
}

// PaymentRetryScheduledEvent is raised when a failed payment is queued for
// another attempt
type PaymentRetryScheduledEvent struct {
	shared.BaseDomainEvent
	PaymentID      uuid.UUID `json:"payment_id"`
	InvoiceID      uuid.UUID `json:"invoice_id"`
	FailedAttempts int       `json:"failed_attempts"`
	RetryAt        time.Time `json:"retry_at"`
}

// EventType returns the event type name
func (e *PaymentRetryScheduledEvent) EventType() string {
	return EventTypePaymentRetryScheduled
}

// NewPaymentRetryScheduledEvent creates a new PaymentRetryScheduledEvent
func NewPaymentRetryScheduledEvent(p *Payment, retryAt time.Time, now time.Time) *PaymentRetryScheduledEvent {
	return &PaymentRetryScheduledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRetryScheduled, "Payment", p.ID, p.AccountID, now),
		PaymentID:       p.ID,
		InvoiceID:       p.InvoiceID,
		FailedAttempts:  p.FailedAttemptCount(),
		RetryAt:         retryAt,
	}
}

// PaymentRefundedEvent is the refund variant of the PAYMENT signal
type PaymentRefundedEvent struct {
	shared.BaseDomainEvent
	RefundID         uuid.UUID       `json:"refund_id"`
	PaymentID        uuid.UUID       `json:"payment_id"`
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	GatewayReference string          `json:"gateway_reference,omitempty"`
	IsRefund         bool            `json:"is_refund"`
}

// EventType returns the event type name
func (e *PaymentRefundedEvent) EventType() string {
	return EventTypePayment
}

// NewPaymentRefundedEvent creates a new PaymentRefundedEvent
func NewPaymentRefundedEvent(r *Refund, now time.Time) *PaymentRefundedEvent {
	return &PaymentRefundedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypePayment, "Refund", r.ID, r.AccountID, now),
		RefundID:         r.ID,
		PaymentID:        r.PaymentID,
		InvoiceID:        r.InvoiceID,
		Amount:           r.Amount,
		Currency:         string(r.Currency),
		GatewayReference: r.GatewayReference,
		IsRefund:         true,
	}
}

// RefundFailedEvent is raised when the gateway rejects a refund
type RefundFailedEvent struct {
	shared.BaseDomainEvent
	RefundID     uuid.UUID       `json:"refund_id"`
	PaymentID    uuid.UUID       `json:"payment_id"`
	InvoiceID    uuid.UUID       `json:"invoice_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// EventType returns the event type name
func (e *RefundFailedEvent) EventType() string {
	return EventTypePaymentError
}

// NewRefundFailedEvent creates a new RefundFailedEvent
func NewRefundFailedEvent(r *Refund, now time.Time) *RefundFailedEvent {
	return &RefundFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentError, "Refund", r.ID, r.AccountID, now),
		RefundID:        r.ID,
		PaymentID:       r.PaymentID,
		InvoiceID:       r.InvoiceID,
		Amount:          r.Amount,
		Currency:        string(r.Currency),
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
	}
}
