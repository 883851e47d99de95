package invoice

import (
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Completion signal names carried on the event bus. Consumers key on these
// strings, so they are part of the public contract and never change.
const (
	EventTypeInvoiceCreated      = "INVOICE_CREATED"
	EventTypeInvoiceAdjustment   = "INVOICE_ADJUSTMENT"
	EventTypeInvoicePayment      = "INVOICE_PAYMENT"
	EventTypeInvoicePaymentError = "INVOICE_PAYMENT_ERROR"
	EventTypeInvoiceSettled      = "INVOICE_SETTLED"
)

// InvoiceCreatedEvent is raised when a new invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID            `json:"invoice_id"`
	InvoiceNumber string               `json:"invoice_number"`
	Currency      valueobject.Currency `json:"currency"`
}

// EventType returns the event type name
func (e *InvoiceCreatedEvent) EventType() string {
	return EventTypeInvoiceCreated
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice, now time.Time) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, "Invoice", inv.ID, inv.AccountID, now),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Currency:        inv.Currency,
	}
}

// InvoiceAdjustedEvent is raised when an external charge, credit or
// adjustment item changes the balance of an existing invoice
type InvoiceAdjustedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ItemID        uuid.UUID       `json:"item_id"`
	ItemType      ItemType        `json:"item_type"`
	ItemAmount    decimal.Decimal `json:"item_amount"`
	Balance       decimal.Decimal `json:"balance"`
}

// EventType returns the event type name
func (e *InvoiceAdjustedEvent) EventType() string {
	return EventTypeInvoiceAdjustment
}

// NewInvoiceAdjustedEvent creates a new InvoiceAdjustedEvent
func NewInvoiceAdjustedEvent(inv *Invoice, item *Item, now time.Time) *InvoiceAdjustedEvent {
	return &InvoiceAdjustedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceAdjustment, "Invoice", inv.ID, inv.AccountID, now),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ItemID:          item.ID,
		ItemType:        item.Type,
		ItemAmount:      item.Amount,
		Balance:         inv.Balance().Amount(),
	}
}

// InvoicePaymentAppliedEvent is raised when a successful payment transaction
// is applied against the invoice balance
type InvoicePaymentAppliedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Balance       decimal.Decimal `json:"balance"`
	IsRefund      bool            `json:"is_refund"`
}

// EventType returns the event type name
func (e *InvoicePaymentAppliedEvent) EventType() string {
	return EventTypeInvoicePayment
}

// NewInvoicePaymentAppliedEvent creates a new InvoicePaymentAppliedEvent
func NewInvoicePaymentAppliedEvent(inv *Invoice, app *PaymentApplication, now time.Time) *InvoicePaymentAppliedEvent {
	return &InvoicePaymentAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePayment, "Invoice", inv.ID, inv.AccountID, now),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PaymentID:       app.PaymentID,
		TransactionID:   app.TransactionID,
		Amount:          app.Amount,
		PaidAmount:      inv.PaidAmount,
		Balance:         inv.Balance().Amount(),
	}
}

// InvoicePaymentFailedEvent is raised when a payment attempt against the
// invoice reaches a terminal failure
type InvoicePaymentFailedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	ErrorCode     string          `json:"error_code"`
	ErrorMessage  string          `json:"error_message"`
}

// EventType returns the event type name
func (e *InvoicePaymentFailedEvent) EventType() string {
	return EventTypeInvoicePaymentError
}

// NewInvoicePaymentFailedEvent creates a new InvoicePaymentFailedEvent
func NewInvoicePaymentFailedEvent(inv *Invoice, paymentID, transactionID uuid.UUID, amount valueobject.Money, errorCode, errorMessage string, now time.Time) *InvoicePaymentFailedEvent {
	return &InvoicePaymentFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaymentError, "Invoice", inv.ID, inv.AccountID, now),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PaymentID:       paymentID,
		TransactionID:   transactionID,
		Amount:          amount.Amount(),
		Balance:         inv.Balance().Amount(),
		ErrorCode:       errorCode,
		ErrorMessage:    errorMessage,
	}
}

// InvoiceRefundAppliedEvent is the refund variant of the INVOICE_PAYMENT
// signal, raised when a refund restores part of the invoice balance
type InvoiceRefundAppliedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Balance       decimal.Decimal `json:"balance"`
	IsRefund      bool            `json:"is_refund"`
}

// EventType returns the event type name
func (e *InvoiceRefundAppliedEvent) EventType() string {
	return EventTypeInvoicePayment
}

// NewInvoiceRefundAppliedEvent creates a new InvoiceRefundAppliedEvent
func NewInvoiceRefundAppliedEvent(inv *Invoice, paymentID uuid.UUID, amount valueobject.Money, now time.Time) *InvoiceRefundAppliedEvent {
	return &InvoiceRefundAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePayment, "Invoice", inv.ID, inv.AccountID, now),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PaymentID:       paymentID,
		Amount:          amount.Amount(),
		PaidAmount:      inv.PaidAmount,
		Balance:         inv.Balance().Amount(),
		IsRefund:        true,
	}
}

// InvoiceSettledEvent is raised when the invoice balance reaches zero
type InvoiceSettledEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	SettledAt     time.Time       `json:"settled_at"`
}

// EventType returns the event type name
func (e *InvoiceSettledEvent) EventType() string {
	return EventTypeInvoiceSettled
}

// NewInvoiceSettledEvent creates a new InvoiceSettledEvent
func NewInvoiceSettledEvent(inv *Invoice, now time.Time) *InvoiceSettledEvent {
	return &InvoiceSettledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceSettled, "Invoice", inv.ID, inv.AccountID, now),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PaidAmount:      inv.PaidAmount,
		SettledAt:       now,
	}
}
