package invoice

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemType represents the type of an invoice item
type ItemType string

const (
	ItemTypeRecurring      ItemType = "RECURRING"       // Periodic subscription charge
	ItemTypeFixed          ItemType = "FIXED"           // One-time fixed charge
	ItemTypeExternalCharge ItemType = "EXTERNAL_CHARGE" // Charge originating outside the billing engine
	ItemTypeCredit         ItemType = "CREDIT"          // Credit reducing the balance
	ItemTypeAdjustment     ItemType = "ADJUSTMENT"      // Correction of a prior item
)

// IsValid checks if the item type is valid
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeRecurring, ItemTypeFixed, ItemTypeExternalCharge,
		ItemTypeCredit, ItemTypeAdjustment:
		return true
	}
	return false
}

// String returns the string representation of ItemType
func (t ItemType) String() string {
	return string(t)
}

// IsCharge returns true if items of this type increase the charged amount
func (t ItemType) IsCharge() bool {
	return t == ItemTypeRecurring || t == ItemTypeFixed || t == ItemTypeExternalCharge
}

// IsCredit returns true if items of this type reduce the balance
func (t ItemType) IsCredit() bool {
	return t == ItemTypeCredit || t == ItemTypeAdjustment
}

// Item represents a single line on an invoice.
// Items are immutable once persisted; corrections are represented by new
// ADJUSTMENT or CREDIT items, never by in-place mutation.
type Item struct {
	ID          uuid.UUID                `json:"id"`
	Type        ItemType                 `json:"type"`
	Description string                   `json:"description"`
	Amount      decimal.Decimal          `json:"amount"`
	Currency    valueobject.Currency     `json:"currency"`
	PeriodStart *time.Time               `json:"period_start,omitempty"`
	PeriodEnd   *time.Time               `json:"period_end,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
}

// GetAmountMoney returns the item amount as Money
func (i *Item) GetAmountMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(i.Amount, i.Currency)
	return m
}

// Items is a slice of Item that implements GORM Scanner/Valuer for JSONB storage
type Items []Item

// Value implements driver.Valuer interface for GORM to store as JSONB
func (items Items) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	return json.Marshal(items)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (items *Items) Scan(value interface{}) error {
	if value == nil {
		*items = Items{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan Items: unsupported type")
	}

	if len(bytes) == 0 {
		*items = Items{}
		return nil
	}

	return json.Unmarshal(bytes, items)
}

// PaymentApplication links a successful payment transaction to the amount
// it contributed against this invoice's balance. The applied amount is
// always denominated in the invoice currency, regardless of the currency
// the gateway settled in.
type PaymentApplication struct {
	ID             uuid.UUID       `json:"id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	TransactionID  uuid.UUID       `json:"transaction_id"`
	Amount         decimal.Decimal `json:"amount"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	AppliedAt      time.Time       `json:"applied_at"`
}

// Refundable returns the portion of this application not yet refunded
func (a *PaymentApplication) Refundable() decimal.Decimal {
	return a.Amount.Sub(a.RefundedAmount)
}

// PaymentApplications is a slice of PaymentApplication with GORM Scanner/Valuer for JSONB storage
type PaymentApplications []PaymentApplication

// Value implements driver.Valuer interface for GORM to store as JSONB
func (p PaymentApplications) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (p *PaymentApplications) Scan(value interface{}) error {
	if value == nil {
		*p = PaymentApplications{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan PaymentApplications: unsupported type")
	}

	if len(bytes) == 0 {
		*p = PaymentApplications{}
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// Invoice represents an invoice aggregate root.
// The charged amount derives from its items, the paid amount from the
// payment applications recorded against it, and the balance is always
// chargedAmount - paidAmount - creditsApplied. Invoices are never
// deleted; corrections happen through new items.
type Invoice struct {
	shared.AccountAggregateRoot
	InvoiceNumber string                  `json:"invoice_number"`
	Currency      valueobject.Currency    `json:"currency"`
	Items         Items                   `json:"items"`
	Applications  PaymentApplications     `json:"applications"`
	PaidAmount    decimal.Decimal         `json:"paid_amount"`
	SettledAt     *time.Time              `json:"settled_at"`
}

// NewInvoice creates a new empty invoice for an account
func NewInvoice(accountID uuid.UUID, invoiceNumber string, currency valueobject.Currency, now time.Time) (*Invoice, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACCOUNT", "Account ID cannot be empty")
	}
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if len(invoiceNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot exceed 50 characters")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}

	inv := &Invoice{
		AccountAggregateRoot: shared.NewAccountAggregateRoot(accountID, now),
		InvoiceNumber:        invoiceNumber,
		Currency:             currency,
		Items:                Items{},
		Applications:         PaymentApplications{},
		PaidAmount:           decimal.Zero,
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv, now))

	return inv, nil
}

// AddItem appends a new item to the invoice.
// Credit and adjustment items on an already-charged invoice raise an
// InvoiceAdjusted event so downstream consumers observe the balance change.
func (inv *Invoice) AddItem(itemType ItemType, description string, amount valueobject.Money, periodStart, periodEnd *time.Time, now time.Time) (*Item, error) {
	if !itemType.IsValid() {
		return nil, shared.NewDomainError("INVALID_ITEM_TYPE", "Item type is not valid")
	}
	if amount.Currency() != inv.Currency {
		return nil, shared.NewDomainError("CURRENCY_MISMATCH",
			fmt.Sprintf("Item currency %s does not match invoice currency %s", amount.Currency(), inv.Currency))
	}
	if itemType.IsCharge() && amount.IsNegative() {
		return nil, ErrInvalidAmount("Charge item amount cannot be negative")
	}
	if itemType.IsCredit() && !amount.IsPositive() {
		return nil, ErrInvalidAmount("Credit item amount must be positive")
	}

	item := Item{
		ID:          uuid.New(),
		Type:        itemType,
		Description: description,
		Amount:      amount.Amount(),
		Currency:    amount.Currency(),
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		CreatedAt:   now,
	}
	inv.Items = append(inv.Items, item)
	inv.SettledAt = nil
	inv.UpdatedAt = now
	inv.IncrementVersion()

	if itemType == ItemTypeExternalCharge || itemType.IsCredit() {
		inv.AddDomainEvent(NewInvoiceAdjustedEvent(inv, &item, now))
	}

	return &inv.Items[len(inv.Items)-1], nil
}

// ChargedAmount returns the sum of all charge item amounts
func (inv *Invoice) ChargedAmount() valueobject.Money {
	total := decimal.Zero
	for _, item := range inv.Items {
		if item.Type.IsCharge() {
			total = total.Add(item.Amount)
		}
	}
	m, _ := valueobject.NewMoney(total, inv.Currency)
	return m
}

// CreditsApplied returns the sum of all credit and adjustment item amounts
func (inv *Invoice) CreditsApplied() valueobject.Money {
	total := decimal.Zero
	for _, item := range inv.Items {
		if item.Type.IsCredit() {
			total = total.Add(item.Amount)
		}
	}
	m, _ := valueobject.NewMoney(total, inv.Currency)
	return m
}

// GetPaidAmountMoney returns the paid amount as Money
func (inv *Invoice) GetPaidAmountMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(inv.PaidAmount, inv.Currency)
	return m
}

// Balance returns chargedAmount - paidAmount - creditsApplied.
// Overpayment is rejected rather than clamped, so the balance can only go
// negative through credits, never through payment application.
func (inv *Invoice) Balance() valueobject.Money {
	balance := inv.ChargedAmount().Amount().
		Sub(inv.PaidAmount).
		Sub(inv.CreditsApplied().Amount())
	m, _ := valueobject.NewMoney(balance, inv.Currency)
	return m
}

// IsSettled returns true if no balance remains at money precision
func (inv *Invoice) IsSettled() bool {
	return inv.Balance().Round().IsZero()
}

// ApplyPayment records a successful payment transaction against this
// invoice. The applied amount must not exceed the current balance; the
// engine never silently clamps.
func (inv *Invoice) ApplyPayment(paymentID, transactionID uuid.UUID, amount valueobject.Money, now time.Time) (*PaymentApplication, error) {
	if paymentID == uuid.Nil || transactionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_REFERENCE", "Payment and transaction IDs cannot be empty")
	}
	if amount.Currency() != inv.Currency {
		return nil, shared.NewDomainError("CURRENCY_MISMATCH",
			fmt.Sprintf("Applied currency %s does not match invoice currency %s", amount.Currency(), inv.Currency))
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount("Applied amount must be positive")
	}

	balance := inv.Balance()
	exceeds, _ := amount.Round().GreaterThan(balance.Round())
	if exceeds {
		return nil, ErrOverpaymentRejected(amount, balance)
	}

	for _, app := range inv.Applications {
		if app.TransactionID == transactionID {
			return nil, shared.NewDomainError("DUPLICATE_APPLICATION",
				fmt.Sprintf("Transaction %s has already been applied to invoice %s", transactionID, inv.ID))
		}
	}

	application := PaymentApplication{
		ID:             uuid.New(),
		PaymentID:      paymentID,
		TransactionID:  transactionID,
		Amount:         amount.Amount(),
		RefundedAmount: decimal.Zero,
		AppliedAt:      now,
	}
	inv.Applications = append(inv.Applications, application)
	inv.PaidAmount = inv.PaidAmount.Add(amount.Amount())
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoicePaymentAppliedEvent(inv, &application, now))
	if inv.IsSettled() {
		inv.SettledAt = &now
		inv.AddDomainEvent(NewInvoiceSettledEvent(inv, now))
	}

	return &inv.Applications[len(inv.Applications)-1], nil
}

// RefundableAmount returns the cumulative applied amount of the given
// payment minus what has already been refunded from it.
func (inv *Invoice) RefundableAmount(paymentID uuid.UUID) valueobject.Money {
	total := decimal.Zero
	for _, app := range inv.Applications {
		if app.PaymentID == paymentID {
			total = total.Add(app.Refundable())
		}
	}
	m, _ := valueobject.NewMoney(total, inv.Currency)
	return m
}

// ApplyRefund reverses part or all of a prior payment application,
// decreasing the paid amount and thereby increasing the balance. A refund
// never exceeds the refundable amount of its originating payment.
func (inv *Invoice) ApplyRefund(paymentID uuid.UUID, amount valueobject.Money, now time.Time) error {
	if paymentID == uuid.Nil {
		return shared.NewDomainError("INVALID_REFERENCE", "Payment ID cannot be empty")
	}
	if amount.Currency() != inv.Currency {
		return shared.NewDomainError("CURRENCY_MISMATCH",
			fmt.Sprintf("Refund currency %s does not match invoice currency %s", amount.Currency(), inv.Currency))
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount("Refund amount must be positive")
	}

	refundable := inv.RefundableAmount(paymentID)
	exceeds, _ := amount.Round().GreaterThan(refundable.Round())
	if exceeds {
		return ErrRefundExceedsApplication(amount, refundable)
	}

	// Consume applications newest-first so the most recent application is
	// unwound before earlier ones.
	remaining := amount.Amount()
	for i := len(inv.Applications) - 1; i >= 0 && remaining.IsPositive(); i-- {
		app := &inv.Applications[i]
		if app.PaymentID != paymentID {
			continue
		}
		available := app.Refundable()
		if !available.IsPositive() {
			continue
		}
		portion := decimal.Min(available, remaining)
		app.RefundedAmount = app.RefundedAmount.Add(portion)
		remaining = remaining.Sub(portion)
	}

	inv.PaidAmount = inv.PaidAmount.Sub(amount.Amount())
	inv.SettledAt = nil
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceRefundAppliedEvent(inv, paymentID, amount, now))

	return nil
}

// RecordPaymentFailure notes a terminally failed payment attempt against
// this invoice. The balance does not change; the aggregate only raises the
// failure event so downstream consumers observe the outcome.
func (inv *Invoice) RecordPaymentFailure(paymentID, transactionID uuid.UUID, amount valueobject.Money, errorCode, errorMessage string, now time.Time) {
	inv.AddDomainEvent(NewInvoicePaymentFailedEvent(inv, paymentID, transactionID, amount, errorCode, errorMessage, now))
}

// GetChargedAmountMoney is a convenience alias for ChargedAmount
func (inv *Invoice) GetChargedAmountMoney() valueobject.Money {
	return inv.ChargedAmount()
}

// ItemCount returns the number of items on the invoice
func (inv *Invoice) ItemCount() int {
	return len(inv.Items)
}

// ApplicationCount returns the number of payment applications
func (inv *Invoice) ApplicationCount() int {
	return len(inv.Applications)
}
