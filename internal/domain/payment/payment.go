package payment

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

// TransactionStatus represents the status of a single payment attempt
type TransactionStatus string

const (
	TransactionStatusPending       TransactionStatus = "PENDING"        // Sent to the gateway, outcome unknown
	TransactionStatusSuccess       TransactionStatus = "SUCCESS"        // Gateway settled the charge
	TransactionStatusFailure       TransactionStatus = "FAILURE"        // Gateway rejected or failed the charge
	TransactionStatusPluginFailure TransactionStatus = "PLUGIN_FAILURE" // Gateway plugin raised an error before a decision
)

// IsValid checks if the transaction status is valid
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusSuccess,
		TransactionStatusFailure, TransactionStatusPluginFailure:
		return true
	}
	return false
}

// IsTerminal returns true if no further result can be recorded for this status
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailure || s == TransactionStatusPluginFailure
}

// String returns the string representation of TransactionStatus
func (s TransactionStatus) String() string {
	return string(s)
}

// Transaction records one attempt to charge the gateway. Once a terminal
// status is recorded the transaction never changes again; retries append a
// new transaction instead of reopening an old one.
type Transaction struct {
	ID                uuid.UUID            `json:"id"`
	AttemptNumber     int                  `json:"attempt_number"`
	Status            TransactionStatus    `json:"status"`
	RequestedAmount   decimal.Decimal      `json:"requested_amount"`
	RequestedCurrency valueobject.Currency `json:"requested_currency"`
	ProcessedAmount   *decimal.Decimal     `json:"processed_amount,omitempty"`
	ProcessedCurrency valueobject.Currency `json:"processed_currency,omitempty"`
	GatewayReference  string               `json:"gateway_reference,omitempty"`
	ErrorCode         string               `json:"error_code,omitempty"`
	ErrorMessage      string               `json:"error_message,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
}

// GetRequestedMoney returns the requested amount as Money
func (t *Transaction) GetRequestedMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(t.RequestedAmount, t.RequestedCurrency)
	return m
}

// GetProcessedMoney returns the processed amount as Money, or false if the
// gateway never reported one
func (t *Transaction) GetProcessedMoney() (valueobject.Money, bool) {
	if t.ProcessedAmount == nil {
		return valueobject.Money{}, false
	}
	m, _ := valueobject.NewMoney(*t.ProcessedAmount, t.ProcessedCurrency)
	return m, true
}

// IsCrossCurrency returns true if the gateway settled in a currency other
// than the one requested
func (t *Transaction) IsCrossCurrency() bool {
	return t.ProcessedCurrency != "" && t.ProcessedCurrency != t.RequestedCurrency
}

// Transactions is a slice of Transaction with GORM Scanner/Valuer for JSONB storage
type Transactions []Transaction

// Value implements driver.Valuer interface for GORM to store as JSONB
func (ts Transactions) Value() (driver.Value, error) {
	if ts == nil {
		return "[]", nil
	}
	return json.Marshal(ts)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (ts *Transactions) Scan(value interface{}) error {
	if value == nil {
		*ts = Transactions{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan Transactions: unsupported type")
	}

	if len(bytes) == 0 {
		*ts = Transactions{}
		return nil
	}

	return json.Unmarshal(bytes, ts)
}

// Payment represents a payment aggregate root: one intended charge of a
// fixed amount against an invoice, carried out by one or more gateway
// attempts. The attempt history is append-only.
type Payment struct {
	shared.AccountAggregateRoot
	InvoiceID       uuid.UUID            `json:"invoice_id"`
	PurchasedAmount decimal.Decimal      `json:"purchased_amount"`
	Currency        valueobject.Currency `json:"currency"`
	Transactions    Transactions         `json:"transactions"`
	NextRetryAt     *time.Time           `json:"next_retry_at"`
}

// NewPayment creates a new payment for an invoice
func NewPayment(accountID, invoiceID uuid.UUID, amount valueobject.Money, now time.Time) (*Payment, error) {
	if accountID == uuid.Nil {
		return nil, ErrPaymentInvalidAccountID
	}
	if invoiceID == uuid.Nil {
		return nil, ErrPaymentInvalidInvoiceID
	}
	if !amount.IsPositive() {
		return nil, ErrPaymentInvalidAmount
	}

	return &Payment{
		AccountAggregateRoot: shared.NewAccountAggregateRoot(accountID, now),
		InvoiceID:            invoiceID,
		PurchasedAmount:      amount.Amount(),
		Currency:             amount.Currency(),
		Transactions:         Transactions{},
	}, nil
}

// GetPurchasedMoney returns the purchased amount as Money
func (p *Payment) GetPurchasedMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(p.PurchasedAmount, p.Currency)
	return m
}

// AttemptCount returns the number of attempts made so far
func (p *Payment) AttemptCount() int {
	return len(p.Transactions)
}

// FailedAttemptCount returns the number of terminally failed attempts
func (p *Payment) FailedAttemptCount() int {
	count := 0
	for _, t := range p.Transactions {
		if t.Status == TransactionStatusFailure || t.Status == TransactionStatusPluginFailure {
			count++
		}
	}
	return count
}

// IsSuccess returns true if any attempt succeeded
func (p *Payment) IsSuccess() bool {
	for _, t := range p.Transactions {
		if t.Status == TransactionStatusSuccess {
			return true
		}
	}
	return false
}

// HasPendingTransaction returns true if an attempt is currently in flight
func (p *Payment) HasPendingTransaction() bool {
	for _, t := range p.Transactions {
		if t.Status == TransactionStatusPending {
			return true
		}
	}
	return false
}

// LastTransaction returns the most recent attempt, or nil if none exist
func (p *Payment) LastTransaction() *Transaction {
	if len(p.Transactions) == 0 {
		return nil
	}
	return &p.Transactions[len(p.Transactions)-1]
}

// FindTransaction returns the transaction with the given ID, or nil
func (p *Payment) FindTransaction(transactionID uuid.UUID) *Transaction {
	for i := range p.Transactions {
		if p.Transactions[i].ID == transactionID {
			return &p.Transactions[i]
		}
	}
	return nil
}

// NewAttempt opens a new PENDING transaction for the full purchased amount.
// Only one attempt may be in flight at a time, and a payment that already
// succeeded never attempts again.
func (p *Payment) NewAttempt(now time.Time) (*Transaction, error) {
	if p.IsSuccess() {
		return nil, ErrPaymentAlreadySucceeded
	}
	if p.HasPendingTransaction() {
		return nil, ErrPaymentAttemptInFlight
	}

	txn := Transaction{
		ID:                uuid.New(),
		AttemptNumber:     len(p.Transactions) + 1,
		Status:            TransactionStatusPending,
		RequestedAmount:   p.PurchasedAmount,
		RequestedCurrency: p.Currency,
		CreatedAt:         now,
	}
	p.Transactions = append(p.Transactions, txn)
	p.NextRetryAt = nil
	p.UpdatedAt = now
	p.IncrementVersion()

	return &p.Transactions[len(p.Transactions)-1], nil
}

// RecordGatewayResult moves a PENDING transaction to its terminal status.
// A result arriving for a transaction that is already terminal is a
// duplicate callback and is rejected without mutating anything, keeping
// result application at-most-once.
func (p *Payment) RecordGatewayResult(transactionID uuid.UUID, result ChargeResult, now time.Time) (*Transaction, error) {
	txn := p.FindTransaction(transactionID)
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	if txn.Status.IsTerminal() {
		return nil, ErrTransactionAlreadyTerminal
	}
	if !result.Status.IsValid() || !result.Status.IsTerminal() {
		return nil, ErrInvalidGatewayResult
	}

	if result.Status == TransactionStatusSuccess {
		if err := p.validateProcessedFigures(txn, result); err != nil {
			return nil, err
		}
		processed := result.ProcessedAmount
		txn.ProcessedAmount = &processed
		txn.ProcessedCurrency = result.ProcessedCurrency
	}

	txn.Status = result.Status
	txn.GatewayReference = result.GatewayReference
	txn.ErrorCode = result.ErrorCode
	txn.ErrorMessage = result.ErrorMessage
	txn.CompletedAt = &now
	p.UpdatedAt = now
	p.IncrementVersion()

	switch result.Status {
	case TransactionStatusSuccess:
		p.NextRetryAt = nil
		p.AddDomainEvent(NewPaymentSucceededEvent(p, txn, now))
	default:
		p.AddDomainEvent(NewPaymentFailedEvent(p, txn, now))
	}

	return txn, nil
}

// validateProcessedFigures checks the processed amount reported on a
// successful charge. Same-currency settlements must match the requested
// amount exactly at money precision; cross-currency settlements are trusted
// as reported because the engine never performs FX conversion itself.
func (p *Payment) validateProcessedFigures(txn *Transaction, result ChargeResult) error {
	if result.ProcessedCurrency == "" {
		return ErrInvalidGatewayResult
	}
	if !result.ProcessedAmount.IsPositive() {
		return fmt.Errorf("%w: processed amount %s is not positive",
			ErrInvalidGatewayResult, result.ProcessedAmount.String())
	}
	if result.ProcessedCurrency == txn.RequestedCurrency {
		requested := txn.RequestedAmount.Round(valueobject.MoneyScale)
		processed := result.ProcessedAmount.Round(valueobject.MoneyScale)
		if !requested.Equal(processed) {
			return fmt.Errorf("%w: processed amount %s does not match requested amount %s",
				ErrInvalidGatewayResult, processed.String(), requested.String())
		}
	}
	return nil
}

// ScheduleRetry records when the next attempt should be made
func (p *Payment) ScheduleRetry(retryAt time.Time, now time.Time) {
	p.NextRetryAt = &retryAt
	p.UpdatedAt = now
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentRetryScheduledEvent(p, retryAt, now))
}

// ClearRetry abandons any scheduled retry, typically on exhaustion
func (p *Payment) ClearRetry(now time.Time) {
	if p.NextRetryAt == nil {
		return
	}
	p.NextRetryAt = nil
	p.UpdatedAt = now
	p.IncrementVersion()
}

// AppliedMoney returns the amount this payment contributes to the invoice
// balance when it succeeds. It is always the requested invoice-currency
// amount regardless of the settlement currency.
func (p *Payment) AppliedMoney() valueobject.Money {
	return p.GetPurchasedMoney()
}
