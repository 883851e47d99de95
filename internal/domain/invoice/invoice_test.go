package invoice

import (
	"testing"
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func usd(t *testing.T, s string) valueobject.Money {
	t.Helper()
	return valueobject.MustMoneyFromString(s, valueobject.USD)
}

func createTestInvoice(t *testing.T) *Invoice {
	t.Helper()
	inv, err := NewInvoice(uuid.New(), "INV-2026-001", valueobject.USD, testNow)
	require.NoError(t, err)
	return inv
}

func createChargedInvoice(t *testing.T, amount string) *Invoice {
	t.Helper()
	inv := createTestInvoice(t)
	_, err := inv.AddItem(ItemTypeRecurring, "Monthly subscription", usd(t, amount), nil, nil, testNow)
	require.NoError(t, err)
	return inv
}

// ============================================
// ItemType Tests
// ============================================

func TestItemType_IsValid(t *testing.T) {
	tests := []struct {
		itemType ItemType
		isValid  bool
	}{
		{ItemTypeRecurring, true},
		{ItemTypeFixed, true},
		{ItemTypeExternalCharge, true},
		{ItemTypeCredit, true},
		{ItemTypeAdjustment, true},
		{ItemType("INVALID"), false},
		{ItemType(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.itemType), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.itemType.IsValid())
		})
	}
}

func TestItemType_Classification(t *testing.T) {
	assert.True(t, ItemTypeRecurring.IsCharge())
	assert.True(t, ItemTypeFixed.IsCharge())
	assert.True(t, ItemTypeExternalCharge.IsCharge())
	assert.False(t, ItemTypeCredit.IsCharge())
	assert.False(t, ItemTypeAdjustment.IsCharge())

	assert.True(t, ItemTypeCredit.IsCredit())
	assert.True(t, ItemTypeAdjustment.IsCredit())
	assert.False(t, ItemTypeRecurring.IsCredit())
}

// ============================================
// Invoice Creation Tests
// ============================================

func TestNewInvoice(t *testing.T) {
	accountID := uuid.New()
	inv, err := NewInvoice(accountID, "INV-2026-001", valueobject.USD, testNow)

	require.NoError(t, err)
	assert.Equal(t, accountID, inv.AccountID)
	assert.Equal(t, "INV-2026-001", inv.InvoiceNumber)
	assert.Equal(t, valueobject.USD, inv.Currency)
	assert.True(t, inv.Balance().IsZero())
	assert.True(t, inv.IsSettled())
	assert.Equal(t, 1, inv.GetVersion())

	events := inv.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeInvoiceCreated, events[0].EventType())
}

func TestNewInvoice_Validation(t *testing.T) {
	tests := []struct {
		name          string
		accountID     uuid.UUID
		invoiceNumber string
		currency      valueobject.Currency
		wantCode      string
	}{
		{"empty account", uuid.Nil, "INV-001", valueobject.USD, "INVALID_ACCOUNT"},
		{"empty number", uuid.New(), "", valueobject.USD, "INVALID_INVOICE_NUMBER"},
		{"empty currency", uuid.New(), "INV-001", "", "INVALID_CURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInvoice(tt.accountID, tt.invoiceNumber, tt.currency, testNow)
			require.Error(t, err)
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tt.wantCode, domainErr.Code)
		})
	}
}

// ============================================
// Item / Balance Tests
// ============================================

func TestInvoice_AddItem_BalanceDerivation(t *testing.T) {
	inv := createTestInvoice(t)

	_, err := inv.AddItem(ItemTypeRecurring, "Monthly subscription", usd(t, "249.95"), nil, nil, testNow)
	require.NoError(t, err)

	assert.Equal(t, "249.95", inv.ChargedAmount().StringFixed())
	assert.Equal(t, "249.95", inv.Balance().StringFixed())
	assert.False(t, inv.IsSettled())
}

func TestInvoice_AddItem_CreditReducesBalance(t *testing.T) {
	inv := createChargedInvoice(t, "100.00")

	_, err := inv.AddItem(ItemTypeCredit, "Goodwill credit", usd(t, "30.00"), nil, nil, testNow)
	require.NoError(t, err)

	assert.Equal(t, "70.00", inv.Balance().StringFixed())
	assert.Equal(t, "30.00", inv.CreditsApplied().StringFixed())
}

func TestInvoice_AddItem_ExternalChargeRaisesAdjustment(t *testing.T) {
	inv := createTestInvoice(t)
	inv.ClearDomainEvents()

	_, err := inv.AddItem(ItemTypeExternalCharge, "One-off consulting fee", usd(t, "10.00"), nil, nil, testNow)
	require.NoError(t, err)

	events := inv.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeInvoiceAdjustment, events[0].EventType())
	assert.Equal(t, "10.00", inv.Balance().StringFixed())
}

func TestInvoice_AddItem_CurrencyMismatch(t *testing.T) {
	inv := createTestInvoice(t)

	eur := valueobject.MustMoneyFromString("10.00", valueobject.EUR)
	_, err := inv.AddItem(ItemTypeRecurring, "Wrong currency", eur, nil, nil, testNow)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "CURRENCY_MISMATCH", domainErr.Code)
}

func TestInvoice_AddItem_InvalidCreditAmount(t *testing.T) {
	inv := createChargedInvoice(t, "100.00")

	_, err := inv.AddItem(ItemTypeCredit, "Zero credit", usd(t, "0.00"), nil, nil, testNow)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeInvalidAmount, domainErr.Code)
}

// ============================================
// ApplyPayment Tests
// ============================================

func TestInvoice_ApplyPayment(t *testing.T) {
	inv := createChargedInvoice(t, "249.95")
	inv.ClearDomainEvents()
	paymentID := uuid.New()
	transactionID := uuid.New()

	app, err := inv.ApplyPayment(paymentID, transactionID, usd(t, "10.00"), testNow)

	require.NoError(t, err)
	assert.Equal(t, paymentID, app.PaymentID)
	assert.Equal(t, transactionID, app.TransactionID)
	assert.Equal(t, "10.00", inv.GetPaidAmountMoney().StringFixed())
	assert.Equal(t, "239.95", inv.Balance().StringFixed())
	assert.False(t, inv.IsSettled())

	events := inv.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeInvoicePayment, events[0].EventType())
}

func TestInvoice_ApplyPayment_PartialPaymentsSettle(t *testing.T) {
	inv := createTestInvoice(t)
	_, err := inv.AddItem(ItemTypeExternalCharge, "Setup fee", usd(t, "10.00"), nil, nil, testNow)
	require.NoError(t, err)
	paymentID := uuid.New()

	_, err = inv.ApplyPayment(paymentID, uuid.New(), usd(t, "4.00"), testNow)
	require.NoError(t, err)
	assert.Equal(t, "6.00", inv.Balance().StringFixed())
	assert.False(t, inv.IsSettled())

	inv.ClearDomainEvents()
	_, err = inv.ApplyPayment(paymentID, uuid.New(), usd(t, "6.00"), testNow)
	require.NoError(t, err)
	assert.True(t, inv.Balance().IsZero())
	assert.True(t, inv.IsSettled())
	require.NotNil(t, inv.SettledAt)

	eventTypes := make([]string, 0)
	for _, e := range inv.GetDomainEvents() {
		eventTypes = append(eventTypes, e.EventType())
	}
	assert.Equal(t, []string{EventTypeInvoicePayment, EventTypeInvoiceSettled}, eventTypes)
}

func TestInvoice_ApplyPayment_OverpaymentRejected(t *testing.T) {
	inv := createChargedInvoice(t, "100.00")

	_, err := inv.ApplyPayment(uuid.New(), uuid.New(), usd(t, "100.01"), testNow)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeOverpaymentRejected, domainErr.Code)
	// Rejection leaves the invoice untouched
	assert.Equal(t, "100.00", inv.Balance().StringFixed())
	assert.Equal(t, 0, inv.ApplicationCount())
}

func TestInvoice_ApplyPayment_InvalidAmount(t *testing.T) {
	inv := createChargedInvoice(t, "100.00")

	_, err := inv.ApplyPayment(uuid.New(), uuid.New(), usd(t, "0.00"), testNow)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeInvalidAmount, domainErr.Code)
}

func TestInvoice_ApplyPayment_DuplicateTransaction(t *testing.T) {
	inv := createChargedInvoice(t, "100.00")
	paymentID := uuid.New()
	transactionID := uuid.New()

	_, err := inv.ApplyPayment(paymentID, transactionID, usd(t, "10.00"), testNow)
	require.NoError(t, err)

	_, err = inv.ApplyPayment(paymentID, transactionID, usd(t, "10.00"), testNow)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "DUPLICATE_APPLICATION", domainErr.Code)
	assert.Equal(t, "90.00", inv.Balance().StringFixed())
}

func TestInvoice_ApplyPayment_IncrementsVersion(t *testing.T) {
	inv := createChargedInvoice(t, "100.00")
	before := inv.GetVersion()

	_, err := inv.ApplyPayment(uuid.New(), uuid.New(), usd(t, "10.00"), testNow)
	require.NoError(t, err)
	assert.Equal(t, before+1, inv.GetVersion())
}

// ============================================
// ApplyRefund Tests
// ============================================

func TestInvoice_ApplyRefund_RestoresBalance(t *testing.T) {
	inv := createTestInvoice(t)
	_, err := inv.AddItem(ItemTypeExternalCharge, "Setup fee", usd(t, "10.00"), nil, nil, testNow)
	require.NoError(t, err)

	firstPayment := uuid.New()
	secondPayment := uuid.New()
	_, err = inv.ApplyPayment(firstPayment, uuid.New(), usd(t, "4.00"), testNow)
	require.NoError(t, err)
	_, err = inv.ApplyPayment(secondPayment, uuid.New(), usd(t, "6.00"), testNow)
	require.NoError(t, err)
	require.True(t, inv.IsSettled())

	// Refunding the first payment restores exactly its contribution even
	// though a later payment settled the invoice in the meantime.
	err = inv.ApplyRefund(firstPayment, usd(t, "4.00"), testNow)
	require.NoError(t, err)

	assert.Equal(t, "4.00", inv.Balance().StringFixed())
	assert.Equal(t, "6.00", inv.GetPaidAmountMoney().StringFixed())
	assert.False(t, inv.IsSettled())
	assert.Nil(t, inv.SettledAt)
}

func TestInvoice_ApplyRefund_ExceedsApplication(t *testing.T) {
	inv := createChargedInvoice(t, "100.00")
	paymentID := uuid.New()
	_, err := inv.ApplyPayment(paymentID, uuid.New(), usd(t, "40.00"), testNow)
	require.NoError(t, err)

	err = inv.ApplyRefund(paymentID, usd(t, "40.01"), testNow)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeRefundExceedsApplication, domainErr.Code)
	assert.Equal(t, "40.00", inv.GetPaidAmountMoney().StringFixed())
}

func TestInvoice_ApplyRefund_CrossPaymentRejected(t *testing.T) {
	inv := createChargedInvoice(t, "100.00")
	paidBy := uuid.New()
	other := uuid.New()
	_, err := inv.ApplyPayment(paidBy, uuid.New(), usd(t, "40.00"), testNow)
	require.NoError(t, err)

	// The other payment never applied anything, so nothing is refundable
	// from it.
	err = inv.ApplyRefund(other, usd(t, "10.00"), testNow)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeRefundExceedsApplication, domainErr.Code)
}

func TestInvoice_ApplyRefund_CumulativeAcrossApplications(t *testing.T) {
	inv := createChargedInvoice(t, "100.00")
	paymentID := uuid.New()
	_, err := inv.ApplyPayment(paymentID, uuid.New(), usd(t, "30.00"), testNow)
	require.NoError(t, err)
	_, err = inv.ApplyPayment(paymentID, uuid.New(), usd(t, "20.00"), testNow)
	require.NoError(t, err)

	// A single refund can span multiple applications of the same payment
	err = inv.ApplyRefund(paymentID, usd(t, "45.00"), testNow)
	require.NoError(t, err)

	assert.Equal(t, "5.00", inv.GetPaidAmountMoney().StringFixed())
	assert.Equal(t, "5.00", inv.RefundableAmount(paymentID).StringFixed())
	assert.Equal(t, "95.00", inv.Balance().StringFixed())
}

func TestInvoice_ApplyRefund_RaisesRefundVariantEvent(t *testing.T) {
	inv := createChargedInvoice(t, "100.00")
	paymentID := uuid.New()
	_, err := inv.ApplyPayment(paymentID, uuid.New(), usd(t, "40.00"), testNow)
	require.NoError(t, err)
	inv.ClearDomainEvents()

	err = inv.ApplyRefund(paymentID, usd(t, "10.00"), testNow)
	require.NoError(t, err)

	events := inv.GetDomainEvents()
	require.Len(t, events, 1)
	refundEvent, ok := events[0].(*InvoiceRefundAppliedEvent)
	require.True(t, ok)
	assert.Equal(t, EventTypeInvoicePayment, refundEvent.EventType())
	assert.True(t, refundEvent.IsRefund)
}

// ============================================
// Failure Recording Tests
// ============================================

func TestInvoice_RecordPaymentFailure(t *testing.T) {
	inv := createChargedInvoice(t, "249.95")
	inv.ClearDomainEvents()

	inv.RecordPaymentFailure(uuid.New(), uuid.New(), usd(t, "249.95"), "CARD_DECLINED", "Insufficient funds", testNow)

	// Failures never move the balance
	assert.Equal(t, "249.95", inv.Balance().StringFixed())

	events := inv.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeInvoicePaymentError, events[0].EventType())
}
