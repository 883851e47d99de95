package payment

import (
	"testing"
	"time"

	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func usd(t *testing.T, s string) valueobject.Money {
	t.Helper()
	return valueobject.MustMoneyFromString(s, valueobject.USD)
}

func createTestPayment(t *testing.T, amount string) *Payment {
	t.Helper()
	p, err := NewPayment(uuid.New(), uuid.New(), usd(t, amount), testNow)
	require.NoError(t, err)
	return p
}

func pendingAttempt(t *testing.T, p *Payment) *Transaction {
	t.Helper()
	txn, err := p.NewAttempt(testNow)
	require.NoError(t, err)
	return txn
}

// ============================================
// TransactionStatus Tests
// ============================================

func TestTransactionStatus_IsValid(t *testing.T) {
	tests := []struct {
		status  TransactionStatus
		isValid bool
	}{
		{TransactionStatusPending, true},
		{TransactionStatusSuccess, true},
		{TransactionStatusFailure, true},
		{TransactionStatusPluginFailure, true},
		{TransactionStatus("INVALID"), false},
		{TransactionStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.status.IsValid())
		})
	}
}

func TestTransactionStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status     TransactionStatus
		isTerminal bool
	}{
		{TransactionStatusPending, false},
		{TransactionStatusSuccess, true},
		{TransactionStatusFailure, true},
		{TransactionStatusPluginFailure, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isTerminal, tt.status.IsTerminal())
		})
	}
}

// ============================================
// Payment Creation / Attempt Tests
// ============================================

func TestNewPayment(t *testing.T) {
	accountID := uuid.New()
	invoiceID := uuid.New()

	p, err := NewPayment(accountID, invoiceID, usd(t, "249.95"), testNow)

	require.NoError(t, err)
	assert.Equal(t, accountID, p.AccountID)
	assert.Equal(t, invoiceID, p.InvoiceID)
	assert.Equal(t, "249.95", p.GetPurchasedMoney().StringFixed())
	assert.Equal(t, 0, p.AttemptCount())
	assert.False(t, p.IsSuccess())
}

func TestNewPayment_Validation(t *testing.T) {
	_, err := NewPayment(uuid.Nil, uuid.New(), usd(t, "10.00"), testNow)
	assert.ErrorIs(t, err, ErrPaymentInvalidAccountID)

	_, err = NewPayment(uuid.New(), uuid.Nil, usd(t, "10.00"), testNow)
	assert.ErrorIs(t, err, ErrPaymentInvalidInvoiceID)

	_, err = NewPayment(uuid.New(), uuid.New(), usd(t, "0.00"), testNow)
	assert.ErrorIs(t, err, ErrPaymentInvalidAmount)
}

func TestPayment_NewAttempt(t *testing.T) {
	p := createTestPayment(t, "249.95")

	txn, err := p.NewAttempt(testNow)

	require.NoError(t, err)
	assert.Equal(t, 1, txn.AttemptNumber)
	assert.Equal(t, TransactionStatusPending, txn.Status)
	assert.Equal(t, "249.95", txn.GetRequestedMoney().StringFixed())
	assert.True(t, p.HasPendingTransaction())
}

func TestPayment_NewAttempt_OnlyOneInFlight(t *testing.T) {
	p := createTestPayment(t, "10.00")
	pendingAttempt(t, p)

	_, err := p.NewAttempt(testNow)
	assert.ErrorIs(t, err, ErrPaymentAttemptInFlight)
}

func TestPayment_NewAttempt_AfterSuccessRejected(t *testing.T) {
	p := createTestPayment(t, "10.00")
	txn := pendingAttempt(t, p)
	_, err := p.RecordGatewayResult(txn.ID, SuccessResult(decimal.RequireFromString("10.00"), valueobject.USD, "gw-1"), testNow)
	require.NoError(t, err)

	_, err = p.NewAttempt(testNow)
	assert.ErrorIs(t, err, ErrPaymentAlreadySucceeded)
}

func TestPayment_NewAttempt_NumbersIncrease(t *testing.T) {
	p := createTestPayment(t, "10.00")
	txn := pendingAttempt(t, p)
	_, err := p.RecordGatewayResult(txn.ID, FailureResult("CARD_DECLINED", "declined", true), testNow)
	require.NoError(t, err)

	second, err := p.NewAttempt(testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)
}

// ============================================
// RecordGatewayResult Tests
// ============================================

func TestPayment_RecordGatewayResult_Success(t *testing.T) {
	p := createTestPayment(t, "249.95")
	txn := pendingAttempt(t, p)
	p.ClearDomainEvents()

	recorded, err := p.RecordGatewayResult(txn.ID, SuccessResult(decimal.RequireFromString("249.95"), valueobject.USD, "gw-1"), testNow)

	require.NoError(t, err)
	assert.Equal(t, TransactionStatusSuccess, recorded.Status)
	require.NotNil(t, recorded.ProcessedAmount)
	assert.Equal(t, "249.95", recorded.ProcessedAmount.StringFixed(2))
	assert.Equal(t, valueobject.USD, recorded.ProcessedCurrency)
	assert.False(t, recorded.IsCrossCurrency())
	require.NotNil(t, recorded.CompletedAt)
	assert.True(t, p.IsSuccess())

	events := p.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypePayment, events[0].EventType())
}

func TestPayment_RecordGatewayResult_CrossCurrency(t *testing.T) {
	// Requested in USD, settled in EUR. The processed figures are trusted
	// as reported; the engine performs no FX conversion.
	p := createTestPayment(t, "249.95")
	txn := pendingAttempt(t, p)

	recorded, err := p.RecordGatewayResult(txn.ID, SuccessResult(decimal.RequireFromString("225.44"), valueobject.EUR, "gw-1"), testNow)

	require.NoError(t, err)
	assert.Equal(t, TransactionStatusSuccess, recorded.Status)
	assert.True(t, recorded.IsCrossCurrency())
	assert.Equal(t, "225.44", recorded.ProcessedAmount.StringFixed(2))
	assert.Equal(t, valueobject.EUR, recorded.ProcessedCurrency)
	// What the invoice sees is still the requested USD amount
	assert.Equal(t, "249.95", p.AppliedMoney().StringFixed())
}

func TestPayment_RecordGatewayResult_SameCurrencyMismatchRejected(t *testing.T) {
	p := createTestPayment(t, "249.95")
	txn := pendingAttempt(t, p)

	_, err := p.RecordGatewayResult(txn.ID, SuccessResult(decimal.RequireFromString("10.00"), valueobject.USD, "gw-1"), testNow)

	assert.ErrorIs(t, err, ErrInvalidGatewayResult)
	assert.Equal(t, TransactionStatusPending, p.Transactions[0].Status)
}

func TestPayment_RecordGatewayResult_NonPositiveProcessedRejected(t *testing.T) {
	p := createTestPayment(t, "10.00")
	txn := pendingAttempt(t, p)

	_, err := p.RecordGatewayResult(txn.ID, SuccessResult(decimal.Zero, valueobject.USD, "gw-1"), testNow)
	assert.ErrorIs(t, err, ErrInvalidGatewayResult)
}

func TestPayment_RecordGatewayResult_Failure(t *testing.T) {
	p := createTestPayment(t, "249.95")
	txn := pendingAttempt(t, p)
	p.ClearDomainEvents()

	recorded, err := p.RecordGatewayResult(txn.ID, FailureResult("CARD_DECLINED", "Insufficient funds", true), testNow)

	require.NoError(t, err)
	assert.Equal(t, TransactionStatusFailure, recorded.Status)
	assert.Equal(t, "CARD_DECLINED", recorded.ErrorCode)
	assert.Nil(t, recorded.ProcessedAmount)
	assert.False(t, p.IsSuccess())

	events := p.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypePaymentError, events[0].EventType())
}

func TestPayment_RecordGatewayResult_PluginFailure(t *testing.T) {
	p := createTestPayment(t, "10.00")
	txn := pendingAttempt(t, p)

	recorded, err := p.RecordGatewayResult(txn.ID, PluginFailureResult("connection reset"), testNow)

	require.NoError(t, err)
	assert.Equal(t, TransactionStatusPluginFailure, recorded.Status)
	assert.Equal(t, 1, p.FailedAttemptCount())
}

func TestPayment_RecordGatewayResult_DuplicateCallbackRejected(t *testing.T) {
	p := createTestPayment(t, "10.00")
	txn := pendingAttempt(t, p)
	_, err := p.RecordGatewayResult(txn.ID, SuccessResult(decimal.RequireFromString("10.00"), valueobject.USD, "gw-1"), testNow)
	require.NoError(t, err)
	versionAfterFirst := p.GetVersion()
	p.ClearDomainEvents()

	// The same callback delivered again must not mutate or raise events
	_, err = p.RecordGatewayResult(txn.ID, SuccessResult(decimal.RequireFromString("10.00"), valueobject.USD, "gw-1"), testNow)

	assert.ErrorIs(t, err, ErrTransactionAlreadyTerminal)
	assert.Equal(t, versionAfterFirst, p.GetVersion())
	assert.Empty(t, p.GetDomainEvents())
}

func TestPayment_RecordGatewayResult_UnknownTransaction(t *testing.T) {
	p := createTestPayment(t, "10.00")
	pendingAttempt(t, p)

	_, err := p.RecordGatewayResult(uuid.New(), FailureResult("X", "x", false), testNow)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestPayment_RecordGatewayResult_NonTerminalStatusRejected(t *testing.T) {
	p := createTestPayment(t, "10.00")
	txn := pendingAttempt(t, p)

	_, err := p.RecordGatewayResult(txn.ID, ChargeResult{Status: TransactionStatusPending}, testNow)
	assert.ErrorIs(t, err, ErrInvalidGatewayResult)
}

// ============================================
// Retry Scheduling Tests
// ============================================

func TestPayment_ScheduleRetry(t *testing.T) {
	p := createTestPayment(t, "10.00")
	txn := pendingAttempt(t, p)
	_, err := p.RecordGatewayResult(txn.ID, FailureResult("CARD_DECLINED", "declined", true), testNow)
	require.NoError(t, err)
	p.ClearDomainEvents()

	retryAt := testNow.Add(8 * 24 * time.Hour)
	p.ScheduleRetry(retryAt, testNow)

	require.NotNil(t, p.NextRetryAt)
	assert.Equal(t, retryAt, *p.NextRetryAt)

	events := p.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypePaymentRetryScheduled, events[0].EventType())
}

func TestPayment_NewAttempt_ClearsScheduledRetry(t *testing.T) {
	p := createTestPayment(t, "10.00")
	txn := pendingAttempt(t, p)
	_, err := p.RecordGatewayResult(txn.ID, FailureResult("CARD_DECLINED", "declined", true), testNow)
	require.NoError(t, err)
	p.ScheduleRetry(testNow.Add(8*24*time.Hour), testNow)

	_, err = p.NewAttempt(testNow.Add(8 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Nil(t, p.NextRetryAt)
}

func TestRetryPolicy_NextRetryTime(t *testing.T) {
	policy := DefaultRetryPolicy()
	failedAt := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		failedAttempts int
		want           *time.Time
	}{
		{"first failure retries at day 8", 1, timePtr(failedAt.AddDate(0, 0, 8))},
		{"second failure retries at day 8", 2, timePtr(failedAt.AddDate(0, 0, 8))},
		{"third failure retries at day 8", 3, timePtr(failedAt.AddDate(0, 0, 8))},
		{"fourth failure exhausts the schedule", 4, nil},
		{"zero failures is not retryable", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.NextRetryTime(tt.failedAttempts, failedAt)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// ============================================
// Refund Tests
// ============================================

func TestNewRefund(t *testing.T) {
	accountID := uuid.New()
	r, err := NewRefund(accountID, uuid.New(), uuid.New(), usd(t, "4.00"), testNow)

	require.NoError(t, err)
	assert.Equal(t, RefundStatusPending, r.Status)
	assert.Equal(t, "4.00", r.GetAmountMoney().StringFixed())
}

func TestRefund_Complete(t *testing.T) {
	r, err := NewRefund(uuid.New(), uuid.New(), uuid.New(), usd(t, "4.00"), testNow)
	require.NoError(t, err)

	err = r.Complete("gw-refund-1", testNow)

	require.NoError(t, err)
	assert.Equal(t, RefundStatusSuccess, r.Status)
	require.NotNil(t, r.CompletedAt)

	events := r.GetDomainEvents()
	require.Len(t, events, 1)
	refunded, ok := events[0].(*PaymentRefundedEvent)
	require.True(t, ok)
	assert.Equal(t, EventTypePayment, refunded.EventType())
	assert.True(t, refunded.IsRefund)
}

func TestRefund_Complete_Idempotent(t *testing.T) {
	r, err := NewRefund(uuid.New(), uuid.New(), uuid.New(), usd(t, "4.00"), testNow)
	require.NoError(t, err)
	require.NoError(t, r.Complete("gw-refund-1", testNow))
	versionAfterFirst := r.GetVersion()

	err = r.Complete("gw-refund-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, versionAfterFirst, r.GetVersion())
}

func TestRefund_Fail(t *testing.T) {
	r, err := NewRefund(uuid.New(), uuid.New(), uuid.New(), usd(t, "4.00"), testNow)
	require.NoError(t, err)

	err = r.Fail("REFUND_REJECTED", "original charge disputed", testNow)

	require.NoError(t, err)
	assert.Equal(t, RefundStatusFailed, r.Status)

	events := r.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypePaymentError, events[0].EventType())
}

func TestRefund_Fail_AfterTerminalRejected(t *testing.T) {
	r, err := NewRefund(uuid.New(), uuid.New(), uuid.New(), usd(t, "4.00"), testNow)
	require.NoError(t, err)
	require.NoError(t, r.Complete("gw-refund-1", testNow))

	err = r.Fail("X", "x", testNow)
	assert.ErrorIs(t, err, ErrRefundNotCompletable)
}
