package billing

import (
	"context"
	"testing"

	"github.com/billing/backend/internal/domain/invoice"
	"github.com/billing/backend/internal/domain/payment"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenerUSD(s string) valueobject.Money {
	return valueobject.MustMoneyFromString(s, valueobject.USD)
}

func TestCompletionListener_CountsSignals(t *testing.T) {
	listener := NewCompletionListener(nil)
	ctx := context.Background()

	accountID := uuid.New()
	inv, err := invoice.NewInvoice(accountID, "INV-7001", valueobject.USD, fixtureStart)
	require.NoError(t, err)
	_, err = inv.AddItem(invoice.ItemTypeRecurring, "Monthly plan", listenerUSD("100.00"), nil, nil, fixtureStart)
	require.NoError(t, err)

	p, err := payment.NewPayment(accountID, inv.ID, listenerUSD("100.00"), fixtureStart)
	require.NoError(t, err)
	txn, err := p.NewAttempt(fixtureStart)
	require.NoError(t, err)
	_, err = p.RecordGatewayResult(txn.ID, payment.SuccessResult(listenerUSD("100.00").Amount(), valueobject.USD, "ref-1"), fixtureStart)
	require.NoError(t, err)
	_, err = inv.ApplyPayment(p.ID, txn.ID, listenerUSD("100.00"), fixtureStart)
	require.NoError(t, err)

	for _, event := range p.GetDomainEvents() {
		require.NoError(t, listener.Handle(ctx, event))
	}
	for _, event := range inv.GetDomainEvents() {
		require.NoError(t, listener.Handle(ctx, event))
	}

	assert.EqualValues(t, 1, listener.PaymentCount())
	assert.EqualValues(t, 1, listener.InvoicePaymentCount())
	assert.EqualValues(t, 1, listener.SettledCount())
	assert.Zero(t, listener.PaymentErrorCount())
	assert.Zero(t, listener.InvoicePaymentErrorCount())
}

func TestCompletionListener_CountsFailureSignals(t *testing.T) {
	listener := NewCompletionListener(nil)
	ctx := context.Background()

	accountID := uuid.New()
	inv, err := invoice.NewInvoice(accountID, "INV-7002", valueobject.USD, fixtureStart)
	require.NoError(t, err)
	_, err = inv.AddItem(invoice.ItemTypeRecurring, "Monthly plan", listenerUSD("100.00"), nil, nil, fixtureStart)
	require.NoError(t, err)
	inv.ClearDomainEvents()

	p, err := payment.NewPayment(accountID, inv.ID, listenerUSD("100.00"), fixtureStart)
	require.NoError(t, err)
	txn, err := p.NewAttempt(fixtureStart)
	require.NoError(t, err)
	_, err = p.RecordGatewayResult(txn.ID, payment.FailureResult("CARD_DECLINED", "insufficient funds", false), fixtureStart)
	require.NoError(t, err)
	inv.RecordPaymentFailure(p.ID, txn.ID, listenerUSD("100.00"), "CARD_DECLINED", "insufficient funds", fixtureStart)

	for _, event := range p.GetDomainEvents() {
		require.NoError(t, listener.Handle(ctx, event))
	}
	for _, event := range inv.GetDomainEvents() {
		require.NoError(t, listener.Handle(ctx, event))
	}

	assert.EqualValues(t, 1, listener.PaymentErrorCount())
	assert.EqualValues(t, 1, listener.InvoicePaymentErrorCount())
	assert.Zero(t, listener.PaymentCount())
}

func TestCompletionListener_EventTypes(t *testing.T) {
	listener := NewCompletionListener(nil)
	types := listener.EventTypes()
	assert.Contains(t, types, "PAYMENT")
	assert.Contains(t, types, "PAYMENT_ERROR")
	assert.Contains(t, types, "INVOICE_PAYMENT")
	assert.Contains(t, types, "INVOICE_PAYMENT_ERROR")
	assert.Contains(t, types, "INVOICE_ADJUSTMENT")
}
