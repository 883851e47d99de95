package billing

import (
	"context"
	"sync/atomic"

	"github.com/billing/backend/internal/domain/invoice"
	"github.com/billing/backend/internal/domain/payment"
	"github.com/billing/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// CompletionListener consumes the completion signals emitted when a payment
// operation finishes against both the payment and its invoice. It is the
// subscriber side of the bus that callers block on to observe outcomes.
type CompletionListener struct {
	logger *zap.Logger

	payments       atomic.Int64
	paymentErrors  atomic.Int64
	invoicePays    atomic.Int64
	invoiceErrors  atomic.Int64
	adjustments    atomic.Int64
	settledCounter atomic.Int64
}

// NewCompletionListener creates a listener for payment completion signals
func NewCompletionListener(logger *zap.Logger) *CompletionListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionListener{logger: logger}
}

var _ shared.EventHandler = (*CompletionListener)(nil)

// EventTypes returns the completion signal types this listener consumes
func (l *CompletionListener) EventTypes() []string {
	return []string{
		payment.EventTypePayment,
		payment.EventTypePaymentError,
		invoice.EventTypeInvoicePayment,
		invoice.EventTypeInvoicePaymentError,
		invoice.EventTypeInvoiceAdjustment,
		invoice.EventTypeInvoiceSettled,
	}
}

// Handle records and logs a completion signal
func (l *CompletionListener) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.String("account_id", event.AccountID().String()),
	}

	switch event.EventType() {
	case payment.EventTypePayment:
		l.payments.Add(1)
		l.logger.Info("Payment completed", fields...)
	case payment.EventTypePaymentError:
		l.paymentErrors.Add(1)
		l.logger.Warn("Payment failed", fields...)
	case invoice.EventTypeInvoicePayment:
		l.invoicePays.Add(1)
		l.logger.Info("Invoice payment applied", fields...)
	case invoice.EventTypeInvoicePaymentError:
		l.invoiceErrors.Add(1)
		l.logger.Warn("Invoice payment failed", fields...)
	case invoice.EventTypeInvoiceAdjustment:
		l.adjustments.Add(1)
		l.logger.Info("Invoice adjusted", fields...)
	case invoice.EventTypeInvoiceSettled:
		l.settledCounter.Add(1)
		l.logger.Info("Invoice settled", fields...)
	default:
		l.logger.Debug("Ignoring unrelated event", fields...)
	}

	return nil
}

// PaymentCount returns the number of PAYMENT signals seen
func (l *CompletionListener) PaymentCount() int64 { return l.payments.Load() }

// PaymentErrorCount returns the number of PAYMENT_ERROR signals seen
func (l *CompletionListener) PaymentErrorCount() int64 { return l.paymentErrors.Load() }

// InvoicePaymentCount returns the number of INVOICE_PAYMENT signals seen
func (l *CompletionListener) InvoicePaymentCount() int64 { return l.invoicePays.Load() }

// InvoicePaymentErrorCount returns the number of INVOICE_PAYMENT_ERROR signals seen
func (l *CompletionListener) InvoicePaymentErrorCount() int64 { return l.invoiceErrors.Load() }

// AdjustmentCount returns the number of INVOICE_ADJUSTMENT signals seen
func (l *CompletionListener) AdjustmentCount() int64 { return l.adjustments.Load() }

// SettledCount returns the number of INVOICE_SETTLED signals seen
func (l *CompletionListener) SettledCount() int64 { return l.settledCounter.Load() }
