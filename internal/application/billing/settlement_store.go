package billing

import (
	"context"

	"github.com/billing/backend/internal/domain/invoice"
	"github.com/billing/backend/internal/domain/payment"
)

// SettlementStore persists the cross-aggregate outcome of a reconciliation
// step as one atomic write. A terminal gateway verdict touches both the
// payment and its invoice; writing them separately could leave a SUCCESS
// payment whose application never reached the invoice balance.
type SettlementStore interface {
	// SaveGatewayResult saves the payment and the invoice together, each
	// under its optimistic version check.
	SaveGatewayResult(ctx context.Context, p *payment.Payment, paymentVersion int, inv *invoice.Invoice, invoiceVersion int) error

	// SaveRefundOutcome saves the refund and, when balance was restored,
	// the invoice together. A nil invoice saves the refund alone.
	SaveRefundOutcome(ctx context.Context, ref *payment.Refund, inv *invoice.Invoice, invoiceVersion int) error
}
