package invoice

import (
	"fmt"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
)

// Error codes for invoice domain operations
const (
	CodeInvalidAmount            = "INVALID_AMOUNT"
	CodeInvoiceAlreadySettled    = "INVOICE_ALREADY_SETTLED"
	CodeOverpaymentRejected      = "OVERPAYMENT_REJECTED"
	CodeRefundExceedsApplication = "REFUND_EXCEEDS_APPLICATION"
)

// ErrInvalidAmount indicates a zero or negative amount where a positive one is required
func ErrInvalidAmount(message string) *shared.DomainError {
	return shared.NewDomainError(CodeInvalidAmount, message)
}

// ErrInvoiceAlreadySettled indicates an operation on an invoice with no balance left
func ErrInvoiceAlreadySettled(invoiceNumber string) *shared.DomainError {
	return shared.NewDomainError(CodeInvoiceAlreadySettled,
		fmt.Sprintf("Invoice %s is already settled", invoiceNumber))
}

// ErrOverpaymentRejected indicates an attempted payment application larger than the balance
func ErrOverpaymentRejected(requested, balance valueobject.Money) *shared.DomainError {
	return shared.NewDomainError(CodeOverpaymentRejected,
		fmt.Sprintf("Requested amount %s exceeds invoice balance %s", requested.StringFixed(), balance.StringFixed()))
}

// ErrRefundExceedsApplication indicates a refund larger than what the payment applied
func ErrRefundExceedsApplication(requested, refundable valueobject.Money) *shared.DomainError {
	return shared.NewDomainError(CodeRefundExceedsApplication,
		fmt.Sprintf("Refund amount %s exceeds refundable amount %s of the originating payment", requested.StringFixed(), refundable.StringFixed()))
}
