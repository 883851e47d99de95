package payment

import "errors"

var (
	// Payment creation errors
	ErrPaymentInvalidAccountID = errors.New("payment: invalid account ID")
	ErrPaymentInvalidInvoiceID = errors.New("payment: invalid invoice ID")
	ErrPaymentInvalidAmount    = errors.New("payment: invalid payment amount")

	// Attempt lifecycle errors
	ErrPaymentAlreadySucceeded    = errors.New("payment: payment already succeeded")
	ErrPaymentAttemptInFlight     = errors.New("payment: an attempt is already in flight")
	ErrTransactionNotFound        = errors.New("payment: transaction not found")
	ErrTransactionAlreadyTerminal = errors.New("payment: transaction already reached a terminal status")
	ErrInvalidGatewayResult       = errors.New("payment: invalid gateway result")
	ErrRetriesExhausted           = errors.New("payment: retry schedule exhausted")

	// Refund errors
	ErrRefundInvalidPayment = errors.New("refund: invalid originating payment reference")
	ErrRefundInvalidAmount  = errors.New("refund: invalid refund amount")
	ErrRefundNotCompletable = errors.New("refund: refund is not in a completable state")

	// Gateway errors
	ErrGatewayNotConfigured   = errors.New("payment: gateway not configured")
	ErrGatewayUnavailable     = errors.New("payment: gateway temporarily unavailable")
	ErrGatewayInvalidCallback = errors.New("payment: callback references an unknown transaction")
)
