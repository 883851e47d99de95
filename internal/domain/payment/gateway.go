package payment

import (
	"context"

	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeRequest carries everything a gateway plugin needs to attempt a
// charge. The transaction ID doubles as the idempotency key toward the
// gateway.
type ChargeRequest struct {
	AccountID     uuid.UUID
	PaymentID     uuid.UUID
	TransactionID uuid.UUID
	InvoiceID     uuid.UUID
	Amount        decimal.Decimal
	Currency      valueobject.Currency
	AttemptNumber int
}

// ChargeResult is the gateway's verdict on a charge attempt. Status must be
// a terminal transaction status. Retryable distinguishes transient failures
// worth retrying on the backoff schedule from hard declines that cannot
// succeed no matter how often they are retried.
type ChargeResult struct {
	Status            TransactionStatus
	ProcessedAmount   decimal.Decimal
	ProcessedCurrency valueobject.Currency
	GatewayReference  string
	ErrorCode         string
	ErrorMessage      string
	Retryable         bool
}

// SuccessResult builds a same-currency success verdict
func SuccessResult(amount decimal.Decimal, currency valueobject.Currency, reference string) ChargeResult {
	return ChargeResult{
		Status:            TransactionStatusSuccess,
		ProcessedAmount:   amount,
		ProcessedCurrency: currency,
		GatewayReference:  reference,
	}
}

// FailureResult builds a failure verdict
func FailureResult(errorCode, errorMessage string, retryable bool) ChargeResult {
	return ChargeResult{
		Status:       TransactionStatusFailure,
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		Retryable:    retryable,
	}
}

// PluginFailureResult builds a plugin-failure verdict. Plugin failures are
// always treated as transient.
func PluginFailureResult(errorMessage string) ChargeResult {
	return ChargeResult{
		Status:       TransactionStatusPluginFailure,
		ErrorCode:    "PLUGIN_FAILURE",
		ErrorMessage: errorMessage,
		Retryable:    true,
	}
}

// RefundRequest carries everything a gateway plugin needs to reverse part
// of a previously settled charge.
type RefundRequest struct {
	AccountID        uuid.UUID
	PaymentID        uuid.UUID
	RefundID         uuid.UUID
	GatewayReference string
	Amount           decimal.Decimal
	Currency         valueobject.Currency
}

// RefundResult is the gateway's verdict on a refund request
type RefundResult struct {
	Succeeded        bool
	GatewayReference string
	ErrorCode        string
	ErrorMessage     string
}

// GatewayPlugin is the port toward an external payment processor. Charge
// may complete synchronously by returning the result, or asynchronously by
// returning a PENDING-preserving error and delivering the verdict later
// through the callback path.
type GatewayPlugin interface {
	// Name identifies the plugin for configuration and logging
	Name() string

	// Charge attempts to settle the requested amount
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)

	// Refund reverses part of a settled charge
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}
