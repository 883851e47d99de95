package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/billing/backend/internal/domain/invoice"
	"github.com/billing/backend/internal/domain/payment"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/billing/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrPaymentNotFound is returned when the referenced payment does not exist
	ErrPaymentNotFound = errors.New("billing: payment not found")
	// ErrInvoiceNotFound is returned when the referenced invoice does not exist
	ErrInvoiceNotFound = errors.New("billing: invoice not found")
	// ErrNoSettledTransaction is returned when a refund references a payment that never settled
	ErrNoSettledTransaction = errors.New("billing: payment has no settled transaction to refund")
)

// PaymentService orchestrates the payment lifecycle: it validates requested
// amounts against invoice balances, drives gateway attempts through the
// transaction state machine, reconciles settled amounts back onto invoices,
// and schedules retries for transient failures.
//
// Mutations of a given invoice are serialized through per-invoice locks;
// the gateway call itself happens outside the lock so a slow processor
// never blocks unrelated requests against the same invoice.
type PaymentService struct {
	invoiceRepo invoice.Repository
	paymentRepo payment.Repository
	refundRepo  payment.RefundRepository
	settlements SettlementStore
	gateway     payment.GatewayPlugin
	retryPolicy payment.RetryPolicy
	clock       shared.Clock
	publisher   shared.EventPublisher
	logger      *zap.Logger
	locks       *InvoiceLocks
}

// PaymentServiceConfig holds dependencies for the payment service
type PaymentServiceConfig struct {
	InvoiceRepo    invoice.Repository
	PaymentRepo    payment.Repository
	RefundRepo     payment.RefundRepository
	Settlements    SettlementStore
	Gateway        payment.GatewayPlugin
	RetryPolicy    payment.RetryPolicy
	Clock          shared.Clock
	EventPublisher shared.EventPublisher
	Logger         *zap.Logger
	// Locks must be the same instance handed to every other service that
	// mutates invoices in this process. A nil value creates a private one.
	Locks *InvoiceLocks
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(config PaymentServiceConfig) *PaymentService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locks := config.Locks
	if locks == nil {
		locks = NewInvoiceLocks()
	}
	return &PaymentService{
		invoiceRepo: config.InvoiceRepo,
		paymentRepo: config.PaymentRepo,
		refundRepo:  config.RefundRepo,
		settlements: config.Settlements,
		gateway:     config.Gateway,
		retryPolicy: config.RetryPolicy,
		clock:       config.Clock,
		publisher:   config.EventPublisher,
		logger:      logger,
		locks:       locks,
	}
}

// RequestPayment validates the requested amount against the invoice
// balance, opens a payment attempt and charges the gateway. Validation
// errors are returned synchronously and leave no trace; gateway failures
// are recorded as terminal transactions and surfaced through events.
func (s *PaymentService) RequestPayment(
	ctx context.Context,
	accountID, invoiceID uuid.UUID,
	amount valueobject.Money,
) (*payment.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "request_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrAccountID, accountID.String(),
		telemetry.SpanAttrInvoiceID, invoiceID.String(),
		telemetry.SpanAttrAmount, amount.StringFixed(),
	)

	p, txn, err := s.openAttempt(ctx, accountID, invoiceID, amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrPaymentID, p.ID.String())

	if err := s.charge(ctx, p, txn); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return s.paymentRepo.FindByID(ctx, p.ID)
}

// openAttempt validates under the invoice lock and persists a new payment
// with one PENDING transaction
func (s *PaymentService) openAttempt(
	ctx context.Context,
	accountID, invoiceID uuid.UUID,
	amount valueobject.Money,
) (*payment.Payment, *payment.Transaction, error) {
	unlock := s.locks.Lock(invoiceID)
	defer unlock()

	inv, err := s.invoiceRepo.FindByIDForAccount(ctx, accountID, invoiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if inv == nil {
		return nil, nil, ErrInvoiceNotFound
	}

	if amount.Currency() != inv.Currency {
		return nil, nil, shared.NewDomainError("CURRENCY_MISMATCH",
			fmt.Sprintf("Requested currency %s does not match invoice currency %s", amount.Currency(), inv.Currency))
	}
	if !amount.IsPositive() {
		return nil, nil, invoice.ErrInvalidAmount("Requested amount must be positive")
	}
	if inv.IsSettled() {
		return nil, nil, invoice.ErrInvoiceAlreadySettled(inv.InvoiceNumber)
	}
	balance := inv.Balance()
	if exceeds, _ := amount.Round().GreaterThan(balance.Round()); exceeds {
		return nil, nil, invoice.ErrOverpaymentRejected(amount, balance)
	}

	now := s.clock.Now()
	p, err := payment.NewPayment(accountID, invoiceID, amount, now)
	if err != nil {
		return nil, nil, err
	}
	txn, err := p.NewAttempt(now)
	if err != nil {
		return nil, nil, err
	}

	if err := s.paymentRepo.Save(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("failed to save payment: %w", err)
	}
	return p, txn, nil
}

// charge calls the gateway outside the invoice lock and feeds the verdict
// back through HandleGatewayResult. A plugin error is itself a terminal
// PLUGIN_FAILURE verdict for the attempt.
func (s *PaymentService) charge(ctx context.Context, p *payment.Payment, txn *payment.Transaction) error {
	result, err := s.gateway.Charge(ctx, payment.ChargeRequest{
		AccountID:     p.AccountID,
		PaymentID:     p.ID,
		TransactionID: txn.ID,
		InvoiceID:     p.InvoiceID,
		Amount:        txn.RequestedAmount,
		Currency:      txn.RequestedCurrency,
		AttemptNumber: txn.AttemptNumber,
	})
	if err != nil {
		s.logger.Warn("Gateway plugin error",
			zap.String("payment_id", p.ID.String()),
			zap.String("transaction_id", txn.ID.String()),
			zap.Error(err))
		result = payment.PluginFailureResult(err.Error())
	}

	return s.HandleGatewayResult(ctx, p.ID, txn.ID, result)
}

// HandleGatewayResult applies a gateway verdict to a pending transaction
// and reconciles the invoice. Results are applied at most once: a callback
// for a transaction that is already terminal is logged and dropped without
// mutating anything or raising events.
func (s *PaymentService) HandleGatewayResult(
	ctx context.Context,
	paymentID, transactionID uuid.UUID,
	result payment.ChargeResult,
) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "handle_gateway_result")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, paymentID.String(),
		telemetry.SpanAttrTransactionID, transactionID.String(),
		"status", string(result.Status),
	)

	p, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if p == nil {
		telemetry.RecordError(span, ErrPaymentNotFound)
		return ErrPaymentNotFound
	}

	unlock := s.locks.Lock(p.InvoiceID)
	defer unlock()

	// Reload under the lock; a concurrent callback may have won the race
	p, err = s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to get payment: %w", err)
	}

	expectedVersion := p.GetVersion()
	txn, err := p.RecordGatewayResult(transactionID, result, s.clock.Now())
	if err != nil {
		if errors.Is(err, payment.ErrTransactionAlreadyTerminal) {
			s.logger.Info("Duplicate gateway callback dropped",
				zap.String("payment_id", paymentID.String()),
				zap.String("transaction_id", transactionID.String()))
			return nil
		}
		telemetry.RecordError(span, err)
		return err
	}

	inv, err := s.invoiceRepo.FindByID(ctx, p.InvoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to get invoice: %w", err)
	}
	if inv == nil {
		telemetry.RecordError(span, ErrInvoiceNotFound)
		return ErrInvoiceNotFound
	}
	invoiceVersion := inv.GetVersion()

	if txn.Status == payment.TransactionStatusSuccess {
		// The invoice is always credited with the requested invoice-currency
		// amount, regardless of the currency the gateway settled in.
		if _, err := inv.ApplyPayment(p.ID, txn.ID, p.AppliedMoney(), s.clock.Now()); err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("failed to reconcile settled payment %s: %w", p.ID, err)
		}
	} else {
		s.scheduleRetry(p, txn, result)
		inv.RecordPaymentFailure(p.ID, txn.ID, p.AppliedMoney(), txn.ErrorCode, txn.ErrorMessage, s.clock.Now())
	}

	// One atomic write: a terminal verdict must never be persisted without
	// its invoice application. A failure leaves the attempt PENDING so a
	// redelivered callback replays the whole step.
	if err := s.settlements.SaveGatewayResult(ctx, p, expectedVersion, inv, invoiceVersion); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to save settlement: %w", err)
	}

	s.publishEvents(ctx, p.GetDomainEvents())
	s.publishEvents(ctx, inv.GetDomainEvents())
	p.ClearDomainEvents()
	inv.ClearDomainEvents()

	s.logger.Info("Gateway result applied",
		zap.String("payment_id", p.ID.String()),
		zap.String("transaction_id", txn.ID.String()),
		zap.String("status", txn.Status.String()),
		zap.String("invoice_balance", inv.Balance().StringFixed()))

	return nil
}

// scheduleRetry queues the next attempt after a retryable failure. Hard
// declines and exhausted schedules leave the payment without a retry time.
func (s *PaymentService) scheduleRetry(p *payment.Payment, txn *payment.Transaction, result payment.ChargeResult) {
	now := s.clock.Now()
	if !result.Retryable {
		p.ClearRetry(now)
		return
	}

	retryAt := s.retryPolicy.NextRetryTime(p.FailedAttemptCount(), now)
	if retryAt == nil {
		s.logger.Warn("Payment retries exhausted",
			zap.String("payment_id", p.ID.String()),
			zap.Int("failed_attempts", p.FailedAttemptCount()))
		p.ClearRetry(now)
		return
	}

	p.ScheduleRetry(*retryAt, now)
	s.logger.Info("Payment retry scheduled",
		zap.String("payment_id", p.ID.String()),
		zap.String("transaction_id", txn.ID.String()),
		zap.Time("retry_at", *retryAt))
}

// RetryPayment opens a new attempt for a previously failed payment and
// charges the gateway again
func (s *PaymentService) RetryPayment(ctx context.Context, paymentID uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "retry_payment")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, paymentID.String())

	p, txn, err := s.reopenAttempt(ctx, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	return s.charge(ctx, p, txn)
}

func (s *PaymentService) reopenAttempt(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, *payment.Transaction, error) {
	p, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if p == nil {
		return nil, nil, ErrPaymentNotFound
	}

	unlock := s.locks.Lock(p.InvoiceID)
	defer unlock()

	p, err = s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get payment: %w", err)
	}

	expectedVersion := p.GetVersion()
	txn, err := p.NewAttempt(s.clock.Now())
	if err != nil {
		return nil, nil, err
	}

	if err := s.paymentRepo.SaveWithLock(ctx, p, expectedVersion); err != nil {
		return nil, nil, fmt.Errorf("failed to save payment: %w", err)
	}
	return p, txn, nil
}

// ProcessDueRetries retries every payment whose scheduled retry time has
// passed. Individual failures are logged and do not abort the batch; the
// return value is the number of payments attempted.
func (s *PaymentService) ProcessDueRetries(ctx context.Context, limit int) (int, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "process_due_retries")
	defer span.End()

	due, err := s.paymentRepo.FindDueForRetry(ctx, s.clock.Now(), limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("failed to list due retries: %w", err)
	}

	processed := 0
	for i := range due {
		if err := s.RetryPayment(ctx, due[i].ID); err != nil {
			s.logger.Error("Payment retry failed",
				zap.String("payment_id", due[i].ID.String()),
				zap.Error(err))
			continue
		}
		processed++
	}

	telemetry.SetAttribute(span, "processed", processed)
	return processed, nil
}

// RequestRefund reverses part of a settled payment. The refundable amount
// is bounded by what this payment applied to its invoice minus prior
// refunds of it; a later payment settling the same invoice never extends
// that bound. Gateway rejection of the refund is a business outcome
// surfaced on the returned refund and through events, not an error.
func (s *PaymentService) RequestRefund(
	ctx context.Context,
	accountID, paymentID uuid.UUID,
	amount valueobject.Money,
) (*payment.Refund, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "request_refund")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrAccountID, accountID.String(),
		telemetry.SpanAttrPaymentID, paymentID.String(),
		telemetry.SpanAttrAmount, amount.StringFixed(),
	)

	p, settled, refund, err := s.openRefund(ctx, accountID, paymentID, amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	// The gateway call happens outside the invoice lock, like charge
	result, err := s.gateway.Refund(ctx, payment.RefundRequest{
		AccountID:        accountID,
		PaymentID:        p.ID,
		RefundID:         refund.ID,
		GatewayReference: settled.GatewayReference,
		Amount:           amount.Amount(),
		Currency:         amount.Currency(),
	})
	if err != nil {
		result = payment.RefundResult{
			Succeeded:    false,
			ErrorCode:    "PLUGIN_FAILURE",
			ErrorMessage: err.Error(),
		}
	}

	refund, err = s.settleRefund(ctx, p, refund, amount, result)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return refund, nil
}

// openRefund validates the refund bound under the invoice lock and
// persists the refund as PENDING before the gateway is involved
func (s *PaymentService) openRefund(
	ctx context.Context,
	accountID, paymentID uuid.UUID,
	amount valueobject.Money,
) (*payment.Payment, *payment.Transaction, *payment.Refund, error) {
	p, err := s.paymentRepo.FindByIDForAccount(ctx, accountID, paymentID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if p == nil {
		return nil, nil, nil, ErrPaymentNotFound
	}

	settled := s.settledTransaction(p)
	if settled == nil {
		return nil, nil, nil, ErrNoSettledTransaction
	}

	unlock := s.locks.Lock(p.InvoiceID)
	defer unlock()

	inv, err := s.invoiceRepo.FindByID(ctx, p.InvoiceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if inv == nil {
		return nil, nil, nil, ErrInvoiceNotFound
	}

	refundable := inv.RefundableAmount(p.ID)
	if exceeds, _ := amount.Round().GreaterThan(refundable.Round()); exceeds {
		return nil, nil, nil, invoice.ErrRefundExceedsApplication(amount, refundable)
	}

	refund, err := payment.NewRefund(accountID, p.ID, p.InvoiceID, amount, s.clock.Now())
	if err != nil {
		return nil, nil, nil, err
	}
	if err := s.refundRepo.Save(ctx, refund); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to save refund: %w", err)
	}
	return p, settled, refund, nil
}

// settleRefund applies the gateway verdict under the invoice lock. The
// refund record and any restored balance are persisted in one atomic
// write; the bound is re-checked by the invoice itself since another
// refund may have raced during the gateway call.
func (s *PaymentService) settleRefund(
	ctx context.Context,
	p *payment.Payment,
	refund *payment.Refund,
	amount valueobject.Money,
	result payment.RefundResult,
) (*payment.Refund, error) {
	unlock := s.locks.Lock(p.InvoiceID)
	defer unlock()

	now := s.clock.Now()
	var inv *invoice.Invoice
	invoiceVersion := 0

	if result.Succeeded {
		var err error
		inv, err = s.invoiceRepo.FindByID(ctx, p.InvoiceID)
		if err != nil {
			return nil, fmt.Errorf("failed to get invoice: %w", err)
		}
		if inv == nil {
			return nil, ErrInvoiceNotFound
		}
		invoiceVersion = inv.GetVersion()
		if err := refund.Complete(result.GatewayReference, now); err != nil {
			return nil, err
		}
		if err := inv.ApplyRefund(p.ID, amount, now); err != nil {
			return nil, err
		}
	} else {
		if err := refund.Fail(result.ErrorCode, result.ErrorMessage, now); err != nil {
			return nil, err
		}
	}

	if err := s.settlements.SaveRefundOutcome(ctx, refund, inv, invoiceVersion); err != nil {
		return nil, fmt.Errorf("failed to save refund outcome: %w", err)
	}

	s.publishEvents(ctx, refund.GetDomainEvents())
	refund.ClearDomainEvents()

	fields := []zap.Field{
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_id", p.ID.String()),
		zap.String("status", refund.Status.String()),
	}
	if inv != nil {
		s.publishEvents(ctx, inv.GetDomainEvents())
		inv.ClearDomainEvents()
		fields = append(fields, zap.String("invoice_balance", inv.Balance().StringFixed()))
	}
	s.logger.Info("Refund processed", fields...)

	return refund, nil
}

// GetPayment returns a payment scoped to an account
func (s *PaymentService) GetPayment(ctx context.Context, accountID, paymentID uuid.UUID) (*payment.Payment, error) {
	p, err := s.paymentRepo.FindByIDForAccount(ctx, accountID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

// ListPayments returns all payments of an account ordered by creation time
func (s *PaymentService) ListPayments(ctx context.Context, accountID uuid.UUID, filter payment.Filter) ([]payment.Payment, error) {
	return s.paymentRepo.FindByAccount(ctx, accountID, filter)
}

func (s *PaymentService) settledTransaction(p *payment.Payment) *payment.Transaction {
	for i := range p.Transactions {
		if p.Transactions[i].Status == payment.TransactionStatusSuccess {
			return &p.Transactions[i]
		}
	}
	return nil
}

func (s *PaymentService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish billing events", zap.Error(err))
	}
}
