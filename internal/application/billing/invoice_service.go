package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/billing/backend/internal/domain/invoice"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/billing/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService manages invoice creation and balance adjustments
type InvoiceService struct {
	invoiceRepo invoice.Repository
	publisher   shared.EventPublisher
	clock       shared.Clock
	logger      *zap.Logger
	locks       *InvoiceLocks
}

// NewInvoiceService creates a new InvoiceService. locks must be the same
// instance handed to every other service that mutates invoices in this
// process; a nil value creates a private one.
func NewInvoiceService(
	invoiceRepo invoice.Repository,
	publisher shared.EventPublisher,
	clock shared.Clock,
	logger *zap.Logger,
	locks *InvoiceLocks,
) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewInvoiceLocks()
	}
	return &InvoiceService{
		invoiceRepo: invoiceRepo,
		publisher:   publisher,
		clock:       clock,
		logger:      logger,
		locks:       locks,
	}
}

// InvoiceItemRequest describes one item on a new invoice
type InvoiceItemRequest struct {
	Type        invoice.ItemType
	Description string
	Amount      valueobject.Money
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// CreateInvoice creates a new invoice with the given items
func (s *InvoiceService) CreateInvoice(
	ctx context.Context,
	accountID uuid.UUID,
	invoiceNumber string,
	currency valueobject.Currency,
	items []InvoiceItemRequest,
) (*invoice.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create_invoice")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrAccountID, accountID.String(),
		telemetry.SpanAttrInvoiceNumber, invoiceNumber,
	)

	now := s.clock.Now()
	inv, err := invoice.NewInvoice(accountID, invoiceNumber, currency, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	for _, item := range items {
		if _, err := inv.AddItem(item.Type, item.Description, item.Amount, item.PeriodStart, item.PeriodEnd, now); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}

	s.publishEvents(ctx, inv.GetDomainEvents())
	inv.ClearDomainEvents()

	s.logger.Info("Invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("balance", inv.Balance().StringFixed()))

	return inv, nil
}

// AddExternalCharge appends a charge originating outside the billing
// engine to an existing invoice, increasing its balance
func (s *InvoiceService) AddExternalCharge(
	ctx context.Context,
	accountID, invoiceID uuid.UUID,
	description string,
	amount valueobject.Money,
) (*invoice.Invoice, error) {
	return s.addItem(ctx, "add_external_charge", accountID, invoiceID, invoice.ItemTypeExternalCharge, description, amount)
}

// AddCredit appends a credit to an existing invoice, reducing its balance
func (s *InvoiceService) AddCredit(
	ctx context.Context,
	accountID, invoiceID uuid.UUID,
	description string,
	amount valueobject.Money,
) (*invoice.Invoice, error) {
	return s.addItem(ctx, "add_credit", accountID, invoiceID, invoice.ItemTypeCredit, description, amount)
}

func (s *InvoiceService) addItem(
	ctx context.Context,
	operation string,
	accountID, invoiceID uuid.UUID,
	itemType invoice.ItemType,
	description string,
	amount valueobject.Money,
) (*invoice.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", operation)
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrAccountID, accountID.String(),
		telemetry.SpanAttrInvoiceID, invoiceID.String(),
		telemetry.SpanAttrAmount, amount.StringFixed(),
	)

	unlock := s.locks.Lock(invoiceID)
	defer unlock()

	inv, err := s.invoiceRepo.FindByIDForAccount(ctx, accountID, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if inv == nil {
		err := shared.NewDomainError("INVOICE_NOT_FOUND", "Invoice not found")
		telemetry.RecordError(span, err)
		return nil, err
	}

	expectedVersion := inv.GetVersion()
	if _, err := inv.AddItem(itemType, description, amount, nil, nil, s.clock.Now()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.invoiceRepo.SaveWithLock(ctx, inv, expectedVersion); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}

	s.publishEvents(ctx, inv.GetDomainEvents())
	inv.ClearDomainEvents()

	s.logger.Info("Invoice item added",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("item_type", itemType.String()),
		zap.String("amount", amount.StringFixed()),
		zap.String("balance", inv.Balance().StringFixed()))

	return inv, nil
}

// GetInvoice returns an invoice scoped to an account
func (s *InvoiceService) GetInvoice(ctx context.Context, accountID, invoiceID uuid.UUID) (*invoice.Invoice, error) {
	inv, err := s.invoiceRepo.FindByIDForAccount(ctx, accountID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if inv == nil {
		return nil, shared.NewDomainError("INVOICE_NOT_FOUND", "Invoice not found")
	}
	return inv, nil
}

// ListInvoices returns one page of an account's invoices plus the total count
func (s *InvoiceService) ListInvoices(ctx context.Context, accountID uuid.UUID, filter invoice.Filter) (shared.Paginated[invoice.Invoice], error) {
	invoices, err := s.invoiceRepo.FindByAccount(ctx, accountID, filter)
	if err != nil {
		return shared.Paginated[invoice.Invoice]{}, fmt.Errorf("failed to list invoices: %w", err)
	}
	total, err := s.invoiceRepo.CountByAccount(ctx, accountID, filter)
	if err != nil {
		return shared.Paginated[invoice.Invoice]{}, fmt.Errorf("failed to count invoices: %w", err)
	}
	return shared.NewPaginated(invoices, total, filter.Page, filter.PageSize), nil
}

// AccountBalance sums the balances of every unsettled invoice the account
// owns. The result is a point-in-time snapshot, not a serialized view
// across concurrent mutations.
func (s *InvoiceService) AccountBalance(ctx context.Context, accountID uuid.UUID, currency valueobject.Currency) (valueobject.Money, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "account_balance")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrAccountID, accountID.String())

	invoices, err := s.invoiceRepo.FindUnsettled(ctx, accountID)
	if err != nil {
		telemetry.RecordError(span, err)
		return valueobject.Money{}, fmt.Errorf("failed to list unsettled invoices: %w", err)
	}

	total := valueobject.Zero(currency)
	for i := range invoices {
		if invoices[i].Currency != currency {
			continue
		}
		total = total.MustAdd(invoices[i].Balance())
	}
	return total, nil
}

func (s *InvoiceService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish invoice events", zap.Error(err))
	}
}
