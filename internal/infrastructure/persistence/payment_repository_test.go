package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/billing/backend/internal/domain/payment"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/billing/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupPaymentTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.PaymentModel{}, &models.RefundModel{})
	require.NoError(t, err)

	return db
}

func newStoredPayment(t *testing.T, repo *GormPaymentRepository, accountID, invoiceID uuid.UUID) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(accountID, invoiceID, valueobject.MustMoneyFromString("249.95", valueobject.USD), repoTestNow)
	require.NoError(t, err)
	_, err = p.NewAttempt(repoTestNow)
	require.NoError(t, err)
	p.ClearDomainEvents()

	require.NoError(t, repo.Save(context.Background(), p))
	return p
}

func TestGormPaymentRepository_SaveAndFind(t *testing.T) {
	db := setupPaymentTestDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()

	accountID := uuid.New()
	invoiceID := uuid.New()
	p := newStoredPayment(t, repo, accountID, invoiceID)

	t.Run("finds by ID", func(t *testing.T) {
		found, err := repo.FindByID(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, p.ID, found.ID)
		assert.Equal(t, invoiceID, found.InvoiceID)
		assert.Equal(t, 1, found.AttemptCount())
		assert.Equal(t, payment.TransactionStatusPending, found.LastTransaction().Status)
	})

	t.Run("finds by ID for account", func(t *testing.T) {
		found, err := repo.FindByIDForAccount(ctx, accountID, p.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, p.ID, found.ID)
	})

	t.Run("wrong account yields nothing", func(t *testing.T) {
		found, err := repo.FindByIDForAccount(ctx, uuid.New(), p.ID)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestGormPaymentRepository_RoundTripsTransactions(t *testing.T) {
	db := setupPaymentTestDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()

	p := newStoredPayment(t, repo, uuid.New(), uuid.New())
	txn := p.LastTransaction()

	_, err := p.RecordGatewayResult(txn.ID, payment.SuccessResult(decimal.RequireFromString("249.95"), valueobject.USD, "ref-1"), repoTestNow)
	require.NoError(t, err)
	p.ClearDomainEvents()
	require.NoError(t, repo.Save(ctx, p))

	found, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.IsSuccess())
	assert.Equal(t, "ref-1", found.LastTransaction().GatewayReference)
	require.NotNil(t, found.LastTransaction().ProcessedAmount)
	assert.Equal(t, "249.95", found.LastTransaction().ProcessedAmount.StringFixed(2))
}

func TestGormPaymentRepository_FindByInvoice(t *testing.T) {
	db := setupPaymentTestDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()

	invoiceID := uuid.New()
	newStoredPayment(t, repo, uuid.New(), invoiceID)
	newStoredPayment(t, repo, uuid.New(), invoiceID)
	newStoredPayment(t, repo, uuid.New(), uuid.New())

	payments, err := repo.FindByInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestGormPaymentRepository_FindDueForRetry(t *testing.T) {
	db := setupPaymentTestDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()

	due := newStoredPayment(t, repo, uuid.New(), uuid.New())
	due.ScheduleRetry(repoTestNow.Add(24*time.Hour), repoTestNow)
	due.ClearDomainEvents()
	require.NoError(t, repo.Save(ctx, due))

	notYet := newStoredPayment(t, repo, uuid.New(), uuid.New())
	notYet.ScheduleRetry(repoTestNow.Add(8*24*time.Hour), repoTestNow)
	notYet.ClearDomainEvents()
	require.NoError(t, repo.Save(ctx, notYet))

	newStoredPayment(t, repo, uuid.New(), uuid.New())

	t.Run("returns only payments whose retry time has passed", func(t *testing.T) {
		payments, err := repo.FindDueForRetry(ctx, repoTestNow.Add(48*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, due.ID, payments[0].ID)
	})

	t.Run("respects the limit", func(t *testing.T) {
		payments, err := repo.FindDueForRetry(ctx, repoTestNow.Add(30*24*time.Hour), 1)
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})
}

func TestGormPaymentRepository_SaveWithLock(t *testing.T) {
	db := setupPaymentTestDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()

	p := newStoredPayment(t, repo, uuid.New(), uuid.New())
	p.ScheduleRetry(repoTestNow.Add(8*24*time.Hour), repoTestNow)
	p.ClearDomainEvents()
	require.NoError(t, repo.Save(ctx, p))

	t.Run("persists a cleared retry schedule", func(t *testing.T) {
		expectedVersion := p.Version
		p.ClearRetry(repoTestNow)
		p.IncrementVersion()

		err := repo.SaveWithLock(ctx, p, expectedVersion)
		require.NoError(t, err)

		found, err := repo.FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Nil(t, found.NextRetryAt)
		assert.Equal(t, p.Version, found.Version)
	})

	t.Run("rejects stale version", func(t *testing.T) {
		err := repo.SaveWithLock(ctx, p, p.Version+3)
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "OPTIMISTIC_LOCK_ERROR", domainErr.Code)
	})
}

func TestGormRefundRepository(t *testing.T) {
	db := setupPaymentTestDB(t)
	repo := NewGormRefundRepository(db)
	ctx := context.Background()

	accountID := uuid.New()
	paymentID := uuid.New()
	invoiceID := uuid.New()

	refund, err := payment.NewRefund(accountID, paymentID, invoiceID, valueobject.MustMoneyFromString("40.00", valueobject.USD), repoTestNow)
	require.NoError(t, err)
	require.NoError(t, refund.Complete("mock-refund-1", repoTestNow))
	refund.ClearDomainEvents()
	require.NoError(t, repo.Save(ctx, refund))

	t.Run("finds by ID", func(t *testing.T) {
		found, err := repo.FindByID(ctx, refund.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, payment.RefundStatusSuccess, found.Status)
		assert.Equal(t, "mock-refund-1", found.GatewayReference)
		assert.Equal(t, "40.00", found.Amount.StringFixed(2))
	})

	t.Run("finds by payment", func(t *testing.T) {
		refunds, err := repo.FindByPayment(ctx, paymentID)
		require.NoError(t, err)
		require.Len(t, refunds, 1)
		assert.Equal(t, refund.ID, refunds[0].ID)
	})

	t.Run("unknown ID yields nothing", func(t *testing.T) {
		found, err := repo.FindByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}
