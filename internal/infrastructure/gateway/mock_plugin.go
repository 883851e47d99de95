package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/billing/backend/internal/domain/payment"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// MockPlugin is an in-process gateway that settles every charge unless told
// otherwise. Tests and local environments use the override hooks to script
// the next verdict: declines, transient failures, plugin errors, or
// settlement in a different currency than requested.
type MockPlugin struct {
	mu sync.Mutex

	chargeCount int
	refundCount int

	nextProcessedAmount   *decimal.Decimal
	nextProcessedCurrency *valueobject.Currency
	nextFailure           *payment.ChargeResult
	nextChargeError       error
	failRefunds           bool
}

// NewMockPlugin creates a new MockPlugin
func NewMockPlugin() *MockPlugin {
	return &MockPlugin{}
}

// Name identifies the plugin
func (m *MockPlugin) Name() string {
	return "mock"
}

// OverrideNextProcessedAmount makes the next charge settle the given amount
// instead of the requested one
func (m *MockPlugin) OverrideNextProcessedAmount(amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextProcessedAmount = &amount
}

// OverrideNextProcessedCurrency makes the next charge settle in the given
// currency instead of the requested one
func (m *MockPlugin) OverrideNextProcessedCurrency(currency valueobject.Currency) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextProcessedCurrency = &currency
}

// MakeNextChargeFail makes the next charge fail transiently; the engine is
// expected to retry it on its backoff schedule
func (m *MockPlugin) MakeNextChargeFail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := payment.FailureResult("GATEWAY_UNAVAILABLE", "simulated transient gateway failure", true)
	m.nextFailure = &result
}

// MakeNextChargeDecline makes the next charge a hard decline that must not
// be retried
func (m *MockPlugin) MakeNextChargeDecline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := payment.FailureResult("CARD_DECLINED", "simulated card decline", false)
	m.nextFailure = &result
}

// MakeNextChargePluginFailure makes the next charge abort with a plugin
// error before the gateway reaches a decision
func (m *MockPlugin) MakeNextChargePluginFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextChargeError = fmt.Errorf("mock plugin: simulated plugin failure")
}

// MakeRefundsFail makes every subsequent refund request be rejected
func (m *MockPlugin) MakeRefundsFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRefunds = fail
}

// ChargeCount returns how many charges have been attempted
func (m *MockPlugin) ChargeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chargeCount
}

// RefundCount returns how many refunds have been attempted
func (m *MockPlugin) RefundCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refundCount
}

// Charge settles the requested amount, applying any scripted override. All
// overrides are one-shot and cleared once consumed.
func (m *MockPlugin) Charge(_ context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chargeCount++

	if err := m.nextChargeError; err != nil {
		m.nextChargeError = nil
		return payment.ChargeResult{}, err
	}
	if failure := m.nextFailure; failure != nil {
		m.nextFailure = nil
		return *failure, nil
	}

	processedAmount := req.Amount
	if m.nextProcessedAmount != nil {
		processedAmount = *m.nextProcessedAmount
		m.nextProcessedAmount = nil
	}
	processedCurrency := req.Currency
	if m.nextProcessedCurrency != nil {
		processedCurrency = *m.nextProcessedCurrency
		m.nextProcessedCurrency = nil
	}

	reference := fmt.Sprintf("mock-charge-%d", m.chargeCount)
	return payment.SuccessResult(processedAmount, processedCurrency, reference), nil
}

// Refund reverses a previously settled charge
func (m *MockPlugin) Refund(_ context.Context, req payment.RefundRequest) (payment.RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refundCount++

	if m.failRefunds {
		return payment.RefundResult{
			Succeeded:    false,
			ErrorCode:    "REFUND_REJECTED",
			ErrorMessage: "simulated refund rejection",
		}, nil
	}

	return payment.RefundResult{
		Succeeded:        true,
		GatewayReference: fmt.Sprintf("mock-refund-%d", m.refundCount),
	}, nil
}

var _ payment.GatewayPlugin = (*MockPlugin)(nil)
