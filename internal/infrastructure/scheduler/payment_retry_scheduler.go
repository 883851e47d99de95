package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetryProcessor processes payments whose scheduled retry time has passed.
type RetryProcessor interface {
	ProcessDueRetries(ctx context.Context, limit int) (int, error)
}

// PaymentRetrySchedulerConfig holds configuration for the payment retry scheduler
type PaymentRetrySchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// PollInterval is how often to look for due retries
	PollInterval time.Duration

	// BatchLimit is the maximum number of payments retried per poll
	BatchLimit int

	// RunTimeout is the maximum time for a single poll run
	RunTimeout time.Duration
}

// DefaultPaymentRetrySchedulerConfig returns default configuration
func DefaultPaymentRetrySchedulerConfig() PaymentRetrySchedulerConfig {
	return PaymentRetrySchedulerConfig{
		Enabled:      true,
		PollInterval: time.Minute,
		BatchLimit:   100,
		RunTimeout:   5 * time.Minute,
	}
}

// PaymentRetryScheduler periodically re-attempts payments that failed with a
// retryable outcome and have reached their scheduled retry time.
type PaymentRetryScheduler struct {
	processor RetryProcessor
	logger    *zap.Logger
	config    PaymentRetrySchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewPaymentRetryScheduler creates a new payment retry scheduler
func NewPaymentRetryScheduler(
	processor RetryProcessor,
	logger *zap.Logger,
	config PaymentRetrySchedulerConfig,
) *PaymentRetryScheduler {
	return &PaymentRetryScheduler{
		processor: processor,
		logger:    logger,
		config:    config,
	}
}

// Start starts the payment retry scheduler
func (s *PaymentRetryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Payment retry scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Payment retry scheduler started",
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Int("batch_limit", s.config.BatchLimit),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *PaymentRetryScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Payment retry scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop polls for due retries until the context is cancelled
func (s *PaymentRetryScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes a single retry pass
func (s *PaymentRetryScheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	processed, err := s.processor.ProcessDueRetries(runCtx, s.config.BatchLimit)
	if err != nil {
		s.logger.Error("Payment retry pass failed", zap.Error(err))
		return
	}
	if processed > 0 {
		s.logger.Info("Payment retry pass completed", zap.Int("processed", processed))
	}
}
