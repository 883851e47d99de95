package clock

import (
	"sync"
	"time"

	"github.com/billing/backend/internal/domain/shared"
)

// SystemClock reads the wall clock
type SystemClock struct{}

// NewSystemClock creates a new SystemClock
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current wall-clock time in UTC
func (c *SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock is a clock driven explicitly by the caller. It lets tests
// jump forward by days to exercise the retry schedule without waiting.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock creates a manual clock starting at the given instant
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current instant
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// SetTime moves the clock to the given instant
func (c *ManualClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by the given duration
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AdvanceDays moves the clock forward by whole days
func (c *ManualClock) AdvanceDays(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, days)
}

var _ shared.Clock = (*SystemClock)(nil)
var _ shared.Clock = (*ManualClock)(nil)
