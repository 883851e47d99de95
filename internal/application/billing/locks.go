package billing

import (
	"sync"

	"github.com/google/uuid"
)

// InvoiceLocks serializes mutations per invoice. Concurrent requests
// against different invoices proceed in parallel; requests against the
// same invoice queue up so balance validation and application never race.
// Every service that mutates invoices in a process must share one
// instance.
type InvoiceLocks struct {
	locks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewInvoiceLocks creates an empty lock table
func NewInvoiceLocks() *InvoiceLocks {
	return &InvoiceLocks{}
}

// Lock acquires the mutex for the given invoice and returns the unlock
// function
func (l *InvoiceLocks) Lock(invoiceID uuid.UUID) func() {
	actual, _ := l.locks.LoadOrStore(invoiceID, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
