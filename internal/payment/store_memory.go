package payment

import (
	"context"
	"sync"
	"time"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

type memoryEntry struct {
	req    model.PaymentRequirements
	status model.PaymentStatus
}

// MemoryStateStore is a single-process StateStore.
//
// Entries are kept for retention past their expiry so that late replays are
// reported as consumed/expired rather than unknown, then purged lazily.
type MemoryStateStore struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	retention time.Duration
	lastPurge time.Time
	now       func() time.Time
}

// NewMemoryStateStore creates an in-memory store.
func NewMemoryStateStore(retention time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		entries:   make(map[string]*memoryEntry),
		retention: retention,
		now:       time.Now,
	}
}

// Issue records req as ISSUED.
func (s *MemoryStateStore) Issue(_ context.Context, req *model.PaymentRequirements) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()
	if _, exists := s.entries[req.PaymentID]; exists {
		return ErrDuplicatePayment
	}
	s.entries[req.PaymentID] = &memoryEntry{req: *req, status: model.PaymentStatusIssued}
	return nil
}

// Get returns a copy of the requirement and its status, marking it EXPIRED if due.
func (s *MemoryStateStore) Get(_ context.Context, paymentID string) (*model.PaymentRequirements, model.PaymentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[paymentID]
	if !ok {
		return nil, "", ErrUnknownPayment
	}
	if e.status == model.PaymentStatusIssued && expired(&e.req, s.now()) {
		e.status = model.PaymentStatusExpired
	}
	req := e.req
	return &req, e.status, nil
}

// Consume performs the ISSUED -> CONSUMED transition under the store lock.
func (s *MemoryStateStore) Consume(_ context.Context, paymentID string, now time.Time) (*model.PaymentRequirements, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[paymentID]
	if !ok {
		return nil, ErrUnknownPayment
	}
	switch e.status {
	case model.PaymentStatusConsumed:
		return nil, ErrPaymentConsumed
	case model.PaymentStatusExpired:
		return nil, ErrPaymentExpired
	}
	if expired(&e.req, now) {
		e.status = model.PaymentStatusExpired
		return nil, ErrPaymentExpired
	}
	e.status = model.PaymentStatusConsumed
	req := e.req
	return &req, nil
}

// purgeLocked drops entries past expiry + retention. Must be called with lock held.
func (s *MemoryStateStore) purgeLocked() {
	now := s.now()
	if now.Sub(s.lastPurge) < time.Second {
		return
	}
	s.lastPurge = now
	cutoff := now.Add(-s.retention).UnixMilli()
	for id, e := range s.entries {
		if e.req.ExpiresAt < cutoff {
			delete(s.entries, id)
		}
	}
}

var _ StateStore = (*MemoryStateStore)(nil)
