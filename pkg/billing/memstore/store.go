// Package memstore is an in-memory billing.Store with the same conditional-write
// semantics as the PostgreSQL store. It backs tests and single-process development runs.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

type processedEvent struct {
	eventType   string
	processedAt time.Time
}

// Store keeps records and the processed-event ledger in maps guarded by one mutex.
type Store struct {
	mu         sync.RWMutex
	records    map[uuid.UUID]*billing.Record
	byCustomer map[string]uuid.UUID
	events     map[string]processedEvent
	now        func() time.Time
}

var (
	_ billing.Store       = (*Store)(nil)
	_ billing.EventPruner = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		records:    make(map[uuid.UUID]*billing.Record),
		byCustomer: make(map[string]uuid.UUID),
		events:     make(map[string]processedEvent),
		now:        time.Now,
	}
}

func (s *Store) Get(_ context.Context, userID uuid.UUID) (*billing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, billing.ErrRecordNotFound
	}
	return clone(rec), nil
}

func (s *Store) FindByCustomerID(_ context.Context, customerID string) (*billing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byCustomer[customerID]
	if !ok || customerID == "" {
		return nil, billing.ErrRecordNotFound
	}
	return clone(s.records[userID]), nil
}

func (s *Store) AttachCustomer(_ context.Context, userID uuid.UUID, customerID, email string, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreate(userID, at)
	if rec.ProviderCustomerID == "" {
		rec.ProviderCustomerID = customerID
		s.byCustomer[customerID] = userID
		rec.UpdatedAt = at
	}
	if rec.BillingEmail == "" && email != "" {
		rec.BillingEmail = email
	}
	return rec.ProviderCustomerID, nil
}

func (s *Store) ApplySnapshot(_ context.Context, userID uuid.UUID, snap billing.Snapshot, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreate(userID, s.now())
	if rec.SyncedAt != nil && rec.SyncedAt.After(at) {
		return false, nil
	}

	if rec.ProviderCustomerID == "" && snap.CustomerID != "" {
		rec.ProviderCustomerID = snap.CustomerID
		s.byCustomer[snap.CustomerID] = userID
	}
	rec.ProviderSubscriptionID = snap.SubscriptionID
	rec.ProviderSubscriptionItemID = snap.SubscriptionItemID
	rec.PriceID = snap.PriceID
	rec.Status = snap.Status
	rec.CancelAtPeriodEnd = snap.CancelAtPeriodEnd
	rec.CancelAt = copyTime(snap.CancelAt)
	rec.CurrentPeriodEnd = copyTime(snap.CurrentPeriodEnd)
	rec.BillingInterval = snap.BillingInterval
	synced := at
	rec.SyncedAt = &synced
	rec.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.events[eventID]
	return ok, nil
}

func (s *Store) MarkEventProcessed(_ context.Context, eventID, eventType string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; ok {
		return false, nil
	}
	s.events[eventID] = processedEvent{eventType: eventType, processedAt: at}
	return true, nil
}

// PruneEvents drops ledger entries processed before the cutoff.
func (s *Store) PruneEvents(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, ev := range s.events {
		if ev.processedAt.Before(before) {
			delete(s.events, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Must be called with the write lock held.
func (s *Store) getOrCreate(userID uuid.UUID, at time.Time) *billing.Record {
	rec, ok := s.records[userID]
	if !ok {
		rec = &billing.Record{
			UserID:    userID,
			Status:    billing.StatusInactive,
			CreatedAt: at,
			UpdatedAt: at,
		}
		s.records[userID] = rec
	}
	return rec
}

func clone(rec *billing.Record) *billing.Record {
	c := *rec
	c.CancelAt = copyTime(rec.CancelAt)
	c.CurrentPeriodEnd = copyTime(rec.CurrentPeriodEnd)
	c.SyncedAt = copyTime(rec.SyncedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
