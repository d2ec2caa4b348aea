package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStores is an in-memory SubscriptionStore and CustomerStore for tests
// and local development. One record per user, mirroring the production
// uniqueness constraint on user_id.
type MemoryStores struct {
	mu        sync.RWMutex
	byUser    map[uuid.UUID]*Subscription
	customers map[uuid.UUID]string
	now       func() time.Time
}

// NewMemoryStores returns empty in-memory stores.
func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		byUser:    make(map[uuid.UUID]*Subscription),
		customers: make(map[uuid.UUID]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStores) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byUser[userID]
	if !ok || rec.Status != StatusActive {
		return nil, ErrSubscriptionNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MemoryStores) FindOwnedByProviderSubscriptionID(ctx context.Context, providerSubID string, userID uuid.UUID) (*Subscription, error) {
	if providerSubID == "" {
		return nil, ErrSubscriptionNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byUser[userID]
	if !ok || rec.ProviderSubscriptionID != providerSubID {
		return nil, ErrSubscriptionNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MemoryStores) FindByProviderCustomerID(ctx context.Context, providerCustomerID string) (*Subscription, error) {
	if providerCustomerID == "" {
		return nil, ErrSubscriptionNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Subscription
	for _, rec := range m.byUser {
		if rec.ProviderCustomerID != providerCustomerID {
			continue
		}
		if latest == nil || rec.UpdatedAt.After(latest.UpdatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, ErrSubscriptionNotFound
	}
	out := *latest
	return &out, nil
}

func (m *MemoryStores) UpsertByUser(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.byUser[sub.UserID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		sub.ID = uuid.New()
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	stored := *sub
	m.byUser[sub.UserID] = &stored
	return nil
}

func (m *MemoryStores) UpdateByProviderSubscriptionID(ctx context.Context, providerSubID string, upd SubscriptionUpdate) error {
	if providerSubID == "" {
		return ErrSubscriptionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.byUser {
		if rec.ProviderSubscriptionID != providerSubID {
			continue
		}
		applyUpdate(rec, upd)
		rec.UpdatedAt = m.now()
		return nil
	}
	return ErrSubscriptionNotFound
}

func (m *MemoryStores) Insert(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byUser[sub.UserID]; ok && existing.Status == StatusActive {
		return ErrSubscriptionAlreadyExists
	}

	now := m.now()
	sub.ID = uuid.New()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	stored := *sub
	m.byUser[sub.UserID] = &stored
	return nil
}

func (m *MemoryStores) GetProviderCustomerID(ctx context.Context, userID uuid.UUID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.customers[userID], nil
}

func (m *MemoryStores) SetProviderCustomerID(ctx context.Context, userID uuid.UUID, providerCustomerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[userID] = providerCustomerID
	return nil
}

func applyUpdate(rec *Subscription, upd SubscriptionUpdate) {
	if upd.PlanType != nil {
		rec.PlanType = *upd.PlanType
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.StartDate != nil {
		rec.StartDate = *upd.StartDate
	}
	if upd.EndDate != nil {
		rec.EndDate = *upd.EndDate
	}
	if upd.ProviderCustomerID != nil {
		rec.ProviderCustomerID = *upd.ProviderCustomerID
	}
	if upd.ProviderSubscriptionID != nil {
		rec.ProviderSubscriptionID = *upd.ProviderSubscriptionID
	}
	if upd.ProviderPriceID != nil {
		rec.ProviderPriceID = *upd.ProviderPriceID
	}
}
