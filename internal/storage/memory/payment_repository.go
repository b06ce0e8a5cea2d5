// Package memory provides map-backed repositories. The service runs on them
// when no DATABASE_URL is configured, matching the demo deployment where
// transactions lived in an in-process map.
package memory

import (
	"context"
	"sync"

	"github.com/metacodeltd/mookh-tickets/internal/domain"
)

type PaymentRepository struct {
	mu    sync.RWMutex
	byRef map[string]domain.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{byRef: make(map[string]domain.Payment)}
}

// WithTx runs fn directly; the in-memory store has no transactions.
func (r *PaymentRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *PaymentRepository) Create(_ context.Context, p domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRef[p.Reference]; ok {
		return domain.ErrDuplicateReference
	}
	r.byRef[p.Reference] = p
	return nil
}

func (r *PaymentRepository) Get(_ context.Context, reference string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byRef[reference]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (r *PaymentRepository) Update(_ context.Context, p domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRef[p.Reference]; !ok {
		return domain.ErrPaymentNotFound
	}
	r.byRef[p.Reference] = p
	return nil
}

func (r *PaymentRepository) Delete(_ context.Context, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRef[reference]; !ok {
		return domain.ErrPaymentNotFound
	}
	delete(r.byRef, reference)
	return nil
}
