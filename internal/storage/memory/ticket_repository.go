package memory

import (
	"context"
	"sync"

	"github.com/metacodeltd/mookh-tickets/internal/domain"
)

type TicketRepository struct {
	mu    sync.RWMutex
	byRef map[string]domain.Ticket
}

func NewTicketRepository() *TicketRepository {
	return &TicketRepository{byRef: make(map[string]domain.Ticket)}
}

func (r *TicketRepository) GetByReference(_ context.Context, reference string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byRef[reference]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *TicketRepository) Create(_ context.Context, t domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRef[t.Reference]; ok {
		return domain.ErrTicketAlreadyIssued
	}
	r.byRef[t.Reference] = t
	return nil
}

// Count reports issued tickets; used by tests asserting exactly-once issuance.
func (r *TicketRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRef)
}
