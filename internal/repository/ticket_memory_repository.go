package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/mini-inbox/internal/domain"
)

type memoryTicketRepository struct {
	mu     sync.RWMutex
	byID   map[int64]domain.Ticket
	nextID int64
}

// NewMemoryTicketRepository returns a process-local store, used in development and tests.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{
		byID:   make(map[int64]domain.Ticket),
		nextID: 1,
	}
}

func (r *memoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket.ID == 0 {
		ticket.ID = r.nextID
	}
	if _, exists := r.byID[ticket.ID]; exists {
		return ErrTicketExists
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	if ticket.ID >= r.nextID {
		r.nextID = ticket.ID + 1
	}
	r.byID[ticket.ID] = *ticket
	return nil
}

func (r *memoryTicketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Ticket, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memoryTicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	return &t, nil
}

func (r *memoryTicketRepository) ApplyPatch(ctx context.Context, id int64, patch domain.TicketPatch) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	patch.Apply(&t)
	r.byID[id] = t
	return &t, nil
}

func (r *memoryTicketRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

func (r *memoryTicketRepository) Ping(ctx context.Context) error {
	return nil
}
