package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/mini-inbox/internal/domain"
	"github.com/spec-kit/mini-inbox/internal/events"
	"github.com/spec-kit/mini-inbox/internal/observability"
	"github.com/spec-kit/mini-inbox/internal/repository"
	apperrors "github.com/spec-kit/mini-inbox/pkg/util/errorutil"
)

type recordingDispatcher struct {
	mu        sync.Mutex
	published []events.Event
	err       error
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.published = append(d.published, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) events() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event{}, d.published...)
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, seed ...domain.Ticket) (*TicketService, repository.TicketRepository, *recordingDispatcher) {
	t.Helper()
	repo := repository.NewMemoryTicketRepository()
	for i := range seed {
		require.NoError(t, repo.Create(context.Background(), &seed[i]))
	}
	dispatcher := &recordingDispatcher{}
	svc := NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Dispatcher: dispatcher,
		Clock:      func() time.Time { return fixedNow },
	})
	return svc, repo, dispatcher
}

func openLowTicket() domain.Ticket {
	return domain.Ticket{
		ID:           1,
		CreatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		CustomerName: "Ana Souza",
		Channel:      "whatsapp",
		Subject:      "Pedido não chegou",
		Status:       domain.TicketStatusOpen,
		Priority:     domain.TicketPriorityLow,
	}
}

func status(s domain.TicketStatus) *domain.TicketStatus       { return &s }
func priority(p domain.TicketPriority) *domain.TicketPriority { return &p }

func TestUpdateTicketPriorityHighNotifies(t *testing.T) {
	svc, _, dispatcher := newTestService(t, openLowTicket())

	ticket, significant, err := svc.UpdateTicket(context.Background(), 1, domain.TicketPatch{Priority: priority(domain.TicketPriorityHigh)})
	require.NoError(t, err)
	assert.True(t, significant)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)

	published := dispatcher.events()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventTicketUpdated, published[0].Type)
	assert.NotEmpty(t, published[0].ID)
	payload, ok := published[0].Payload.(events.TicketUpdatedPayload)
	require.True(t, ok)
	assert.Equal(t, events.TicketUpdatedPayload{
		Event:       events.EventTicketUpdated,
		TicketID:    1,
		NewStatus:   domain.TicketStatusOpen,
		NewPriority: domain.TicketPriorityHigh,
		Customer:    "Ana Souza",
		UpdatedAt:   fixedNow,
	}, payload)
}

func TestUpdateTicketEmptyPatchIsNoop(t *testing.T) {
	original := openLowTicket()
	original.Status = domain.TicketStatusClosed
	original.Priority = domain.TicketPriorityHigh
	svc, repo, dispatcher := newTestService(t, original)

	before, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)

	ticket, significant, err := svc.UpdateTicket(context.Background(), 1, domain.TicketPatch{})
	require.NoError(t, err)
	assert.False(t, significant, "prior closed/high state must not trigger")
	assert.Equal(t, *before, *ticket)

	after, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, *before, *after)
	assert.Empty(t, dispatcher.events())
}

func TestUpdateTicketSignificance(t *testing.T) {
	cases := []struct {
		name    string
		initial domain.TicketStatus
		patch   domain.TicketPatch
		want    bool
	}{
		{"close", domain.TicketStatusOpen, domain.TicketPatch{Status: status(domain.TicketStatusClosed)}, true},
		{"high on already closed", domain.TicketStatusClosed, domain.TicketPatch{Priority: priority(domain.TicketPriorityHigh)}, true},
		{"reclose closed", domain.TicketStatusClosed, domain.TicketPatch{Status: status(domain.TicketStatusClosed)}, true},
		{"pending", domain.TicketStatusOpen, domain.TicketPatch{Status: status(domain.TicketStatusPending)}, false},
		{"medium on closed", domain.TicketStatusClosed, domain.TicketPatch{Priority: priority(domain.TicketPriorityMedium)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seed := openLowTicket()
			seed.Status = tc.initial
			svc, _, dispatcher := newTestService(t, seed)

			_, significant, err := svc.UpdateTicket(context.Background(), 1, tc.patch)
			require.NoError(t, err)
			assert.Equal(t, tc.want, significant)
			if tc.want {
				assert.Len(t, dispatcher.events(), 1)
			} else {
				assert.Empty(t, dispatcher.events())
			}
		})
	}
}

func TestUpdateTicketNotFound(t *testing.T) {
	svc, repo, dispatcher := newTestService(t, openLowTicket())

	_, significant, err := svc.UpdateTicket(context.Background(), 42, domain.TicketPatch{Status: status(domain.TicketStatusClosed)})
	require.Error(t, err)
	assert.False(t, significant)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, 404, apperrors.ToDomainError(err).HTTPStatus)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Empty(t, dispatcher.events())
}

func TestUpdateTicketRejectsUnknownValues(t *testing.T) {
	svc, repo, _ := newTestService(t, openLowTicket())

	_, _, err := svc.UpdateTicket(context.Background(), 1, domain.TicketPatch{Status: status("archived")})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.ToDomainError(err).Code)

	got, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, got.Status)
}

func TestUpdateTicketSucceedsWhenQueueRejects(t *testing.T) {
	svc, _, dispatcher := newTestService(t, openLowTicket())
	dispatcher.err = events.ErrQueueFull
	metrics := observability.NewMetrics()
	svc.metrics = metrics

	ticket, significant, err := svc.UpdateTicket(context.Background(), 1, domain.TicketPatch{Status: status(domain.TicketStatusClosed)})
	require.NoError(t, err)
	assert.True(t, significant)
	assert.Equal(t, domain.TicketStatusClosed, ticket.Status)
	assert.Equal(t, int64(1), metrics.Notifications(observability.NotificationDropped))
}

type failingRepo struct {
	repository.TicketRepository
}

func (failingRepo) ApplyPatch(context.Context, int64, domain.TicketPatch) (*domain.Ticket, error) {
	return nil, errors.New("connection reset")
}

func TestUpdateTicketStoreFailureIsInternal(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := NewTicketService(TicketDependencies{TicketRepo: failingRepo{}, Dispatcher: dispatcher})

	_, _, err := svc.UpdateTicket(context.Background(), 1, domain.TicketPatch{Status: status(domain.TicketStatusClosed)})
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.ToDomainError(err).HTTPStatus)
	assert.Empty(t, dispatcher.events())
}

func TestListTicketsInsertionOrder(t *testing.T) {
	second := openLowTicket()
	second.ID = 2
	svc, _, _ := newTestService(t, openLowTicket(), second)

	tickets, err := svc.ListTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, int64(1), tickets[0].ID)
	assert.Equal(t, int64(2), tickets[1].ID)
}

func TestUpdateTicketEmptyPatchSkipsWrite(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	seed := openLowTicket()
	require.NoError(t, repo.Create(context.Background(), &seed))
	svc := NewTicketService(TicketDependencies{TicketRepo: failingRepo{TicketRepository: repo}})

	ticket, significant, err := svc.UpdateTicket(context.Background(), seed.ID, domain.TicketPatch{})
	require.NoError(t, err, "an empty patch never reaches ApplyPatch")
	assert.False(t, significant)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)

	_, _, err = svc.UpdateTicket(context.Background(), 99, domain.TicketPatch{})
	assert.True(t, apperrors.IsNotFound(err))
}
