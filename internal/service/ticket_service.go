package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/mini-inbox/internal/domain"
	"github.com/spec-kit/mini-inbox/internal/events"
	"github.com/spec-kit/mini-inbox/internal/observability"
	"github.com/spec-kit/mini-inbox/internal/repository"
	apperrors "github.com/spec-kit/mini-inbox/pkg/util/errorutil"
)

// TicketService applies status and priority transitions and decides which
// ones are announced to the workflow engine.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// ListTickets returns every ticket in ascending id order.
func (s *TicketService) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	return s.tickets.List(ctx)
}

// UpdateTicket applies the present fields of patch to ticket id. The boolean
// reports whether the request asked for closed or high, in which case a
// ticket_updated event is queued. Delivery never affects the result.
func (s *TicketService) UpdateTicket(ctx context.Context, id int64, patch domain.TicketPatch) (*domain.Ticket, bool, error) {
	if err := validatePatch(patch); err != nil {
		return nil, false, err
	}

	if patch.IsEmpty() {
		ticket, err := s.tickets.GetByID(ctx, id)
		if err != nil {
			return nil, false, ticketError(id, err)
		}
		return ticket, false, nil
	}

	ticket, err := s.tickets.ApplyPatch(ctx, id, patch)
	if err != nil {
		return nil, false, ticketError(id, err)
	}

	significant := patch.Significant()
	s.logger.Info("ticket updated",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("status", string(ticket.Status)),
		zap.String("priority", string(ticket.Priority)),
		zap.Bool("significant", significant))

	if significant {
		s.publishEvent(ctx, events.NewTicketUpdated(uuid.NewString(), ticket, s.now()))
	}
	return ticket, significant, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.metrics.RecordNotification(observability.NotificationDropped)
		s.logger.Warn("notification dropped",
			zap.String("event_id", event.ID),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func ticketError(id int64, err error) error {
	if errors.Is(err, repository.ErrTicketNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return err
}

func validatePatch(patch domain.TicketPatch) error {
	details := map[string]any{}
	if patch.Status != nil && !patch.Status.Valid() {
		details["status"] = string(*patch.Status)
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		details["priority"] = string(*patch.Priority)
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("status must be open|pending|closed and priority low|medium|high", details)
	}
	return nil
}
