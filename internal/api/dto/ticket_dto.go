package dto

import (
	"time"

	"github.com/spec-kit/mini-inbox/internal/domain"
)

// UpdateTicketRequest is the PATCH /tickets/:id payload. Absent or empty
// fields are left unchanged.
type UpdateTicketRequest struct {
	Status   *string `json:"status"`
	Priority *string `json:"priority"`
}

// ToPatch converts the request into a domain patch.
func (r UpdateTicketRequest) ToPatch() domain.TicketPatch {
	var patch domain.TicketPatch
	if r.Status != nil && *r.Status != "" {
		status := domain.TicketStatus(*r.Status)
		patch.Status = &status
	}
	if r.Priority != nil && *r.Priority != "" {
		priority := domain.TicketPriority(*r.Priority)
		patch.Priority = &priority
	}
	return patch
}

// TicketResponse is the wire shape of a ticket.
type TicketResponse struct {
	ID           int64                 `json:"id"`
	CreatedAt    time.Time             `json:"created_at"`
	CustomerName string                `json:"customer_name"`
	Channel      string                `json:"channel"`
	Subject      string                `json:"subject"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		CreatedAt:    t.CreatedAt,
		CustomerName: t.CustomerName,
		Channel:      t.Channel,
		Subject:      t.Subject,
		Status:       t.Status,
		Priority:     t.Priority,
	}
}
