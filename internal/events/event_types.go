package events

import (
	"time"

	"github.com/spec-kit/mini-inbox/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketUpdated EventType = "ticket_updated"
)

// Event is the envelope handed to the dispatcher.
type Event struct {
	ID        string
	Type      EventType
	TicketID  int64
	Timestamp time.Time
	Payload   interface{}
}

// TicketUpdatedPayload is the document posted to the workflow webhook.
type TicketUpdatedPayload struct {
	Event       EventType             `json:"event"`
	TicketID    int64                 `json:"ticket_id"`
	NewStatus   domain.TicketStatus   `json:"new_status"`
	NewPriority domain.TicketPriority `json:"new_priority"`
	Customer    string                `json:"customer"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// NewTicketUpdated builds the event for a ticket after a significant transition.
func NewTicketUpdated(id string, ticket *domain.Ticket, at time.Time) Event {
	at = at.UTC()
	return Event{
		ID:        id,
		Type:      EventTicketUpdated,
		TicketID:  ticket.ID,
		Timestamp: at,
		Payload: TicketUpdatedPayload{
			Event:       EventTicketUpdated,
			TicketID:    ticket.ID,
			NewStatus:   ticket.Status,
			NewPriority: ticket.Priority,
			Customer:    ticket.CustomerName,
			UpdatedAt:   at,
		},
	}
}
