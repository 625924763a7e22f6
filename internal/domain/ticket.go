package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusPending TicketStatus = "pending"
	TicketStatusClosed  TicketStatus = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusPending, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket is a support request tracked by the inbox.
type Ticket struct {
	ID           int64
	CreatedAt    time.Time
	CustomerName string
	Channel      string
	Subject      string
	Status       TicketStatus
	Priority     TicketPriority
}

// TicketPatch is a partial update. Nil fields leave the ticket untouched.
type TicketPatch struct {
	Status   *TicketStatus
	Priority *TicketPriority
}

// IsEmpty reports whether the patch changes nothing.
func (p TicketPatch) IsEmpty() bool {
	return p.Status == nil && p.Priority == nil
}

// Apply copies the present fields onto t.
func (p TicketPatch) Apply(t *Ticket) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
}

// Significant reports whether the patch itself requests a closed status or a
// high priority. The ticket's prior state is irrelevant.
func (p TicketPatch) Significant() bool {
	if p.Status != nil && *p.Status == TicketStatusClosed {
		return true
	}
	return p.Priority != nil && *p.Priority == TicketPriorityHigh
}
