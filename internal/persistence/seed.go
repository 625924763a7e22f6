package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/mini-inbox/internal/domain"
	"github.com/spec-kit/mini-inbox/internal/repository"
)

type seedTicket struct {
	ID           int64     `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	CustomerName string    `json:"customer_name"`
	Channel      string    `json:"channel"`
	Subject      string    `json:"subject"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
}

// SeedTickets loads tickets from a JSON array at path when the store is empty.
// It returns the number of tickets inserted.
func SeedTickets(ctx context.Context, repo repository.TicketRepository, path string, logger *zap.Logger) (int, error) {
	if path == "" {
		return 0, nil
	}

	count, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	if count > 0 {
		logger.Debug("store already populated; skipping seeds", zap.Int("count", count))
		return 0, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seeds: %w", err)
	}
	var items []seedTicket
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("decode seeds: %w", err)
	}

	inserted := 0
	for i, item := range items {
		ticket := &domain.Ticket{
			ID:           item.ID,
			CreatedAt:    item.CreatedAt,
			CustomerName: item.CustomerName,
			Channel:      item.Channel,
			Subject:      item.Subject,
			Status:       domain.TicketStatus(item.Status),
			Priority:     domain.TicketPriority(item.Priority),
		}
		if !ticket.Status.Valid() || !ticket.Priority.Valid() {
			return inserted, fmt.Errorf("seed %d: invalid status %q or priority %q", i, item.Status, item.Priority)
		}
		if err := repo.Create(ctx, ticket); err != nil {
			return inserted, fmt.Errorf("seed %d: %w", i, err)
		}
		inserted++
	}

	logger.Info("seeded tickets", zap.Int("count", inserted), zap.String("path", path))
	return inserted, nil
}
