package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/mini-inbox/internal/config"
	"github.com/spec-kit/mini-inbox/internal/events"
	"github.com/spec-kit/mini-inbox/internal/observability"
)

// WebhookSender performs one outbound POST.
type WebhookSender interface {
	PostJSON(ctx context.Context, url string, headers map[string]string, body any) (int, error)
}

// NotificationService forwards ticket events to the workflow webhook.
type NotificationService struct {
	dispatcher events.Dispatcher
	sender     WebhookSender
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, sender WebhookSender, metrics *observability.Metrics, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		sender:     sender,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.handleTicketUpdated)
}

// handleTicketUpdated makes exactly one bounded attempt. Failures are logged
// and counted, never returned: the transition has already committed.
func (n *NotificationService) handleTicketUpdated(ctx context.Context, event events.Event) error {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		n.metrics.RecordNotification(observability.NotificationSkipped)
		n.logger.Debug("webhook url not configured; skipping notification",
			zap.Int64("ticket_id", event.TicketID))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout())
	defer cancel()

	status, err := n.sender.PostJSON(ctx, n.cfg.WebhookURL, map[string]string{
		"X-Event-ID":   event.ID,
		"X-Event-Type": string(event.Type),
	}, event.Payload)
	if err != nil {
		n.metrics.RecordNotification(observability.NotificationFailed)
		n.logger.Warn("webhook delivery failed",
			zap.String("event_id", event.ID),
			zap.Int64("ticket_id", event.TicketID),
			zap.Int("status", status),
			zap.Error(err))
		return nil
	}

	n.metrics.RecordNotification(observability.NotificationDelivered)
	n.logger.Info("webhook delivered",
		zap.String("event_id", event.ID),
		zap.Int64("ticket_id", event.TicketID),
		zap.Int("status", status))
	return nil
}
