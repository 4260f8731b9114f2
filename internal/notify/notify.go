// Package notify persists user notifications and hands them off to
// the event bus for external delivery.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// Dispatcher stores a notification row and publishes it. Delivery
// (email, SMS, push) is an external consumer of the bus topic.
type Dispatcher struct {
	repo domain.Repository
	bus  domain.EventBus
}

// NewDispatcher creates a dispatcher. Bus may be nil, in which case
// notifications are stored but not published.
func NewDispatcher(repo domain.Repository, eventBus domain.EventBus) *Dispatcher {
	return &Dispatcher{repo: repo, bus: eventBus}
}

// Dispatch stores and publishes one notification. Publish failures
// are logged, not surfaced: the stored row is the source of truth.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if err := d.repo.SaveNotification(ctx, n); err != nil {
		return err
	}

	if d.bus != nil {
		payload, err := json.Marshal(n)
		if err == nil {
			err = d.bus.Publish(ctx, domain.TopicNotification, payload)
		}
		if err != nil {
			slog.Warn("notification publish failed",
				"notification_id", n.ID,
				"user_id", n.UserID,
				"error", err,
			)
		}
	}

	return nil
}

// List returns a user's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, userID string) ([]*domain.Notification, error) {
	return d.repo.ListNotifications(ctx, userID)
}
