package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/minasoft/lab-interop/internal/db"
	"github.com/nats-io/nats.go/jetstream"
)

// NotificationPublisher queues notifications on the NOTIFICATIONS stream
// under notifications.<tenant>.<severity>; the channel fan-out service
// consumes from there.
type NotificationPublisher struct {
	js jetstream.JetStream
}

func NewNotificationPublisher(js jetstream.JetStream) *NotificationPublisher {
	return &NotificationPublisher{js: js}
}

func (p *NotificationPublisher) Send(ctx context.Context, n db.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("bildirim serialize hatası: %w", err)
	}

	subject := "notifications." + kvKey(n.TenantID, n.Severity)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(n.ID)); err != nil {
		return fmt.Errorf("bildirim yayınlanamadı: %w", err)
	}
	return nil
}
