package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishChatTask publishes a chat task for assistant worker processing.
func (p *Publisher) PublishChatTask(ctx context.Context, task ChatTask) error {
	return p.publish(ctx, SubjectChatTask, task)
}

// PublishQuotaAlert publishes a threshold-crossing alert for the notify consumer.
func (p *Publisher) PublishQuotaAlert(ctx context.Context, event QuotaAlertEvent) error {
	return p.publish(ctx, SubjectQuotaAlert, event)
}

// PublishUsage publishes a usage accounting event.
func (p *Publisher) PublishUsage(ctx context.Context, event UsageEvent) error {
	return p.publish(ctx, SubjectUsage, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
