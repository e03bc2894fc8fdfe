package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/minara-ai/minara/internal/metrics"
	inats "github.com/minara-ai/minara/internal/nats"
)

// Consumer listens on the quota alert subject and delivers warnings over
// email and Slack. Either channel may be nil when unconfigured.
type Consumer struct {
	mailer      EmailSender
	slack       AlertSender
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(mailer EmailSender, slack AlertSender, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		mailer:      mailer,
		slack:       slack,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "quota-notifier", inats.SubjectQuotaAlert)
	if err != nil {
		return err
	}

	slog.Info("notify consumer started", "consumer", "quota-notifier")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("notify consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.QuotaAlertEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("notify consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	// Delivery failures are logged and counted, never retried through the
	// stream: a stale warning redelivered hours later is worse than a
	// missed one, since the enforcer re-emits on the next call anyway.
	if c.mailer != nil && event.UserEmail != "" {
		subject, body, err := RenderWarningEmail(event)
		if err != nil {
			slog.Error("notify consumer: rendering email", "error", err, "scope", event.Scope)
		} else if err := c.mailer.SendEmail(event.UserEmail, subject, body); err != nil {
			slog.Error("notify consumer: sending email", "error", err, "to", event.UserEmail)
			metrics.NotificationsSentTotal.WithLabelValues("email", "error").Inc()
		} else {
			metrics.NotificationsSentTotal.WithLabelValues("email", "ok").Inc()
		}
	}

	if c.slack != nil {
		if err := c.slack.SendAlert(ctx, SlackText(event)); err != nil {
			slog.Error("notify consumer: sending slack alert", "error", err, "scope", event.Scope)
			metrics.NotificationsSentTotal.WithLabelValues("slack", "error").Inc()
		} else {
			metrics.NotificationsSentTotal.WithLabelValues("slack", "ok").Inc()
		}
	}

	_ = msg.Ack()

	slog.Debug("notify consumer: handled alert",
		"scope", event.Scope,
		"user_id", event.UserID,
		"percent", event.PercentUsed(),
	)
}
