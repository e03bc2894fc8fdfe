package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/minara-ai/minara/internal/nats"
)

var warningEmailTmpl = template.Must(template.New("quota_warning").Parse(`<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Usage warning</h2>
  <p>{{.Headline}}</p>
  <p>
    Current usage: <strong>{{.Used}}</strong> of <strong>{{.Limit}}</strong>
    ({{printf "%.0f" .Percent}}%).
  </p>
  <p>Once the limit is reached, further requests will be rejected until the
  monthly reset{{if .OrgScope}} or until your organization raises the budget{{end}}.</p>
  <p style="color: #888; font-size: 12px;">Minara usage monitoring</p>
</body>
</html>`))

type warningEmailData struct {
	Headline string
	Used     int64
	Limit    int64
	Percent  float64
	OrgScope bool
}

// RenderWarningEmail builds the HTML body for a threshold alert.
func RenderWarningEmail(event nats.QuotaAlertEvent) (subject, body string, err error) {
	data := warningEmailData{
		Used:    event.Used,
		Limit:   event.Limit,
		Percent: event.PercentUsed(),
	}

	switch event.Scope {
	case nats.AlertScopeOrganization:
		data.OrgScope = true
		data.Headline = fmt.Sprintf("Your organization %q is approaching its monthly usage limit.", event.OrgName)
		subject = "Minara: organization usage warning"
	case nats.AlertScopeMessages:
		data.Headline = "Your account is approaching its monthly message limit."
		subject = "Minara: message limit warning"
	default:
		data.Headline = "Your account is approaching its monthly token quota."
		subject = "Minara: usage warning"
	}

	var buf bytes.Buffer
	if err := warningEmailTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("rendering warning email: %w", err)
	}
	return subject, buf.String(), nil
}

// SlackText builds the one-line alert message for the Slack webhook.
func SlackText(event nats.QuotaAlertEvent) string {
	switch event.Scope {
	case nats.AlertScopeOrganization:
		return fmt.Sprintf(":warning: Organization %q at %.0f%% of monthly usage (%d/%d).",
			event.OrgName, event.PercentUsed(), event.Used, event.Limit)
	case nats.AlertScopeMessages:
		return fmt.Sprintf(":warning: User %s at %.0f%% of monthly messages (%d/%d).",
			event.UserEmail, event.PercentUsed(), event.Used, event.Limit)
	default:
		return fmt.Sprintf(":warning: User %s at %.0f%% of monthly tokens (%d/%d).",
			event.UserEmail, event.PercentUsed(), event.Used, event.Limit)
	}
}
