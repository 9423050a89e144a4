package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/medscope/telegram-insights/internal/config"
	"github.com/medscope/telegram-insights/internal/models"
)

// Service delivers run reports and alerts via webhook and email
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// WebhookMessage is the JSON card posted to the configured webhook
type WebhookMessage struct {
	Title string        `json:"title"`
	Text  string        `json:"text"`
	Facts []WebhookFact `json:"facts,omitempty"`
}

type WebhookFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendReport sends a run report via every configured channel
func (s *Service) SendReport(report *models.RunReport) error {
	var errors []string

	if s.config.WebhookURL != "" {
		if err := s.sendToWebhook(report); err != nil {
			logrus.Errorf("Failed to send webhook notification: %v", err)
			errors = append(errors, fmt.Sprintf("webhook: %v", err))
		} else {
			logrus.Info("Successfully sent report to webhook")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(report); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("email: %v", err))
		} else {
			logrus.Info("Successfully sent report via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// SendAlert posts a short failure notice to the webhook, falling back to
// email when only email is configured
func (s *Service) SendAlert(subject, message string) error {
	if s.config.WebhookURL != "" {
		payload := &WebhookMessage{Title: subject, Text: message}
		resp, err := s.client.R().
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post(s.config.WebhookURL)
		if err != nil {
			return fmt.Errorf("failed to send alert: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
		}
		return nil
	}

	if s.config.NotificationEmail != "" {
		m := gomail.NewMessage()
		m.SetHeader("From", s.config.SMTPUsername)
		m.SetHeader("To", s.config.NotificationEmail)
		m.SetHeader("Subject", subject)
		m.SetBody("text/plain", message)

		d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
		if err := d.DialAndSend(m); err != nil {
			return fmt.Errorf("failed to send alert email: %w", err)
		}
		return nil
	}

	logrus.Warnf("No notification channel configured, dropping alert: %s", subject)
	return nil
}

func (s *Service) sendToWebhook(report *models.RunReport) error {
	message := buildWebhookMessage(report)

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.WebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send webhook message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func buildWebhookMessage(report *models.RunReport) *WebhookMessage {
	status := "succeeded"
	if !report.Succeeded {
		status = "failed"
	}

	message := &WebhookMessage{
		Title: fmt.Sprintf("Pipeline run %s - %s", report.Job, status),
		Text:  fmt.Sprintf("Run %s finished in %s", report.RunID, report.Duration),
		Facts: []WebhookFact{
			{Name: "Job", Value: report.Job},
			{Name: "Started", Value: report.StartedAt.Format("2006-01-02 15:04:05 UTC")},
			{Name: "Messages", Value: fmt.Sprintf("%d", report.MessagesSeen)},
			{Name: "Media", Value: fmt.Sprintf("%d", report.MediaSeen)},
			{Name: "Rows Loaded", Value: fmt.Sprintf("%d", report.RowsLoaded)},
			{Name: "Errors", Value: fmt.Sprintf("%d", report.ErrorCount)},
		},
	}

	channels := make([]string, 0, len(report.ChannelCounts))
	for name := range report.ChannelCounts {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	for _, name := range channels {
		message.Facts = append(message.Facts, WebhookFact{
			Name:  name,
			Value: fmt.Sprintf("%d messages", report.ChannelCounts[name]),
		})
	}

	return message
}

func (s *Service) sendEmail(report *models.RunReport) error {
	status := "succeeded"
	if !report.Succeeded {
		status = "FAILED"
	}
	subject := fmt.Sprintf("Telegram Insights - %s run %s", report.Job, status)

	htmlBody, err := buildEmailHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", buildEmailText(report))
	m.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func buildEmailHTML(report *models.RunReport) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Pipeline Run Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #2b5797; color: white; padding: 20px; border-radius: 5px; }
        .failed { background-color: #d13438; }
        .stats { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .channel { border-left: 4px solid #2b5797; padding: 8px; margin: 6px 0; background-color: #fafafa; }
    </style>
</head>
<body>
    <div class="header{{if not .Succeeded}} failed{{end}}">
        <h1>Pipeline Run: {{.Job}}</h1>
        <p>Run {{.RunID}} started {{.StartedAt.Format "January 2, 2006 at 3:04 PM UTC"}}, finished in {{.Duration}}</p>
    </div>

    <div class="stats">
        <h2>Totals</h2>
        <p><strong>Messages:</strong> {{.MessagesSeen}}</p>
        <p><strong>Media:</strong> {{.MediaSeen}}</p>
        <p><strong>Rows Loaded:</strong> {{.RowsLoaded}}</p>
        <p><strong>Errors:</strong> {{.ErrorCount}}</p>
    </div>

    {{if .ChannelCounts}}
    <h2>Per Channel</h2>
    {{range $name, $count := .ChannelCounts}}
        <div class="channel"><strong>{{$name}}</strong>: {{$count}} messages</div>
    {{end}}
    {{end}}
</body>
</html>
`

	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildEmailText(report *models.RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline run %s (%s)\n", report.Job, report.RunID)
	fmt.Fprintf(&b, "Started: %s\n", report.StartedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Duration: %s\n", report.Duration)
	fmt.Fprintf(&b, "Messages: %d, Media: %d, Rows loaded: %d, Errors: %d\n",
		report.MessagesSeen, report.MediaSeen, report.RowsLoaded, report.ErrorCount)
	if !report.Succeeded {
		b.WriteString("Status: FAILED\n")
	}
	return b.String()
}
