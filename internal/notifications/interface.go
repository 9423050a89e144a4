package notifications

import "github.com/medscope/telegram-insights/internal/models"

// Notifier defines the contract for pipeline run notifications
type Notifier interface {
	SendReport(report *models.RunReport) error
	SendAlert(subject, message string) error
}
