package notification

import (
	"context"
	"strings"

	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
)

// Channel is a logical delivery destination. Transports map it to a Slack
// webhook, an SNS topic or similar.
type Channel string

const (
	ChannelAlerts    Channel = "alerts"
	ChannelAnomalies Channel = "anomalies"
	ChannelBudget    Channel = "budget"
	ChannelReports   Channel = "reports"
)

// Message is a formatted notification
type Message struct {
	Channel  Channel `json:"channel"`
	Subject  string  `json:"subject"`
	Body     string  `json:"body"`
	Severity string  `json:"severity,omitempty"`
}

// Dispatcher delivers a message on a channel. A failed delivery never rolls
// back alert persistence.
type Dispatcher interface {
	Send(ctx context.Context, channel Channel, subject, body string) error
}

// ChannelFor routes an alert type to its channel
func ChannelFor(alertType string) Channel {
	switch {
	case strings.HasPrefix(alertType, "threshold_"), alertType == alert.TypeServiceThresholdBreach:
		return ChannelAlerts
	case alertType == alert.TypeAnomalyDetection:
		return ChannelAnomalies
	case strings.HasPrefix(alertType, "budget_"):
		return ChannelBudget
	default:
		return ChannelAlerts
	}
}

// SeverityTag is the subject prefix for a severity
func SeverityTag(severity string) string {
	switch severity {
	case alert.SeverityCritical:
		return "[CRITICAL]"
	case alert.SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}
