package services

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/pratik-mahalle/costwatch/internal/domain/notification"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
)

// SNS subjects are limited to 100 characters
const maxSNSSubject = 100

// SlackDispatcher posts messages to an incoming webhook
type SlackDispatcher struct {
	webhookURL string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewSlackDispatcher creates a Slack webhook dispatcher
func NewSlackDispatcher(webhookURL string, log *logger.Logger) *SlackDispatcher {
	return &SlackDispatcher{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.Component("slack"),
	}
}

// Send posts one message. The channel is shown in the attachment footer.
func (d *SlackDispatcher) Send(ctx context.Context, channel notification.Channel, subject, body string) error {
	if d.webhookURL == "" {
		return fmt.Errorf("no Slack webhook URL configured")
	}

	payload, err := json.Marshal(buildSlackMessage(channel, subject, body))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Slack API error: %s", string(b))
	}

	d.logger.WithFields(map[string]interface{}{
		"channel": channel,
	}).Debug("Slack notification sent")
	return nil
}

func buildSlackMessage(channel notification.Channel, subject, body string) map[string]interface{} {
	color := "#36a64f"
	switch {
	case strings.HasPrefix(subject, "[CRITICAL]"):
		color = "#ff0000"
	case strings.HasPrefix(subject, "[WARNING]"):
		color = "#ff8c00"
	}

	return map[string]interface{}{
		"text": subject,
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"text":   body,
				"footer": "costwatch #" + string(channel),
				"ts":     time.Now().Unix(),
			},
		},
	}
}

// SNSPublisher is the part of the SNS client the dispatcher needs
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSDispatcher publishes to one SNS topic per channel
type SNSDispatcher struct {
	client SNSPublisher
	topics map[notification.Channel]string
	logger *logger.Logger
}

// NewSNSDispatcher creates an SNS dispatcher. Channels without a topic are
// reported as errors on Send.
func NewSNSDispatcher(client SNSPublisher, topics map[notification.Channel]string, log *logger.Logger) *SNSDispatcher {
	return &SNSDispatcher{
		client: client,
		topics: topics,
		logger: log.Component("sns"),
	}
}

func (d *SNSDispatcher) Send(ctx context.Context, channel notification.Channel, subject, body string) error {
	topic := d.topics[channel]
	if topic == "" {
		return fmt.Errorf("no SNS topic configured for channel %s", channel)
	}
	if len(subject) > maxSNSSubject {
		subject = subject[:maxSNSSubject]
	}

	out, err := d.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topic),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	d.logger.WithFields(map[string]interface{}{
		"channel":    channel,
		"message_id": aws.ToString(out.MessageId),
	}).Debug("SNS notification published")
	return nil
}

// MultiDispatcher sends on every transport and succeeds if any of them does
type MultiDispatcher struct {
	dispatchers []notification.Dispatcher
}

func NewMultiDispatcher(dispatchers ...notification.Dispatcher) *MultiDispatcher {
	return &MultiDispatcher{dispatchers: dispatchers}
}

func (m *MultiDispatcher) Send(ctx context.Context, channel notification.Channel, subject, body string) error {
	if len(m.dispatchers) == 0 {
		return fmt.Errorf("no notification transports configured")
	}
	var errs []error
	for _, d := range m.dispatchers {
		if err := d.Send(ctx, channel, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m.dispatchers) {
		return stderrors.Join(errs...)
	}
	return nil
}

// LogDispatcher writes notifications to the log instead of sending them
type LogDispatcher struct {
	logger *logger.Logger
}

func NewLogDispatcher(log *logger.Logger) *LogDispatcher {
	return &LogDispatcher{logger: log.Component("notification")}
}

func (d *LogDispatcher) Send(ctx context.Context, channel notification.Channel, subject, body string) error {
	d.logger.WithFields(map[string]interface{}{
		"channel": channel,
		"subject": subject,
	}).Info(body)
	return nil
}
