package push

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type webhookRequest struct {
	Topic   string  `json:"topic"`
	Message Message `json:"message"`
}

// WebhookPublisher posts messages to an HTTP push gateway.
type WebhookPublisher struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

func NewWebhookPublisher(url, token string, logger *zap.Logger) *WebhookPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &WebhookPublisher{httpClient: client, url: url, logger: logger}
}

func (p *WebhookPublisher) Publish(ctx context.Context, topic string, msg Message) error {
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(webhookRequest{Topic: topic, Message: msg}).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("post push to %s: %w", topic, err)
	}
	if resp.IsError() {
		p.logger.Warn("push gateway rejected message",
			zap.String("topic", topic),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("push gateway returned %d for %s", resp.StatusCode(), topic)
	}
	return nil
}
