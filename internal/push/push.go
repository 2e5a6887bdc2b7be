// Package push delivers notifications to devices through topic based
// brokers: an MQTT broker the mobile clients subscribe to, or an HTTP push
// gateway.
package push

import (
	"context"
	"errors"
	"fmt"

	"kampus/api/internal/notify"
)

// Message is the payload published on a topic.
type Message struct {
	ID       int32             `json:"id,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	ReportID string            `json:"reportId,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// FromNotification converts a classifier notification into a push message.
func FromNotification(n notify.Notification) Message {
	return Message{
		ID:       n.ID,
		Kind:     string(n.Kind),
		Title:    n.Title,
		Body:     n.Body,
		ReportID: n.ReportID,
	}
}

// Publisher sends a message to everyone subscribed to topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) Publish(context.Context, string, Message) error { return nil }

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, msg Message) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, topic, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UserTopic is the private topic of one user's devices.
func UserTopic(userID string) string {
	return "users/" + userID
}

// TopicPresenter presents notifications by publishing them on a user's
// private topic.
type TopicPresenter struct {
	Publisher Publisher
	UserID    string
}

func (p TopicPresenter) Present(ctx context.Context, n notify.Notification) error {
	if err := p.Publisher.Publish(ctx, UserTopic(p.UserID), FromNotification(n)); err != nil {
		return fmt.Errorf("push to user %s: %w", p.UserID, err)
	}
	return nil
}
