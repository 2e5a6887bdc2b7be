package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kampus/api/internal/notify"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	mqtt.Client
	sent []published
	err  error
}

func (f *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.sent = append(f.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{err: f.err}
}

func (f *fakeMQTT) Disconnect(uint) {}

type memoryPublisher struct {
	topics []string
	msgs   []Message
	err    error
}

func (m *memoryPublisher) Publish(_ context.Context, topic string, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.topics = append(m.topics, topic)
	m.msgs = append(m.msgs, msg)
	return nil
}

func TestMQTTPublisherPrefixesTopic(t *testing.T) {
	client := &fakeMQTT{}
	p := NewMQTTPublisherWithClient(client, MQTTConfig{TopicPrefix: "/kampus/"}, nil)

	err := p.Publish(context.Background(), "Ariza", Message{Title: "Yeni Arıza: Asansör", Body: "çalışmıyor"})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)
	assert.Equal(t, "kampus/Ariza", client.sent[0].topic)
	assert.Equal(t, byte(1), client.sent[0].qos)

	var msg Message
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &msg))
	assert.Equal(t, "Yeni Arıza: Asansör", msg.Title)
}

func TestMQTTPublisherReturnsTokenError(t *testing.T) {
	client := &fakeMQTT{err: errors.New("not connected")}
	p := NewMQTTPublisherWithClient(client, MQTTConfig{}, nil)
	err := p.Publish(context.Background(), "announcements", Message{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "announcements")
}

func TestWebhookPublisherPostsTopicAndMessage(t *testing.T) {
	var got webhookRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL+"/push", "secret", nil)
	require.NoError(t, p.Publish(context.Background(), "report_42", Message{Title: "Durum Güncellendi: Çözüldü"}))
	assert.Equal(t, "report_42", got.Topic)
	assert.Equal(t, "Durum Güncellendi: Çözüldü", got.Message.Title)
	assert.Equal(t, "Bearer secret", auth)
}

func TestWebhookPublisherRejectsClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL, "", nil)
	assert.Error(t, p.Publish(context.Background(), "announcements", Message{}))
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &memoryPublisher{}
	bad := &memoryPublisher{err: errors.New("broker down")}
	err := Fanout{ok, bad}.Publish(context.Background(), "announcements", Message{Title: "Duyuru"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, []string{"announcements"}, ok.topics)
}

func TestTopicPresenterUsesUserTopic(t *testing.T) {
	mem := &memoryPublisher{}
	presenter := TopicPresenter{Publisher: mem, UserID: "u1"}
	err := presenter.Present(context.Background(), notify.Notification{ID: 3, Kind: notify.KindStatusChanged, Title: "t", Body: "b", ReportID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"users/u1"}, mem.topics)
	assert.Equal(t, Message{ID: 3, Kind: "status_changed", Title: "t", Body: "b", ReportID: "r1"}, mem.msgs[0])
}
