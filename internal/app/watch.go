package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"kampus/api/internal/feed"
	"kampus/api/internal/notify"
	"kampus/api/internal/push"
)

const defaultHeartbeat = 25 * time.Second

// WatchSink receives the notifications of one watch stream. Open is called
// once the feed subscriptions are established.
type WatchSink interface {
	notify.Presenter
	Open(start time.Time) error
	Heartbeat() error
}

// presenters shows a notification on every presenter; the first one is the
// live stream and its failure is the one reported.
type presenters []notify.Presenter

func (p presenters) Present(ctx context.Context, n notify.Notification) error {
	var first error
	for i, presenter := range p {
		if err := presenter.Present(ctx, n); err != nil && i == 0 {
			first = err
		}
	}
	return first
}

// lockedSink serializes writes from the report and announcement consumers.
type lockedSink struct {
	mu   sync.Mutex
	sink WatchSink
}

func (l *lockedSink) Present(ctx context.Context, n notify.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Present(ctx, n)
}

func (l *lockedSink) Heartbeat() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Heartbeat()
}

// Watch streams the notifications of one session until ctx ends or the
// report feed closes. Each call owns its own feed subscriptions. The
// classifier and the announcement relay consume their feeds on separate
// goroutines and both are finished before Watch returns.
func (s *Service) Watch(ctx context.Context, session Session, sink WatchSink) error {
	if s.reports == nil {
		return domainError(http.StatusServiceUnavailable, "FEED_UNAVAILABLE", "Canlı akış kullanılamıyor.", nil)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := s.now()
	reportBatches, err := s.reports.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe reports: %w", err)
	}
	var announcementBatches <-chan feed.Batch
	if s.announcements != nil {
		announcementBatches, err = s.announcements.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribe announcements: %w", err)
		}
	}

	out := &lockedSink{sink: sink}
	presenter := presenters{out, push.TopicPresenter{Publisher: s.push, UserID: session.UserID}}
	cfg := notify.ClassifierConfig{
		UserID:    session.UserID,
		Start:     start,
		Presenter: presenter,
		Logger:    s.logger.Named("classifier"),
		Now:       s.now,
	}
	if s.prefs != nil {
		cfg.Preferences = s.prefs.ForUser(session.UserID)
	}
	if s.metrics != nil {
		cfg.Observer = s.metrics
	}
	classifier := notify.NewClassifier(cfg)
	relay := notify.NewAnnouncementRelay(notify.RelayConfig{
		Start:     start,
		Presenter: out,
		Logger:    s.logger.Named("announcements"),
		Now:       s.now,
	})

	if err := sink.Open(start); err != nil {
		return err
	}
	s.metrics.WatcherStarted()
	defer s.metrics.WatcherStopped()
	s.logger.Debug("watch started", zap.String("user_id", session.UserID))

	interval := s.heartbeat
	if interval <= 0 {
		interval = defaultHeartbeat
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	classified := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		classified <- classifier.Run(ctx, reportBatches)
	}()
	if announcementBatches != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx, announcementBatches); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Debug("announcement relay stopped", zap.Error(err))
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-classified:
			return nil
		case <-ticker.C:
			if err := out.Heartbeat(); err != nil {
				return nil
			}
		}
	}
}

// sseSink writes notifications as Server-Sent Events.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	return &sseSink{w: w, flusher: flusher}, nil
}

func (s *sseSink) Open(start time.Time) error {
	header := s.w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	return s.event("ready", map[string]any{"since": start.UTC()})
}

func (s *sseSink) Present(_ context.Context, n notify.Notification) error {
	return s.event("notification", n)
}

func (s *sseSink) Heartbeat() error {
	if _, err := io.WriteString(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
