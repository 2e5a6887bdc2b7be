package notify

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"kampus/api/internal/feed"
	"kampus/api/internal/report"
)

// AnnouncementRelay presents administrator announcements published after
// the subscription started.
type AnnouncementRelay struct {
	start     time.Time
	presenter Presenter
	logger    *zap.Logger
	newID     func() int32
	now       func() time.Time
}

// RelayConfig wires an AnnouncementRelay.
type RelayConfig struct {
	Start     time.Time
	Presenter Presenter
	Logger    *zap.Logger
	NewID     func() int32
	Now       func() time.Time
}

func NewAnnouncementRelay(cfg RelayConfig) *AnnouncementRelay {
	r := &AnnouncementRelay{
		start:     cfg.Start,
		presenter: cfg.Presenter,
		logger:    cfg.Logger,
		newID:     cfg.NewID,
		now:       cfg.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.newID == nil {
		r.newID = NewID
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.start.IsZero() {
		r.start = r.now()
	}
	return r
}

// Handle presents every new announcement of the batch and returns how many
// were shown.
func (r *AnnouncementRelay) Handle(ctx context.Context, batch feed.Batch) int {
	if batch.Err != nil {
		return 0
	}
	presented := 0
	for _, change := range batch.Changes {
		if change.Kind != feed.Added {
			continue
		}
		var a report.Announcement
		if err := json.Unmarshal(change.Data, &a); err != nil {
			r.logger.Debug("malformed announcement, using defaults", zap.String("id", change.ID), zap.Error(err))
		}
		if !a.Timestamp.After(r.start) {
			continue
		}
		a = a.WithDefaults()
		n := Notification{
			ID:        r.newID(),
			Kind:      KindAnnouncement,
			Title:     a.Title,
			Body:      a.Message,
			Timestamp: r.now(),
		}
		if err := r.presenter.Present(ctx, n); err != nil {
			r.logger.Warn("present announcement failed", zap.String("id", change.ID), zap.Error(err))
			continue
		}
		presented++
	}
	return presented
}

// Run consumes batches until the channel closes or ctx ends.
func (r *AnnouncementRelay) Run(ctx context.Context, batches <-chan feed.Batch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			r.Handle(ctx, batch)
		}
	}
}
