// Package notify turns live feed changes into user-facing notifications.
package notify

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"kampus/api/internal/feed"
	"kampus/api/internal/report"
)

// Kind classifies a change or a notification.
type Kind string

const (
	KindNewReport     Kind = "new_report"
	KindStatusChanged Kind = "status_changed"
	KindRemoved       Kind = "removed"
	KindNoop          Kind = "noop"
	KindAnnouncement  Kind = "announcement"
)

// Suppression reasons for changes that were eligible in kind but not shown.
const (
	ReasonBeforeStart = "before_start"
	ReasonOwnReport   = "own_report"
	ReasonPreference  = "preference_disabled"
)

// Notification is a request to show something to the user. ID is random;
// two notifications with the same ID replace each other on the device.
type Notification struct {
	ID        int32     `json:"id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ReportID  string    `json:"reportId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Decision is the outcome of classifying one change.
type Decision struct {
	Kind   Kind
	Notify bool
	Reason string
}

// Preferences answers boolean notification flags for the current user.
type Preferences interface {
	Bool(ctx context.Context, key string, def bool) (bool, error)
}

// Presenter shows a notification to the user.
type Presenter interface {
	Present(ctx context.Context, n Notification) error
}

// PresenterFunc adapts a function into a Presenter.
type PresenterFunc func(ctx context.Context, n Notification) error

func (f PresenterFunc) Present(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// NewID returns a random notification id.
func NewID() int32 {
	return rand.Int32()
}

// Observer is told about every batch and every decision.
type Observer interface {
	ObserveBatch(err error)
	ObserveDecision(d Decision)
}

// ClassifierConfig wires a Classifier.
type ClassifierConfig struct {
	UserID      string
	Start       time.Time
	Preferences Preferences
	Presenter   Presenter
	Observer    Observer
	Logger      *zap.Logger
	NewID       func() int32
	Now         func() time.Time
}

// Classifier keeps the last seen status of every report on one
// subscription and decides which changes deserve a notification.
//
// A Classifier is not safe for concurrent use. Feed batches are expected to
// arrive one at a time from a single goroutine, see Run.
type Classifier struct {
	userID    string
	start     time.Time
	statuses  map[string]report.Status
	prefs     Preferences
	presenter Presenter
	observer  Observer
	logger    *zap.Logger
	newID     func() int32
	now       func() time.Time

	// snapshotted is set once the first snapshot batch was handled.
	snapshotted bool
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	c := &Classifier{
		userID:    cfg.UserID,
		start:     cfg.Start,
		statuses:  make(map[string]report.Status),
		prefs:     cfg.Preferences,
		presenter: cfg.Presenter,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		newID:     cfg.NewID,
		now:       cfg.Now,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.newID == nil {
		c.newID = NewID
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.start.IsZero() {
		c.start = c.now()
	}
	return c
}

// Reset forgets every known status and moves the start instant. Handle
// calls it when a later snapshot batch signals a resubscription.
func (c *Classifier) Reset(start time.Time) {
	c.statuses = make(map[string]report.Status)
	c.start = start
}

// Status returns the last observed status of a report.
func (c *Classifier) Status(id string) (report.Status, bool) {
	s, ok := c.statuses[id]
	return s, ok
}

// Classify updates the state for one change and returns the notification
// it would produce. The notification is only meaningful when
// Decision.Notify is true.
func (c *Classifier) Classify(ctx context.Context, change feed.Change) (Notification, Decision) {
	switch change.Kind {
	case feed.Added:
		rec := c.decode(change)
		if _, known := c.statuses[rec.ID]; known {
			// Re-delivery of a report this subscription already holds.
			return c.statusChange(ctx, rec)
		}
		c.statuses[rec.ID] = rec.Status
		decision := Decision{Kind: KindNewReport}
		switch {
		case !rec.Timestamp.After(c.start):
			decision.Reason = ReasonBeforeStart
		case rec.AuthorID == c.userID:
			decision.Reason = ReasonOwnReport
		case !c.enabled(ctx, rec.Type):
			decision.Reason = ReasonPreference
		default:
			decision.Notify = true
		}
		return Notification{
			Kind:     KindNewReport,
			Title:    "Yeni " + rec.Type.Label() + ": " + rec.Title,
			Body:     rec.Description,
			ReportID: rec.ID,
		}, decision

	case feed.Modified:
		return c.statusChange(ctx, c.decode(change))

	case feed.Removed:
		delete(c.statuses, change.ID)
		return Notification{}, Decision{Kind: KindRemoved}

	default:
		return Notification{}, Decision{Kind: KindNoop}
	}
}

// statusChange notifies when a tracked report moved to a new status.
func (c *Classifier) statusChange(ctx context.Context, rec report.Record) (Notification, Decision) {
	prev, known := c.statuses[rec.ID]
	c.statuses[rec.ID] = rec.Status
	if !known || prev == rec.Status {
		return Notification{}, Decision{Kind: KindNoop}
	}
	decision := Decision{Kind: KindStatusChanged, Notify: true}
	if !c.enabled(ctx, rec.Type) {
		decision.Notify = false
		decision.Reason = ReasonPreference
	}
	return Notification{
		Kind:     KindStatusChanged,
		Title:    "Durum Güncellendi: " + string(rec.Status),
		Body:     rec.Title + " başlıklı bildirimin durumu güncellendi.",
		ReportID: rec.ID,
	}, decision
}

// Handle classifies every change of a batch in order and presents the
// resulting notifications. A batch carrying a transport error is ignored.
// Every snapshot after the first one resets the state, so records the
// feed re-lists after a gap are learned again without being announced.
// It returns the number of notifications presented.
func (c *Classifier) Handle(ctx context.Context, batch feed.Batch) int {
	if c.observer != nil {
		c.observer.ObserveBatch(batch.Err)
	}
	if batch.Err != nil {
		c.logger.Debug("ignoring feed error", zap.Error(batch.Err))
		return 0
	}
	if batch.Snapshot {
		if c.snapshotted {
			c.logger.Debug("feed resubscribed, resetting state", zap.String("user_id", c.userID))
			c.Reset(c.now())
		}
		c.snapshotted = true
	}

	presented := 0
	for _, change := range batch.Changes {
		n, decision := c.Classify(ctx, change)
		if c.observer != nil {
			c.observer.ObserveDecision(decision)
		}
		if !decision.Notify {
			continue
		}
		n.ID = c.newID()
		n.Timestamp = c.now()
		if c.presenter == nil {
			continue
		}
		if err := c.presenter.Present(ctx, n); err != nil {
			c.logger.Warn("present notification failed",
				zap.String("user_id", c.userID),
				zap.String("report_id", n.ReportID),
				zap.String("kind", string(n.Kind)),
				zap.Error(err),
			)
			continue
		}
		presented++
	}
	return presented
}

// Run consumes batches until the channel closes or ctx ends.
func (c *Classifier) Run(ctx context.Context, batches <-chan feed.Batch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			c.Handle(ctx, batch)
		}
	}
}

func (c *Classifier) decode(change feed.Change) report.Record {
	rec, err := report.DecodeRecord(change.ID, change.Data)
	if err != nil {
		c.logger.Debug("malformed report payload, using defaults",
			zap.String("report_id", change.ID),
			zap.Error(err),
		)
	}
	if change.ID != "" {
		rec.ID = change.ID
	}
	return rec
}

func (c *Classifier) enabled(ctx context.Context, category report.Category) bool {
	if c.prefs == nil {
		return true
	}
	on, err := c.prefs.Bool(ctx, category.PreferenceKey(), true)
	if err != nil {
		c.logger.Warn("preference lookup failed, notifying",
			zap.String("user_id", c.userID),
			zap.String("key", category.PreferenceKey()),
			zap.Error(err),
		)
		return true
	}
	return on
}
