package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Snapshotter returns the current collection as ADDED changes. It is called
// when a subscription starts and again after each read failure.
type Snapshotter func(ctx context.Context) ([]Change, error)

// RedisFeed publishes changes to a Redis stream and lets any number of
// independent subscribers tail it.
type RedisFeed struct {
	client     *redis.Client
	stream     string
	maxLen     int64
	block      time.Duration
	readCount  int64
	minBackoff time.Duration
	maxBackoff time.Duration
	snapshot   Snapshotter
	logger     *zap.Logger
}

// Option configures a RedisFeed.
type Option func(*RedisFeed)

// WithSnapshot sets the initial-state loader used by Subscribe.
func WithSnapshot(fn Snapshotter) Option {
	return func(f *RedisFeed) { f.snapshot = fn }
}

// WithBlock sets how long one XREAD waits for new entries.
func WithBlock(d time.Duration) Option {
	return func(f *RedisFeed) {
		if d > 0 {
			f.block = d
		}
	}
}

// WithBackoff bounds the retry delay after a read error.
func WithBackoff(min, max time.Duration) Option {
	return func(f *RedisFeed) {
		f.minBackoff = min
		f.maxBackoff = max
	}
}

// WithMaxLen caps the stream length (approximate trimming).
func WithMaxLen(n int64) Option {
	return func(f *RedisFeed) { f.maxLen = n }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *RedisFeed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewRedisFeed creates a feed over the named stream.
func NewRedisFeed(client *redis.Client, stream string, opts ...Option) *RedisFeed {
	f := &RedisFeed{
		client:     client,
		stream:     stream,
		maxLen:     10000,
		block:      5 * time.Second,
		readCount:  100,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Stream returns the stream name.
func (f *RedisFeed) Stream() string {
	return f.stream
}

// Publish appends a change to the stream.
func (f *RedisFeed) Publish(ctx context.Context, change Change) error {
	args := &redis.XAddArgs{
		Stream: f.stream,
		Values: map[string]interface{}{
			"kind": string(change.Kind),
			"id":   change.ID,
			"data": string(change.Data),
		},
	}
	if f.maxLen > 0 {
		args.MaxLen = f.maxLen
		args.Approx = true
	}
	if err := f.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish %s %s: %w", change.Kind, change.ID, err)
	}
	return nil
}

// Subscribe starts a new subscription. The first batch is the snapshot,
// later batches are stream reads in order. Read failures are delivered as
// Batch.Err. With a Snapshotter the feed then resubscribes from a fresh
// snapshot, otherwise it retries from the last delivered entry. The channel
// closes when ctx ends.
//
// The stream tail is captured before the snapshot is loaded, so a record
// written in between can show up in both. Stream ADDED entries for ids
// already in the snapshot are dropped until that id is REMOVED.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan Batch, error) {
	lastID, initial, err := f.begin(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan Batch, 1)
	go f.run(ctx, lastID, initial, out)
	return out, nil
}

// begin captures the stream tail and then loads the snapshot.
func (f *RedisFeed) begin(ctx context.Context) (string, []Change, error) {
	lastID, err := f.tailID(ctx)
	if err != nil {
		return "", nil, err
	}
	var initial []Change
	if f.snapshot != nil {
		initial, err = f.snapshot(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("load snapshot for %s: %w", f.stream, err)
		}
	}
	return lastID, initial, nil
}

func (f *RedisFeed) tailID(ctx context.Context) (string, error) {
	entries, err := f.client.XRevRangeN(ctx, f.stream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("read tail of %s: %w", f.stream, err)
	}
	if len(entries) == 0 {
		return "0-0", nil
	}
	return entries[0].ID, nil
}

// snapshotIDs is the set of ids a snapshot delivered as ADDED.
type snapshotIDs map[string]struct{}

func newSnapshotIDs(changes []Change) snapshotIDs {
	ids := make(snapshotIDs, len(changes))
	for _, c := range changes {
		if c.Kind == Added {
			ids[c.ID] = struct{}{}
		}
	}
	return ids
}

// admit reports whether a stream change should be delivered.
func (ids snapshotIDs) admit(c Change) bool {
	switch c.Kind {
	case Added:
		_, dup := ids[c.ID]
		return !dup
	case Removed:
		delete(ids, c.ID)
	}
	return true
}

func (f *RedisFeed) run(ctx context.Context, lastID string, initial []Change, out chan<- Batch) {
	defer close(out)

	if !send(ctx, out, Batch{Changes: initial, Snapshot: true}) {
		return
	}
	seen := newSnapshotIDs(initial)

	backoff := f.minBackoff
	resync := false
	// fail reports a read error and waits out the backoff.
	fail := func(err error) bool {
		f.logger.Warn("feed read failed",
			zap.String("stream", f.stream),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if !send(ctx, out, Batch{Err: err}) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.maxBackoff)
		return true
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if resync {
			tail, snapshot, err := f.begin(ctx)
			if err != nil {
				if ctx.Err() != nil || !fail(err) {
					return
				}
				continue
			}
			lastID, seen, resync = tail, newSnapshotIDs(snapshot), false
			backoff = f.minBackoff
			if !send(ctx, out, Batch{Changes: snapshot, Snapshot: true}) {
				return
			}
			continue
		}

		streams, err := f.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{f.stream, lastID},
			Count:   f.readCount,
			Block:   f.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil || !fail(err) {
				return
			}
			resync = f.snapshot != nil
			continue
		}
		backoff = f.minBackoff

		var changes []Change
		for _, s := range streams {
			for _, msg := range s.Messages {
				lastID = msg.ID
				change, ok := decodeMessage(msg)
				if !ok {
					f.logger.Warn("skipping malformed feed entry",
						zap.String("stream", f.stream),
						zap.String("entry_id", msg.ID),
					)
					continue
				}
				if !seen.admit(change) {
					f.logger.Debug("dropping entry already in snapshot",
						zap.String("stream", f.stream),
						zap.String("id", change.ID),
					)
					continue
				}
				changes = append(changes, change)
			}
		}
		if len(changes) == 0 {
			continue
		}
		if !send(ctx, out, Batch{Changes: changes}) {
			return
		}
	}
}

func decodeMessage(msg redis.XMessage) (Change, bool) {
	kind, ok := ParseKind(stringValue(msg.Values["kind"]))
	if !ok {
		return Change{}, false
	}
	id := stringValue(msg.Values["id"])
	if id == "" {
		return Change{}, false
	}
	data := stringValue(msg.Values["data"])
	if data == "" {
		data = "{}"
	}
	return Change{Kind: kind, ID: id, Data: []byte(data), StreamID: msg.ID}, true
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return ""
	}
}

func send(ctx context.Context, out chan<- Batch, batch Batch) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- batch:
		return true
	}
}
