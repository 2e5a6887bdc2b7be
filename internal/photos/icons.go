package photos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kampus/api/internal/report"
)

type cachedIcon struct {
	url     string
	err     error
	expires time.Time
}

// Icons resolves marker icons to presigned URLs of icons/{name}.png.
// Lookups are cached for half the URL lifetime.
type Icons struct {
	storage *Storage
	timeout time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cachedIcon
}

func NewIcons(storage *Storage) *Icons {
	return &Icons{
		storage: storage,
		timeout: 3 * time.Second,
		now:     time.Now,
		cache:   make(map[string]cachedIcon),
	}
}

// IconKey is the object key of a named icon.
func IconKey(name string) string {
	return "icons/" + name + ".png"
}

// Icon implements placement.IconResolver. It fails when the icon object is
// missing from the bucket.
func (i *Icons) Icon(category report.Category) (string, error) {
	name := category.Icon()

	i.mu.Lock()
	entry, ok := i.cache[name]
	i.mu.Unlock()
	if ok && i.now().Before(entry.expires) {
		return entry.url, entry.err
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	url, err := i.lookup(ctx, name)

	ttl := time.Minute
	if i.storage != nil {
		ttl = i.storage.urlTTL / 2
	}
	i.mu.Lock()
	i.cache[name] = cachedIcon{url: url, err: err, expires: i.now().Add(ttl)}
	i.mu.Unlock()
	return url, err
}

func (i *Icons) lookup(ctx context.Context, name string) (string, error) {
	if i.storage == nil {
		return "", ErrNotConfigured
	}
	key := IconKey(name)
	if err := i.storage.Exists(ctx, key); err != nil {
		return "", fmt.Errorf("icon %s: %w", name, err)
	}
	return i.storage.URL(ctx, key)
}
