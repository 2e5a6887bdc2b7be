package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kampus/api/internal/authpw"
	"kampus/api/internal/config"
	"kampus/api/internal/export"
	"kampus/api/internal/feed"
	"kampus/api/internal/geo"
	"kampus/api/internal/placement"
	"kampus/api/internal/prefs"
	"kampus/api/internal/push"
	"kampus/api/internal/report"
	"kampus/api/internal/search"
	"kampus/api/internal/session"
	"kampus/api/internal/store"
	"kampus/api/internal/util"
)

// memStore is an in-memory dataStore.
type memStore struct {
	mu            sync.Mutex
	users         map[string]store.User
	verifications map[string]string
	resets        map[string]string
	revoked       map[string]bool
	reports       map[string]report.Record
	announcements []report.Announcement
	pingErr       error
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]store.User),
		verifications: make(map[string]string),
		resets:        make(map[string]string),
		revoked:       make(map[string]bool),
		reports:       make(map[string]report.Record),
	}
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	if user.VerificationToken != "" {
		m.verifications[user.VerificationToken] = user.ID
	}
	return nil
}

func (m *memStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.VerificationToken = token
	u.VerificationExpiresAt = &expiresAt
	m.users[userID] = u
	m.verifications[token] = userID
	return nil
}

func (m *memStore) VerifyUserEmail(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.verifications[token]
	if !ok {
		return store.ErrNotFound
	}
	u := m.users[userID]
	u.IsEmailVerified = true
	m.users[userID] = u
	delete(m.verifications, token)
	return nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	m.users[userID] = u
	return nil
}

func (m *memStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[token] = userID
	return nil
}

func (m *memStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.resets[token]
	if !ok {
		return "", store.ErrNotFound
	}
	return userID, nil
}

func (m *memStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resets, token)
	return nil
}

func (m *memStore) SetUserRole(_ context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.Role = role
	m.users[userID] = u
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

func cloneRecord(rec report.Record) report.Record {
	rec.Followers = append([]string{}, rec.Followers...)
	return rec
}

func (m *memStore) InsertReport(_ context.Context, rec report.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *memStore) GetReport(_ context.Context, id string) (report.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reports[id]
	if !ok {
		return report.Record{}, store.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *memStore) ListReports(_ context.Context, f store.ReportFilter) ([]report.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []report.Record{}
	for _, rec := range m.reports {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.Type != nil && rec.Type != *f.Type {
			continue
		}
		if f.AuthorID != "" && rec.AuthorID != f.AuthorID {
			continue
		}
		if f.FollowerID != "" && !rec.IsFollowedBy(f.FollowerID) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) UpdateReportStatus(_ context.Context, id string, status report.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reports[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	m.reports[id] = rec
	return nil
}

func (m *memStore) DeleteReport(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reports[id]
	if !ok {
		return "", store.ErrNotFound
	}
	delete(m.reports, id)
	return rec.ImageKey, nil
}

func (m *memStore) AddFollower(_ context.Context, reportID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reports[reportID]
	if !ok {
		return store.ErrNotFound
	}
	if !rec.IsFollowedBy(userID) {
		rec.Followers = append(rec.Followers, userID)
	}
	m.reports[reportID] = rec
	return nil
}

func (m *memStore) RemoveFollower(_ context.Context, reportID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reports[reportID]
	if !ok {
		return store.ErrNotFound
	}
	kept := rec.Followers[:0]
	for _, id := range rec.Followers {
		if id != userID {
			kept = append(kept, id)
		}
	}
	rec.Followers = kept
	m.reports[reportID] = rec
	return nil
}

func (m *memStore) CountReportsByAuthor(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.reports {
		if rec.AuthorID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ReportStats(_ context.Context) (store.ReportStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := store.ReportStats{
		ByStatus:   map[report.Status]int{},
		ByCategory: map[report.Category]int{},
	}
	for _, rec := range m.reports {
		stats.Total++
		stats.ByStatus[rec.Status]++
		stats.ByCategory[rec.Type]++
	}
	return stats, nil
}

func (m *memStore) InsertAnnouncement(_ context.Context, a report.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announcements = append([]report.Announcement{a}, m.announcements...)
	return nil
}

func (m *memStore) ListAnnouncements(_ context.Context, limit int) ([]report.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]report.Announcement{}, m.announcements...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error {
	return m.pingErr
}

// fakeFeed records published changes and hands out a prepared channel.
type fakeFeed struct {
	mu           sync.Mutex
	published    []feed.Change
	batches      chan feed.Batch
	subscribeErr error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{batches: make(chan feed.Batch, 16)}
}

func (f *fakeFeed) Publish(_ context.Context, change feed.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, change)
	return nil
}

func (f *fakeFeed) Subscribe(context.Context) (<-chan feed.Batch, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return f.batches, nil
}

func (f *fakeFeed) changes() []feed.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feed.Change{}, f.published...)
}

type published struct {
	topic string
	msg   push.Message
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{topic: topic, msg: msg})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, s := range p.sent {
		out = append(out, s.topic)
	}
	return out
}

type fakeSearch struct {
	mu       sync.Mutex
	indexed  []string
	deleted  []string
	lastQ    search.Query
	response search.Response
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQ = q
	return f.response
}

func (f *fakeSearch) IndexReport(rec search.ReportRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, rec.ID)
}

func (f *fakeSearch) DeleteReport(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

type fakeExporter struct {
	lastReq export.Request
	result  *export.Result
	err     error
}

func (f *fakeExporter) Export(_ context.Context, req export.Request) (*export.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testEnv struct {
	store         *memStore
	reports       *fakeFeed
	announcements *fakeFeed
	push          *recordingPublisher
	search        *fakeSearch
	export        *fakeExporter
	prefs         *prefs.Store
	redis         *miniredis.Miniredis
}

const testAdminEmail = "admin@akillikampus.com"

func newTestService(t *testing.T) (*Service, *testEnv) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		store:         newMemStore(),
		reports:       newFakeFeed(),
		announcements: newFakeFeed(),
		push:          &recordingPublisher{},
		search:        &fakeSearch{},
		export:        &fakeExporter{},
		prefs:         prefs.NewStore(client),
		redis:         mr,
	}
	cfg := config.Config{
		JWTSecret:     "test-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		AdminEmail:    testAdminEmail,
		CampusLat:     geo.DefaultCampus.Latitude,
		CampusLng:     geo.DefaultCampus.Longitude,
		MaxPhotoBytes: 1 << 20,
	}
	svc := &Service{
		cfg:           cfg,
		store:         env.store,
		sessions:      session.NewRedisStoreWithClient(client),
		auth:          authpw.NewService(env.store, cfg.AdminEmail, nil),
		reports:       env.reports,
		announcements: env.announcements,
		prefs:         env.prefs,
		push:          env.push,
		icons:         placement.StaticIcons{},
		search:        env.search,
		export:        env.export,
		geo:           geo.NewResolver(geo.DefaultCampus, false),
		logger:        zap.NewNop(),
		now:           time.Now,
		heartbeat:     time.Hour,
	}
	return svc, env
}

// addUser stores a verified user and returns a signed-in session for it.
func addUser(t *testing.T, svc *Service, env *testEnv, name, role string) Session {
	t.Helper()
	user := store.User{
		ID:              util.NewID(),
		DisplayName:     name,
		Email:           util.NewID() + "@kampus.edu.tr",
		Unit:            "Mühendislik Fakültesi",
		Role:            role,
		IsEmailVerified: true,
	}
	if err := env.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	session, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return session
}

func addReport(t *testing.T, env *testEnv, rec report.Record) report.Record {
	t.Helper()
	if rec.ID == "" {
		rec.ID = util.NewID()
	}
	if rec.Status == "" {
		rec.Status = report.StatusOpen
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := env.store.InsertReport(context.Background(), rec); err != nil {
		t.Fatalf("insert report: %v", err)
	}
	return rec
}

var errBoom = errors.New("boom")
