package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"kampus/api/internal/auth"
	"kampus/api/internal/authpw"
	"kampus/api/internal/config"
	"kampus/api/internal/email"
	"kampus/api/internal/export"
	"kampus/api/internal/feed"
	"kampus/api/internal/geo"
	"kampus/api/internal/metrics"
	"kampus/api/internal/photos"
	"kampus/api/internal/placement"
	"kampus/api/internal/prefs"
	"kampus/api/internal/push"
	"kampus/api/internal/rbac"
	"kampus/api/internal/report"
	"kampus/api/internal/search"
	"kampus/api/internal/store"
	"kampus/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Unit         string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	authpw.UserStore
	SetUserRole(context.Context, string, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertReport(context.Context, report.Record) error
	GetReport(context.Context, string) (report.Record, error)
	ListReports(context.Context, store.ReportFilter) ([]report.Record, error)
	UpdateReportStatus(context.Context, string, report.Status) error
	DeleteReport(context.Context, string) (string, error)
	AddFollower(context.Context, string, string) error
	RemoveFollower(context.Context, string, string) error
	CountReportsByAuthor(context.Context, string) (int, error)
	ReportStats(context.Context) (store.ReportStats, error)
	InsertAnnouncement(context.Context, report.Announcement) error
	ListAnnouncements(context.Context, int) ([]report.Announcement, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeUserSessions(context.Context, string) (int, error)
}

type changeFeed interface {
	Publish(context.Context, feed.Change) error
	Subscribe(context.Context) (<-chan feed.Batch, error)
}

type preferenceStore interface {
	ForUser(userID string) prefs.UserPreferences
	All(ctx context.Context, userID string) (map[report.Category]bool, error)
	SetCategories(ctx context.Context, userID string, values map[report.Category]bool) error
}

type photoStore interface {
	Put(ctx context.Context, reportID, contentType string, r io.Reader, size int64) (string, error)
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type searchService interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexReport(rec search.ReportRecord)
	DeleteReport(id string)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// Deps are the collaborators built by cmd/api. Optional ones may be nil.
type Deps struct {
	Store         *store.PostgresStore
	Sessions      sessionStore
	Reports       *feed.RedisFeed
	Announcements *feed.RedisFeed
	Preferences   *prefs.Store
	Push          push.Publisher
	Photos        *photos.Storage
	Search        *search.Service
	Email         *email.Service
	Metrics       *metrics.Collector
	Logger        *zap.Logger
}

type Service struct {
	cfg           config.Config
	store         dataStore
	sessions      sessionStore
	auth          *authpw.Service
	mailer        *email.Service
	reports       changeFeed
	announcements changeFeed
	prefs         preferenceStore
	push          push.Publisher
	photos        photoStore
	icons         placement.IconResolver
	search        searchService
	export        exporter
	metrics       *metrics.Collector
	geo           geo.Resolver
	logger        *zap.Logger
	now           func() time.Time
	heartbeat     time.Duration
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := deps.Push
	if publisher == nil {
		publisher = push.Nop{}
	}
	svc := &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  deps.Sessions,
		auth:      authpw.NewService(deps.Store, cfg.AdminEmail, logger.Named("auth")),
		mailer:    deps.Email,
		push:      publisher,
		icons:     placement.StaticIcons{},
		export:    export.NewService(deps.Store, logger),
		metrics:   deps.Metrics,
		geo:       geo.NewResolver(geo.Point{Latitude: cfg.CampusLat, Longitude: cfg.CampusLng}, cfg.PinOutOfRegion),
		logger:    logger,
		now:       time.Now,
		heartbeat: defaultHeartbeat,
	}
	if deps.Reports != nil {
		svc.reports = deps.Reports
	}
	if deps.Announcements != nil {
		svc.announcements = deps.Announcements
	}
	if deps.Preferences != nil {
		svc.prefs = deps.Preferences
	}
	if deps.Photos != nil {
		svc.photos = deps.Photos
		svc.icons = photos.NewIcons(deps.Photos)
	}
	if deps.Search != nil {
		svc.search = deps.Search
	}
	return svc
}

// Bootstrap promotes the configured administrator account if it already
// exists.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.AdminEmail == "" {
		return nil
	}
	user, err := s.store.GetUserByEmail(ctx, s.cfg.AdminEmail)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.Role == store.RoleAdmin {
		return nil
	}
	if err := s.store.SetUserRole(ctx, user.ID, store.RoleAdmin); err != nil {
		return err
	}
	s.logger.Info("promoted administrator", zap.String("user_id", user.ID))
	return nil
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.auth
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer.IsConfigured()
}

// SignUp registers an account and mails the verification code. The token
// is returned so the handler can expose it when mail is not configured.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	resp, err := s.auth.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.SMTPConfigured() {
		link := strings.TrimRight(s.cfg.PublicURL, "/") + "/verify-email?token=" + resp.VerificationToken
		if err := s.mailer.SendVerificationEmail(strings.TrimSpace(req.Email), strings.TrimSpace(req.DisplayName), link, resp.VerificationToken); err != nil {
			s.logger.Warn("verification mail failed", zap.String("user_id", resp.UserID), zap.Error(err))
		}
	}
	return resp, nil
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	resp, err := s.auth.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Giriş yapmadan önce e-posta adresinizi doğrulayın.", nil)
	}
	return s.issueSession(ctx, resp.User)
}

// RequestPasswordReset mails a reset code. The code is returned for the
// development bypass; unknown addresses yield an empty code.
func (s *Service) RequestPasswordReset(ctx context.Context, address string) (string, error) {
	token, user, err := s.auth.RequestPasswordReset(ctx, address)
	if err != nil || token == "" {
		return "", err
	}
	if s.SMTPConfigured() {
		link := strings.TrimRight(s.cfg.PublicURL, "/") + "/reset-password?token=" + token
		if err := s.mailer.SendPasswordResetEmail(user.Email, user.DisplayName, link, token); err != nil {
			s.logger.Warn("password reset mail failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return token, nil
}

// ResetPassword sets a new password and signs the account out everywhere.
func (s *Service) ResetPassword(ctx context.Context, req authpw.ResetPasswordRequest) error {
	userID, err := s.auth.ResetPassword(ctx, req)
	if err != nil {
		return err
	}
	if s.sessions == nil {
		return nil
	}
	revoked, err := s.sessions.RevokeUserSessions(ctx, userID)
	if err != nil {
		s.logger.Warn("revoke sessions after password reset", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	s.logger.Info("password reset", zap.String("user_id", userID), zap.Int("revoked_sessions", revoked))
	return nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	jti := util.NewID()
	claims := auth.NewClaims(user.ID, user.DisplayName, user.Role, jti, now, s.cfg.AccessTTL)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh := strings.ReplaceAll(util.NewID()+util.NewID(), "-", "")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Unit:         user.Unit,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    claims.Expiry(),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token, s.now())
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Unit:      user.Unit,
		Role:      user.Role,
		JTI:       claims.ID,
		ExpiresAt: claims.Expiry(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", zap.String("user_id", session.UserID), zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("revoke refresh session", zap.String("user_id", session.UserID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Metrics exposes the collector for the /metrics route. It may be nil.
func (s *Service) Metrics() *metrics.Collector {
	return s.metrics
}

func (s *Service) publish(ctx context.Context, f changeFeed, kind feed.Kind, id string, record any) {
	if f == nil {
		return
	}
	change, err := feed.NewChange(kind, id, record)
	if err == nil {
		err = f.Publish(ctx, change)
	}
	if err != nil {
		s.logger.Warn("publish change failed", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
	}
}

func (s *Service) pushTopic(ctx context.Context, topic string, msg push.Message) {
	if err := s.push.Publish(ctx, topic, msg); err != nil {
		s.logger.Warn("push failed", zap.String("topic", topic), zap.Error(err))
	}
}
