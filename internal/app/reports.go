package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"kampus/api/internal/feed"
	"kampus/api/internal/geo"
	"kampus/api/internal/placement"
	"kampus/api/internal/push"
	"kampus/api/internal/report"
	"kampus/api/internal/search"
	"kampus/api/internal/store"
	"kampus/api/internal/util"
)

// List filters accepted by ListReports besides category labels.
const (
	FilterAll       = "Tümü"
	FilterOpen      = "Açık"
	FilterFollowing = "Takip Ettiklerim"
	FilterMine      = "Bildirimlerim"
)

// ReportView is a report as returned to one viewer.
type ReportView struct {
	report.Record
	Following     bool   `json:"following"`
	FollowerCount int    `json:"followerCount"`
	PhotoURL      string `json:"photoUrl,omitempty"`
}

type CreateReportInput struct {
	Title         string
	Description   string
	Type          string
	ShareLocation bool
	Latitude      float64
	Longitude     float64
	Photo         io.Reader
	PhotoSize     int64
	PhotoType     string
}

func (s *Service) viewOf(rec report.Record, viewerID string) ReportView {
	rec = rec.WithDefaults()
	return ReportView{
		Record:        rec,
		Following:     rec.IsFollowedBy(viewerID),
		FollowerCount: len(rec.Followers),
	}
}

func filterFor(session Session, filter string) (store.ReportFilter, error) {
	switch filter = strings.TrimSpace(filter); filter {
	case "", FilterAll:
		return store.ReportFilter{}, nil
	case FilterOpen:
		return store.ReportFilter{Status: report.StatusOpen}, nil
	case FilterFollowing:
		return store.ReportFilter{FollowerID: session.UserID}, nil
	case FilterMine:
		return store.ReportFilter{AuthorID: session.UserID}, nil
	}
	category, ok := report.ParseCategory(filter)
	if !ok {
		return store.ReportFilter{}, validationError("Bilinmeyen filtre: " + filter)
	}
	return store.ReportFilter{Type: &category}, nil
}

func foldText(value string) string {
	return strings.ToLowerSpecial(unicode.TurkishCase, value)
}

// matchesQuery is the list screen's inline search over title and description.
func matchesQuery(rec report.Record, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(foldText(rec.Title), query) || strings.Contains(foldText(rec.Description), query)
}

// ListReports returns the reports matching a list filter, newest first.
func (s *Service) ListReports(ctx context.Context, session Session, filter, query string) ([]ReportView, error) {
	f, err := filterFor(session, filter)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListReports(ctx, f)
	if err != nil {
		return nil, err
	}
	query = foldText(strings.TrimSpace(query))
	views := make([]ReportView, 0, len(records))
	for _, rec := range records {
		if !matchesQuery(rec, query) {
			continue
		}
		views = append(views, s.viewOf(rec, session.UserID))
	}
	return views, nil
}

func (s *Service) CreateReport(ctx context.Context, session Session, input CreateReportInput) (ReportView, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return ReportView{}, validationError("Lütfen başlık ve açıklama girin.")
	}
	category, _ := report.ParseCategory(input.Type)
	location := s.geo.Resolve(input.ShareLocation, geo.Point{Latitude: input.Latitude, Longitude: input.Longitude})

	rec := report.Record{
		ID:          util.NewID(),
		Type:        category,
		Title:       title,
		Description: description,
		Status:      report.DefaultStatus,
		Latitude:    location.Latitude,
		Longitude:   location.Longitude,
		Timestamp:   s.now().UTC(),
		AuthorID:    session.UserID,
		AuthorName:  session.UserName,
		Followers:   []string{},
	}

	if input.Photo != nil {
		if s.photos == nil {
			return ReportView{}, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Fotoğraf yükleme devre dışı.", nil)
		}
		key, err := s.photos.Put(ctx, rec.ID, input.PhotoType, input.Photo, input.PhotoSize)
		if err != nil {
			return ReportView{}, err
		}
		rec.ImageKey = key
	}

	if err := s.store.InsertReport(ctx, rec); err != nil {
		if rec.ImageKey != "" {
			s.deletePhoto(ctx, rec.ImageKey)
		}
		return ReportView{}, err
	}
	s.logger.Info("report created",
		zap.String("report_id", rec.ID),
		zap.String("type", category.Label()),
		zap.String("user_id", session.UserID),
	)

	s.publish(ctx, s.reports, feed.Added, rec.ID, rec)
	s.pushTopic(ctx, category.Topic(), push.Message{
		Kind:     "new_report",
		Title:    "Yeni " + category.Label() + ": " + rec.Title,
		Body:     rec.Description,
		ReportID: rec.ID,
		Data:     map[string]string{"type": category.Label()},
	})
	s.index(rec)

	view := s.viewOf(rec, session.UserID)
	view.PhotoURL = s.photoURL(ctx, rec.ImageKey)
	return view, nil
}

func (s *Service) GetReport(ctx context.Context, session Session, reportID string) (ReportView, error) {
	rec, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return ReportView{}, err
	}
	view := s.viewOf(rec, session.UserID)
	view.PhotoURL = s.photoURL(ctx, rec.ImageKey)
	return view, nil
}

// UpdateStatus moves a report to a new moderation status and tells its
// followers.
func (s *Service) UpdateStatus(ctx context.Context, session Session, reportID, value string) (ReportView, error) {
	status, ok := report.ParseStatus(value)
	if !ok {
		return ReportView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Geçersiz durum.", map[string]any{"allowed": report.Statuses()})
	}
	if err := s.store.UpdateReportStatus(ctx, reportID, status); err != nil {
		return ReportView{}, err
	}
	rec, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return ReportView{}, err
	}
	s.logger.Info("report status changed",
		zap.String("report_id", reportID),
		zap.String("status", string(status)),
		zap.String("moderator_id", session.UserID),
	)

	s.publish(ctx, s.reports, feed.Modified, rec.ID, rec)
	s.pushTopic(ctx, report.FollowTopic(rec.ID), push.Message{
		Kind:     "status_changed",
		Title:    "Durum Güncellendi: " + string(status),
		Body:     rec.Title + " başlıklı bildirimin durumu güncellendi.",
		ReportID: rec.ID,
		Data:     map[string]string{"status": string(status)},
	})
	s.index(rec)
	return s.viewOf(rec, session.UserID), nil
}

func (s *Service) DeleteReport(ctx context.Context, session Session, reportID string) error {
	imageKey, err := s.store.DeleteReport(ctx, reportID)
	if err != nil {
		return err
	}
	s.logger.Info("report deleted", zap.String("report_id", reportID), zap.String("moderator_id", session.UserID))

	s.publish(ctx, s.reports, feed.Removed, reportID, report.Record{ID: reportID})
	if imageKey != "" {
		s.deletePhoto(ctx, imageKey)
	}
	if s.search != nil {
		s.search.DeleteReport(reportID)
	}
	return nil
}

// SetFollowing adds or removes the session user from a report's followers.
// The change is published so other watchers see the follower list, but the
// status is unchanged so no notification results from it.
func (s *Service) SetFollowing(ctx context.Context, session Session, reportID string, follow bool) (ReportView, error) {
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return ReportView{}, err
	}
	var err error
	if follow {
		err = s.store.AddFollower(ctx, reportID, session.UserID)
	} else {
		err = s.store.RemoveFollower(ctx, reportID, session.UserID)
	}
	if err != nil {
		return ReportView{}, err
	}
	rec, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return ReportView{}, err
	}
	s.publish(ctx, s.reports, feed.Modified, rec.ID, rec)
	return s.viewOf(rec, session.UserID), nil
}

// Markers returns the map markers for the reports matching filter.
func (s *Service) Markers(ctx context.Context, session Session, filter string) ([]placement.Marker, error) {
	f, err := filterFor(session, filter)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListReports(ctx, f)
	if err != nil {
		return nil, err
	}
	markers := placement.Resolve(records, s.icons)
	s.metrics.ObserveMarkers(placement.OffsetCount(markers))
	return markers, nil
}

func (s *Service) Profile(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountReportsByAuthor(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"userId":      user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"unit":        user.Unit,
		"role":        user.Role,
		"reportCount": count,
	}, nil
}

// Stats is the admin panel summary.
func (s *Service) Stats(ctx context.Context) (map[string]any, error) {
	stats, err := s.store.ReportStats(ctx)
	if err != nil {
		return nil, err
	}
	byStatus := make(map[string]int, len(report.Statuses()))
	for _, status := range report.Statuses() {
		byStatus[string(status)] = stats.ByStatus[status]
	}
	byCategory := make(map[string]int, len(report.Categories()))
	for _, category := range report.Categories() {
		byCategory[category.Label()] = stats.ByCategory[category]
	}
	return map[string]any{
		"total":      stats.Total,
		"byStatus":   byStatus,
		"byCategory": byCategory,
	}, nil
}

func (s *Service) index(rec report.Record) {
	if s.search != nil {
		s.search.IndexReport(search.RecordFromReport(rec))
	}
}

func (s *Service) photoURL(ctx context.Context, key string) string {
	if key == "" || s.photos == nil {
		return ""
	}
	url, err := s.photos.URL(ctx, key)
	if err != nil {
		s.logger.Debug("photo url unavailable", zap.String("key", key), zap.Error(err))
		return ""
	}
	return url
}

func (s *Service) deletePhoto(ctx context.Context, key string) {
	if s.photos == nil {
		return
	}
	if err := s.photos.Delete(ctx, key); err != nil {
		s.logger.Warn("delete photo failed", zap.String("key", key), zap.Error(err))
	}
}
