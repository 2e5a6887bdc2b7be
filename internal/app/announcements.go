package app

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"kampus/api/internal/feed"
	"kampus/api/internal/push"
	"kampus/api/internal/report"
	"kampus/api/internal/util"
)

const announcementListLimit = 20

func (s *Service) ListAnnouncements(ctx context.Context, limit int) ([]report.Announcement, error) {
	if limit <= 0 || limit > 100 {
		limit = announcementListLimit
	}
	items, err := s.store.ListAnnouncements(ctx, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []report.Announcement{}
	}
	return items, nil
}

// Announce stores an administrator broadcast, publishes it to watchers and
// pushes it on the announcements topic.
func (s *Service) Announce(ctx context.Context, session Session, title, message string) (report.Announcement, error) {
	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	if title == "" || message == "" {
		return report.Announcement{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Başlık ve mesaj boş olamaz.", nil)
	}
	a := report.Announcement{
		ID:        util.NewID(),
		Title:     title,
		Message:   message,
		AuthorID:  session.UserID,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.InsertAnnouncement(ctx, a); err != nil {
		return report.Announcement{}, err
	}
	s.logger.Info("announcement published", zap.String("announcement_id", a.ID), zap.String("user_id", session.UserID))

	s.publish(ctx, s.announcements, feed.Added, a.ID, a)
	s.pushTopic(ctx, report.AnnouncementsTopic, push.Message{
		Kind:  "announcement",
		Title: a.Title,
		Body:  a.Message,
	})
	return a, nil
}
