package app

import (
	"context"
	"net/http"
	"sort"

	"kampus/api/internal/push"
	"kampus/api/internal/report"
	"kampus/api/internal/store"
)

// PreferencesView lists the per-category notification flags and the push
// topics the client should be subscribed to.
type PreferencesView struct {
	Categories map[string]bool `json:"categories"`
	Topics     []string        `json:"topics"`
}

func (s *Service) preferencesUnavailable() error {
	return domainError(http.StatusServiceUnavailable, "PREFERENCES_UNAVAILABLE", "Bildirim tercihleri kullanılamıyor.", nil)
}

func (s *Service) Preferences(ctx context.Context, session Session) (PreferencesView, error) {
	if s.prefs == nil {
		return PreferencesView{}, s.preferencesUnavailable()
	}
	flags, err := s.prefs.All(ctx, session.UserID)
	if err != nil {
		return PreferencesView{}, err
	}
	followed, err := s.store.ListReports(ctx, store.ReportFilter{FollowerID: session.UserID})
	if err != nil {
		return PreferencesView{}, err
	}

	view := PreferencesView{
		Categories: make(map[string]bool, len(flags)),
		Topics:     []string{report.AnnouncementsTopic, push.UserTopic(session.UserID)},
	}
	for _, category := range report.Categories() {
		enabled := flags[category]
		view.Categories[category.Label()] = enabled
		if enabled {
			view.Topics = append(view.Topics, category.Topic())
		}
	}
	for _, rec := range followed {
		view.Topics = append(view.Topics, report.FollowTopic(rec.ID))
	}
	sort.Strings(view.Topics[2:])
	return view, nil
}

// SetPreferences updates the given category flags, keyed by label, and
// returns the resulting view.
func (s *Service) SetPreferences(ctx context.Context, session Session, values map[string]bool) (PreferencesView, error) {
	if s.prefs == nil {
		return PreferencesView{}, s.preferencesUnavailable()
	}
	updates := make(map[report.Category]bool, len(values))
	for label, enabled := range values {
		category, ok := report.ParseCategory(label)
		if !ok {
			return PreferencesView{}, validationError("Bilinmeyen kategori: " + label)
		}
		updates[category] = enabled
	}
	if len(updates) > 0 {
		if err := s.prefs.SetCategories(ctx, session.UserID, updates); err != nil {
			return PreferencesView{}, err
		}
	}
	return s.Preferences(ctx, session)
}
