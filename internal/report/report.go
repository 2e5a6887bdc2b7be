// Package report holds the campus report record and its closed category
// and status enumerations.
package report

import (
	"encoding/json"
	"strings"
	"time"
)

// Category is the closed set of report types a user can choose from.
type Category int

const (
	CategoryGeneral Category = iota
	CategoryFault
	CategoryComplaint
	CategorySecurity
	CategoryCleaning
	CategorySuggestion
	CategoryLostItem
)

// CategoryInfo is the mapping table entry for one category.
type CategoryInfo struct {
	Label string
	Icon  string
}

const DefaultIcon = "ic_default_marker"

var categories = [...]CategoryInfo{
	CategoryGeneral:    {Label: "Genel", Icon: DefaultIcon},
	CategoryFault:      {Label: "Arıza", Icon: "ic_repair"},
	CategoryComplaint:  {Label: "Şikayet", Icon: "ic_complaint"},
	CategorySecurity:   {Label: "Güvenlik", Icon: "ic_security"},
	CategoryCleaning:   {Label: "Temizlik", Icon: "ic_cleaning"},
	CategorySuggestion: {Label: "Öneri", Icon: DefaultIcon},
	CategoryLostItem:   {Label: "Kayıp Eşya", Icon: DefaultIcon},
}

// Categories returns every category in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	for i := range categories {
		out[i] = Category(i)
	}
	return out
}

func (c Category) info() CategoryInfo {
	if c < 0 || int(c) >= len(categories) {
		return categories[CategoryGeneral]
	}
	return categories[c]
}

// Label is the user-facing Turkish name, also used in notification titles.
func (c Category) Label() string { return c.info().Label }

// Icon is the marker icon name for the map.
func (c Category) Icon() string { return c.info().Icon }

// PreferenceKey is the notification preference flag for this category.
func (c Category) PreferenceKey() string { return "pref_notify_" + c.Label() }

// Topic is the push topic for new reports of this category.
func (c Category) Topic() string { return NormalizeTopic(c.Label()) }

func (c Category) String() string { return c.Label() }

// ParseCategory maps a label to its category. Unknown or empty labels
// report ok=false and fall back to CategoryGeneral.
func ParseCategory(label string) (Category, bool) {
	label = strings.TrimSpace(label)
	for i, info := range categories {
		if info.Label == label {
			return Category(i), true
		}
	}
	return CategoryGeneral, false
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.Label()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	*c, _ = ParseCategory(string(text))
	return nil
}

// Status is the moderation state of a report.
type Status string

const (
	StatusOpen     Status = "Açık"
	StatusInReview Status = "İnceleniyor"
	StatusResolved Status = "Çözüldü"
)

// Statuses lists every status in workflow order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusInReview, StatusResolved}
}

// ParseStatus accepts the three known statuses only.
func ParseStatus(value string) (Status, bool) {
	switch s := Status(strings.TrimSpace(value)); s {
	case StatusOpen, StatusInReview, StatusResolved:
		return s, true
	default:
		return "", false
	}
}

const (
	DefaultTitle  = "Bildirim"
	DefaultStatus = StatusOpen
)

// Record is a single campus report as it travels through the live feed.
type Record struct {
	ID          string    `json:"id"`
	Type        Category  `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Timestamp   time.Time `json:"timestamp"`
	AuthorID    string    `json:"userId"`
	AuthorName  string    `json:"userName"`
	ImageKey    string    `json:"imageKey,omitempty"`
	Followers   []string  `json:"followers"`
}

// HasLocation is false for the (0,0) "no location" sentinel.
func (r Record) HasLocation() bool {
	return !(r.Latitude == 0 && r.Longitude == 0)
}

// IsFollowedBy reports whether userID is among the followers.
func (r Record) IsFollowedBy(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range r.Followers {
		if id == userID {
			return true
		}
	}
	return false
}

// WithDefaults substitutes fixed values for missing fields so a single bad
// record never blocks the rest of a batch.
func (r Record) WithDefaults() Record {
	if strings.TrimSpace(r.Title) == "" {
		r.Title = DefaultTitle
	}
	if strings.TrimSpace(string(r.Status)) == "" {
		r.Status = DefaultStatus
	}
	if r.Followers == nil {
		r.Followers = []string{}
	}
	return r
}

// DecodeRecord parses a record payload and applies defaults. An unparsable
// payload yields a record with only the fallback id and defaults.
func DecodeRecord(id string, data []byte) (Record, error) {
	var rec Record
	err := json.Unmarshal(data, &rec)
	if rec.ID == "" {
		rec.ID = id
	}
	return rec.WithDefaults(), err
}

// Announcement is an administrator broadcast.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	AuthorID  string    `json:"authorId"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	DefaultAnnouncementTitle   = "Duyuru"
	DefaultAnnouncementMessage = "Yeni bir duyuru var"
)

// WithDefaults fills the announcement title and message when missing.
func (a Announcement) WithDefaults() Announcement {
	if strings.TrimSpace(a.Title) == "" {
		a.Title = DefaultAnnouncementTitle
	}
	if strings.TrimSpace(a.Message) == "" {
		a.Message = DefaultAnnouncementMessage
	}
	return a
}

var topicReplacer = strings.NewReplacer(
	" ", "",
	"ı", "i", "İ", "I",
	"ğ", "g", "Ğ", "G",
	"ü", "u", "Ü", "U",
	"ş", "s", "Ş", "S",
	"ö", "o", "Ö", "O",
	"ç", "c", "Ç", "C",
)

// NormalizeTopic strips spaces and folds Turkish letters so the value is a
// valid push topic name, e.g. "Kayıp Eşya" -> "KayipEsya".
func NormalizeTopic(name string) string {
	return topicReplacer.Replace(name)
}

// FollowTopic is the push topic followers of a report subscribe to.
func FollowTopic(reportID string) string {
	return "report_" + reportID
}

// AnnouncementsTopic carries administrator broadcasts.
const AnnouncementsTopic = "announcements"
