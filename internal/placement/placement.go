// Package placement computes map marker positions for campus reports so
// that reports filed at the same spot stay individually visible.
package placement

import (
	"fmt"
	"strings"
	"time"

	"kampus/api/internal/report"
)

// OffsetStep is the displacement per ring, roughly 20-30 m on campus.
const OffsetStep = 0.00025

// directions rotate through the four diagonals as (lat, lng) signs.
var directions = [4][2]float64{
	{+1, +1},
	{-1, -1},
	{+1, -1},
	{-1, +1},
}

// Marker is a report ready to be drawn on the map.
type Marker struct {
	ReportID  string          `json:"id"`
	Title     string          `json:"title"`
	Status    report.Status   `json:"status"`
	Type      report.Category `json:"type"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Icon      string          `json:"icon,omitempty"`
	Offset    bool            `json:"offset"`
	Timestamp time.Time       `json:"timestamp"`
}

// IconResolver returns the icon reference for a category.
type IconResolver interface {
	Icon(category report.Category) (string, error)
}

// StaticIcons resolves icons to "<BaseURL><name>.png", or the bare icon
// name when BaseURL is empty.
type StaticIcons struct {
	BaseURL string
}

func (s StaticIcons) Icon(category report.Category) (string, error) {
	name := category.Icon()
	if name == "" {
		return "", fmt.Errorf("no icon for category %q", category.Label())
	}
	if s.BaseURL == "" {
		return name, nil
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + name + ".png", nil
}

// Key is the collision key: both coordinates at five decimals (~1.1 m).
func Key(lat, lng float64) string {
	return fmt.Sprintf("%.5f_%.5f", lat, lng)
}

// Offset returns the displacement for the count-th record (0-based) that
// shares a key. The first keeps its position; later ones walk the four
// diagonals, moving one OffsetStep further out after every full turn.
func Offset(count int) (dLat, dLng float64) {
	if count <= 0 {
		return 0, 0
	}
	ring := (count-1)/4 + 1
	dir := directions[(count-1)%4]
	distance := OffsetStep * float64(ring)
	return dir[0] * distance, dir[1] * distance
}

// Resolve places every record with a real location. Records at the (0,0)
// sentinel are dropped; the others keep input order. Keys are computed
// from the stored coordinates, never from a previous result. A failed icon
// lookup leaves the marker with the default rendering.
func Resolve(records []report.Record, icons IconResolver) []Marker {
	counts := make(map[string]int, len(records))
	markers := make([]Marker, 0, len(records))

	for _, rec := range records {
		if !rec.HasLocation() {
			continue
		}
		key := Key(rec.Latitude, rec.Longitude)
		count := counts[key]
		counts[key] = count + 1

		dLat, dLng := Offset(count)
		marker := Marker{
			ReportID:  rec.ID,
			Title:     rec.Title,
			Status:    rec.Status,
			Type:      rec.Type,
			Latitude:  rec.Latitude + dLat,
			Longitude: rec.Longitude + dLng,
			Offset:    count > 0,
			Timestamp: rec.Timestamp,
		}
		if icons != nil {
			if icon, err := icons.Icon(rec.Type); err == nil {
				marker.Icon = icon
			}
		}
		markers = append(markers, marker)
	}
	return markers
}

// OffsetCount returns how many markers were displaced.
func OffsetCount(markers []Marker) int {
	n := 0
	for _, m := range markers {
		if m.Offset {
			n++
		}
	}
	return n
}
