package placement

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kampus/api/internal/report"
)

const eps = 1e-9

func rec(id string, lat, lng float64, c report.Category) report.Record {
	return report.Record{ID: id, Title: id, Type: c, Latitude: lat, Longitude: lng, Status: report.StatusOpen}
}

func TestKeyUsesFiveDecimals(t *testing.T) {
	assert.Equal(t, "39.90550_41.26580", Key(39.9055, 41.2658))
	assert.Equal(t, Key(39.905501, 41.265801), Key(39.905504, 41.265799))
	assert.NotEqual(t, Key(39.90550, 41.26580), Key(39.90551, 41.26580))
}

func TestResolveSkipsSentinel(t *testing.T) {
	markers := Resolve([]report.Record{
		rec("a", 0, 0, report.CategoryFault),
		rec("b", 0, 0, report.CategoryGeneral),
	}, StaticIcons{})
	assert.Empty(t, markers)
}

func TestResolveCollisionOffsets(t *testing.T) {
	records := []report.Record{
		rec("first", 39.90550, 41.26580, report.CategoryFault),
		rec("second", 39.90550, 41.26580, report.CategoryFault),
		rec("third", 39.90550, 41.26580, report.CategoryFault),
		rec("fourth", 39.90550, 41.26580, report.CategoryFault),
	}
	markers := Resolve(records, StaticIcons{})
	require.Len(t, markers, 4)

	base := markers[0]
	assert.False(t, base.Offset)
	assert.InDelta(t, 39.90550, base.Latitude, eps)
	assert.InDelta(t, 41.26580, base.Longitude, eps)

	expect := [][2]float64{
		{+0.00025, +0.00025},
		{-0.00025, -0.00025},
		{+0.00025, -0.00025},
	}
	for i, want := range expect {
		m := markers[i+1]
		assert.True(t, m.Offset)
		assert.InDelta(t, want[0], m.Latitude-base.Latitude, eps, m.ReportID)
		assert.InDelta(t, want[1], m.Longitude-base.Longitude, eps, m.ReportID)
	}
	assert.Equal(t, 3, OffsetCount(markers))
}

func TestResolveAllCollidingPositionsDistinct(t *testing.T) {
	var records []report.Record
	for i := 0; i < 17; i++ {
		records = append(records, rec("r", 39.9, 41.2, report.CategoryGeneral))
	}
	markers := Resolve(records, nil)
	seen := map[string]bool{}
	for _, m := range markers {
		k := Key(m.Latitude*1e3, m.Longitude*1e3)
		assert.False(t, seen[k], "duplicate position %s", k)
		seen[k] = true
	}
}

func TestResolveDistinctKeysNeverOffset(t *testing.T) {
	markers := Resolve([]report.Record{
		rec("a", 39.90550, 41.26580, report.CategoryGeneral),
		rec("b", 39.90560, 41.26580, report.CategoryGeneral),
		rec("c", 39.90550, 41.26590, report.CategoryGeneral),
	}, StaticIcons{})
	require.Len(t, markers, 3)
	for _, m := range markers {
		assert.False(t, m.Offset)
	}
}

func TestResolveIsRecomputedFromSource(t *testing.T) {
	records := []report.Record{
		rec("a", 39.90550, 41.26580, report.CategoryGeneral),
		rec("b", 39.90550, 41.26580, report.CategoryGeneral),
	}
	first := Resolve(records, nil)
	second := Resolve(records, nil)
	assert.Equal(t, first, second)
}

func TestOffsetRings(t *testing.T) {
	dLat, dLng := Offset(0)
	assert.Zero(t, dLat)
	assert.Zero(t, dLng)

	dLat, dLng = Offset(4)
	assert.InDelta(t, -0.00025, dLat, eps)
	assert.InDelta(t, +0.00025, dLng, eps)

	dLat, dLng = Offset(5)
	assert.InDelta(t, +0.0005, dLat, eps)
	assert.InDelta(t, +0.0005, dLng, eps)
}

func TestResolveIcons(t *testing.T) {
	markers := Resolve([]report.Record{
		rec("fault", 1, 1, report.CategoryFault),
		rec("complaint", 2, 2, report.CategoryComplaint),
		rec("security", 3, 3, report.CategorySecurity),
		rec("cleaning", 4, 4, report.CategoryCleaning),
		rec("lost", 5, 5, report.CategoryLostItem),
	}, StaticIcons{BaseURL: "https://cdn.example/icons/"})
	require.Len(t, markers, 5)
	assert.Equal(t, "https://cdn.example/icons/ic_repair.png", markers[0].Icon)
	assert.Equal(t, "https://cdn.example/icons/ic_complaint.png", markers[1].Icon)
	assert.Equal(t, "https://cdn.example/icons/ic_security.png", markers[2].Icon)
	assert.Equal(t, "https://cdn.example/icons/ic_cleaning.png", markers[3].Icon)
	assert.Equal(t, "https://cdn.example/icons/ic_default_marker.png", markers[4].Icon)
}

type failingIcons struct{}

func (failingIcons) Icon(report.Category) (string, error) {
	return "", errors.New("asset missing")
}

func TestResolveIconFailureKeepsMarker(t *testing.T) {
	markers := Resolve([]report.Record{rec("a", 39.9, 41.2, report.CategorySecurity)}, failingIcons{})
	require.Len(t, markers, 1)
	assert.Empty(t, markers[0].Icon)
}
