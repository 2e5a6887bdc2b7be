package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryTable(t *testing.T) {
	tests := []struct {
		category Category
		label    string
		icon     string
		pref     string
		topic    string
	}{
		{CategoryGeneral, "Genel", DefaultIcon, "pref_notify_Genel", "Genel"},
		{CategoryFault, "Arıza", "ic_repair", "pref_notify_Arıza", "Ariza"},
		{CategoryComplaint, "Şikayet", "ic_complaint", "pref_notify_Şikayet", "Sikayet"},
		{CategorySecurity, "Güvenlik", "ic_security", "pref_notify_Güvenlik", "Guvenlik"},
		{CategoryCleaning, "Temizlik", "ic_cleaning", "pref_notify_Temizlik", "Temizlik"},
		{CategorySuggestion, "Öneri", DefaultIcon, "pref_notify_Öneri", "Oneri"},
		{CategoryLostItem, "Kayıp Eşya", DefaultIcon, "pref_notify_Kayıp Eşya", "KayipEsya"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.label, tt.category.Label())
			assert.Equal(t, tt.icon, tt.category.Icon())
			assert.Equal(t, tt.pref, tt.category.PreferenceKey())
			assert.Equal(t, tt.topic, tt.category.Topic())

			parsed, ok := ParseCategory(tt.label)
			require.True(t, ok)
			assert.Equal(t, tt.category, parsed)
		})
	}
	assert.Len(t, Categories(), len(tests))
}

func TestParseCategoryUnknownFallsBackToGeneral(t *testing.T) {
	c, ok := ParseCategory("Yangın")
	assert.False(t, ok)
	assert.Equal(t, CategoryGeneral, c)
	assert.Equal(t, "Genel", Category(42).Label())
}

func TestParseStatus(t *testing.T) {
	for _, value := range []string{"Açık", "İnceleniyor", " Çözüldü "} {
		_, ok := ParseStatus(value)
		assert.True(t, ok, value)
	}
	_, ok := ParseStatus("Kapalı")
	assert.False(t, ok)
}

func TestDecodeRecordAppliesDefaults(t *testing.T) {
	rec, err := DecodeRecord("r-1", []byte(`{"description":"kırık musluk"}`))
	require.NoError(t, err)
	assert.Equal(t, "r-1", rec.ID)
	assert.Equal(t, CategoryGeneral, rec.Type)
	assert.Equal(t, DefaultTitle, rec.Title)
	assert.Equal(t, StatusOpen, rec.Status)
	assert.NotNil(t, rec.Followers)
}

func TestDecodeRecordMalformedStillUsable(t *testing.T) {
	rec, err := DecodeRecord("r-2", []byte(`{not json`))
	require.Error(t, err)
	assert.Equal(t, "r-2", rec.ID)
	assert.Equal(t, DefaultTitle, rec.Title)
	assert.Equal(t, StatusOpen, rec.Status)
}

func TestRecordJSONUsesLabels(t *testing.T) {
	raw, err := json.Marshal(Record{ID: "x", Type: CategorySecurity, Status: StatusResolved})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"Güvenlik"`)

	var back Record
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, CategorySecurity, back.Type)
}

func TestHasLocationSentinel(t *testing.T) {
	assert.False(t, Record{}.HasLocation())
	assert.True(t, Record{Latitude: 39.9, Longitude: 0}.HasLocation())
}

func TestIsFollowedBy(t *testing.T) {
	rec := Record{Followers: []string{"u1", "u2"}}
	assert.True(t, rec.IsFollowedBy("u2"))
	assert.False(t, rec.IsFollowedBy("u3"))
	assert.False(t, rec.IsFollowedBy(""))
}

func TestNormalizeTopic(t *testing.T) {
	assert.Equal(t, "KayipEsya", NormalizeTopic("Kayıp Eşya"))
	assert.Equal(t, "IGUSOC", NormalizeTopic("İĞÜŞÖÇ"))
	assert.Equal(t, "report_abc", FollowTopic("abc"))
}
