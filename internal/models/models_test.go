package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestNewAccountStartsDisabled(t *testing.T) {
	a := NewAccount("uid-1", " ada@example.com ", "Ada", "Lovelace", "", time.Now())
	assert.False(t, a.IsEnabled)
	assert.Equal(t, RoleUser, a.Role)
	assert.Equal(t, "ada@example.com", a.Email)
	assert.Equal(t, "Ada Lovelace", a.DisplayName())
}

func TestSplitDisplayName(t *testing.T) {
	first, last := SplitDisplayName("Ada King Lovelace")
	assert.Equal(t, "Ada", first)
	assert.Equal(t, "King Lovelace", last)

	first, last = SplitDisplayName("  ")
	assert.Empty(t, first)
	assert.Empty(t, last)
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
		ok   bool
	}{
		{"low", SeverityLow, true},
		{"  HIGH\n", SeverityHigh, true},
		{"Medium", SeverityMedium, true},
		{"critical", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSeverity(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"pothole", "road"}, NormalizeTags([]string{" pothole", "", "road", "pothole"}))
	assert.Empty(t, NormalizeTags(nil))
}

func TestCoordinates(t *testing.T) {
	r := &IssueReport{Lat: ptr(10), Lng: ptr(20)}
	lat, lng, ok := r.Coordinates()
	assert.True(t, ok)
	assert.Equal(t, 10.0, lat)
	assert.Equal(t, 20.0, lng)

	_, _, ok = (&IssueReport{Lat: ptr(10)}).Coordinates()
	assert.False(t, ok)

	_, _, ok = (&IssueReport{Lat: ptr(91), Lng: ptr(0)}).Coordinates()
	assert.False(t, ok)
}

func TestAllowedPhotoTypes(t *testing.T) {
	for _, mt := range []string{"image/png", "image/jpeg", "image/webp", "image/heic", "IMAGE/HEIF"} {
		assert.True(t, IsAllowedPhotoType(mt), mt)
	}
	assert.False(t, IsAllowedPhotoType("text/plain"))
	assert.False(t, IsAllowedPhotoType("image/gif"))
	assert.Equal(t, ".jpg", PhotoExtension("image/jpeg"))
}

func TestIssueFilterMatches(t *testing.T) {
	day := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &IssueReport{
		UserID:     "u1",
		Department: "General",
		Severity:   SeverityLow,
		Date:       day,
		Lat:        ptr(12.97),
		Lng:        ptr(77.59),
	}

	assert.True(t, IssueFilter{}.Matches(r))
	assert.True(t, IssueFilter{Department: "General", Severity: SeverityLow, UserID: "u1"}.Matches(r))
	assert.False(t, IssueFilter{Department: "Water"}.Matches(r))
	assert.False(t, IssueFilter{Since: day.Add(time.Hour)}.Matches(r))
	assert.False(t, IssueFilter{Until: day.Add(-time.Hour)}.Matches(r))
	assert.True(t, IssueFilter{Bounds: &Bounds{MinLat: 12, MaxLat: 13, MinLng: 77, MaxLng: 78}}.Matches(r))
	assert.False(t, IssueFilter{Bounds: &Bounds{MinLat: 0, MaxLat: 1, MinLng: 0, MaxLng: 1}}.Matches(r))
	assert.False(t, IssueFilter{Bounds: &Bounds{MinLat: -90, MaxLat: 90, MinLng: -180, MaxLng: 180}}.Matches(&IssueReport{}))
}
