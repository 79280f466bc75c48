package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civichub/backend/internal/models"
)

func TestIssueFromFirestoreFormDocument(t *testing.T) {
	date := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	r, err := issueFromFirestore("doc1", map[string]interface{}{
		"user":       "u1",
		"date":       date,
		"department": "General",
		"location":   "MG Road",
		"lat":        "12.9716",
		"lng":        " 77.5946 ",
		"tags":       `["pothole","streetlight"]`,
		"severity":   "low",
		"photoUrl":   "https://example.com/p.jpg",
		"progress":   int64(1),
	})
	require.NoError(t, err)

	assert.Equal(t, "doc1", r.ID)
	assert.Equal(t, "u1", r.UserID)
	assert.Equal(t, date, r.Date)
	assert.Equal(t, []string{"pothole", "streetlight"}, r.Tags)
	assert.Equal(t, models.SeverityLow, r.Severity)
	assert.Equal(t, 1, r.Progress)

	lat, lng, ok := r.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 12.9716, lat, 1e-9)
	assert.InDelta(t, 77.5946, lng, 1e-9)
}

func TestIssueFromFirestoreNativeDocument(t *testing.T) {
	r, err := issueFromFirestore("doc2", map[string]interface{}{
		"user":     "u2",
		"lat":      12.5,
		"lng":      int64(77),
		"tags":     []interface{}{"leak"},
		"progress": int64(2),
		"weight":   2.5,
	})
	require.NoError(t, err)

	require.NotNil(t, r.Lat)
	assert.Equal(t, 12.5, *r.Lat)
	require.NotNil(t, r.Lng)
	assert.Equal(t, 77.0, *r.Lng)
	assert.Equal(t, []string{"leak"}, r.Tags)
	assert.Equal(t, 2, r.Progress)
	require.NotNil(t, r.Weight)
	assert.Equal(t, 2.5, *r.Weight)
	assert.True(t, r.Date.IsZero())
}

func TestIssueFromFirestoreMissingCoordinates(t *testing.T) {
	r, err := issueFromFirestore("doc3", map[string]interface{}{"user": "u3", "lat": "", "tags": ""})
	require.NoError(t, err)
	assert.Nil(t, r.Lat)
	assert.Nil(t, r.Lng)
	assert.Empty(t, r.Tags)
	_, _, ok := r.Coordinates()
	assert.False(t, ok)
}

func TestIssueFromFirestoreRejectsGarbage(t *testing.T) {
	tests := map[string]map[string]interface{}{
		"lat not a number": {"lat": "north"},
		"lng wrong type":   {"lng": true},
		"tags not json":    {"tags": "pothole,leak"},
		"date not a time":  {"date": "yesterday"},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := issueFromFirestore("bad", data)
			assert.Error(t, err)
		})
	}
}

func TestIssueFromFirestoreFeedsHeatmap(t *testing.T) {
	r, err := issueFromFirestore("doc4", map[string]interface{}{"lat": "10", "lng": "20", "tags": `["pothole"]`})
	require.NoError(t, err)
	ctx := context.Background()
	issues := &memIssues{}
	_, err = issues.Create(ctx, r)
	require.NoError(t, err)

	points, err := NewAggregationService(issues, testLogger).Heatmap(ctx, models.IssueFilter{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 10.0, points[0].Lat)
	assert.Equal(t, 20.0, points[0].Lng)
}
