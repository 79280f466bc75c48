package models

import "time"

// HeatmapPoint is a derived density sample. It is never persisted.
type HeatmapPoint struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Weight float64 `json:"weight"`
}

// DefaultHeatmapWeight applies when a report carries no explicit weight.
const DefaultHeatmapWeight = 1.0

type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// IssueFilter narrows a report query. The zero value matches everything.
type IssueFilter struct {
	Department string
	Severity   Severity
	UserID     string
	Since      time.Time
	Until      time.Time
	Bounds     *Bounds
}

func (f IssueFilter) Matches(r *IssueReport) bool {
	if f.Department != "" && r.Department != f.Department {
		return false
	}
	if f.Severity != "" && r.Severity != f.Severity {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if !f.Since.IsZero() && r.Date.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Date.After(f.Until) {
		return false
	}
	if f.Bounds != nil {
		lat, lng, ok := r.Coordinates()
		if !ok || !f.Bounds.Contains(lat, lng) {
			return false
		}
	}
	return true
}
