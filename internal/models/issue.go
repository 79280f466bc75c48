package models

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity normalizes s and reports whether it names a known severity.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	}
	return "", false
}

// InitialProgress is the lifecycle counter every new report starts with.
const InitialProgress = 1

const (
	MinTags = 1
	MaxTags = 4
)

type IssueReport struct {
	ID            string    `json:"id" firestore:"-"`
	UserID        string    `json:"user" firestore:"user"`
	Date          time.Time `json:"date" firestore:"date"`
	SubmittedDate string    `json:"submitted_date,omitempty" firestore:"submittedDate,omitempty"`
	Location      string    `json:"location" firestore:"location"`
	Lat           *float64  `json:"lat,omitempty" firestore:"lat"`
	Lng           *float64  `json:"lng,omitempty" firestore:"lng"`
	PhotoURL      string    `json:"photo_url" firestore:"photoUrl"`
	Tags          []string  `json:"tags" firestore:"tags"`
	Department    string    `json:"department" firestore:"department"`
	Severity      Severity  `json:"severity" firestore:"severity"`
	Progress      int       `json:"progress" firestore:"progress"`
	Weight        *float64  `json:"weight,omitempty" firestore:"weight,omitempty"`
}

// Coordinates returns the report position when both values are present and
// inside WGS-84 ranges.
func (r *IssueReport) Coordinates() (lat, lng float64, ok bool) {
	if r.Lat == nil || r.Lng == nil {
		return 0, 0, false
	}
	if !ValidLatitude(*r.Lat) || !ValidLongitude(*r.Lng) {
		return 0, 0, false
	}
	return *r.Lat, *r.Lng, true
}

func ValidLatitude(v float64) bool  { return v >= -90 && v <= 90 }
func ValidLongitude(v float64) bool { return v >= -180 && v <= 180 }

// SubmitIssueRequest is one citizen submission as received from the form.
type SubmitIssueRequest struct {
	UserID        string   `validate:"required"`
	Location      string   `validate:"max=512"`
	Lat           *float64 `validate:"required,latitude"`
	Lng           *float64 `validate:"required,longitude"`
	Photo         []byte   `validate:"-"`
	PhotoMimeType string   `validate:"-"`
	Tags          []string `validate:"min=1,max=4"`
	Date          string   `validate:"-"`
}

// NormalizeTags trims, drops empty values and removes duplicates while
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// AllowedPhotoTypes is the image MIME allow-list for submissions.
var AllowedPhotoTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/heif": ".heif",
}

func IsAllowedPhotoType(mimeType string) bool {
	_, ok := AllowedPhotoTypes[strings.ToLower(strings.TrimSpace(mimeType))]
	return ok
}

// PhotoExtension returns the file extension used when storing mimeType.
func PhotoExtension(mimeType string) string {
	if ext, ok := AllowedPhotoTypes[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext
	}
	return ".bin"
}
