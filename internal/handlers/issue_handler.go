package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/civichub/backend/internal/middleware"
	"github.com/civichub/backend/internal/models"
	"github.com/civichub/backend/internal/services"
)

type IssueSubmitter interface {
	Submit(ctx context.Context, req models.SubmitIssueRequest) (*models.IssueReport, error)
}

type HeatmapSource interface {
	Heatmap(ctx context.Context, filter models.IssueFilter) ([]models.HeatmapPoint, error)
}

type IssueGetter interface {
	Get(ctx context.Context, id string) (*models.IssueReport, error)
}

type IssueHandler struct {
	intake    IssueSubmitter
	heatmap   HeatmapSource
	issues    IssueGetter
	maxSizeMB int64
	timeout   time.Duration
	logger    *slog.Logger
}

func NewIssueHandler(intake IssueSubmitter, heatmap HeatmapSource, issues IssueGetter, maxSizeMB int64, timeout time.Duration, logger *slog.Logger) *IssueHandler {
	return &IssueHandler{
		intake:    intake,
		heatmap:   heatmap,
		issues:    issues,
		maxSizeMB: maxSizeMB,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "IssueHandler")),
	}
}

// Submit accepts the multipart issue form and answers with the assigned
// department.
func (h *IssueHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.SubmitIssueError{Error: "Unauthorized"})
		return
	}

	// Limit request body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSizeMB*1024*1024)

	if err := r.ParseMultipartForm(h.maxSizeMB * 1024 * 1024); err != nil {
		writeJSON(w, http.StatusBadRequest, models.SubmitIssueError{Error: "File too large or invalid form data"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	if owner := strings.TrimSpace(r.FormValue("user")); owner != "" && owner != userID {
		writeJSON(w, http.StatusForbidden, models.SubmitIssueError{Error: "user does not match the signed-in account"})
		return
	}

	tags, err := parseTags(r.FormValue("tags"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.SubmitIssueError{
			Error: "tags must be a JSON array of strings",
			Code:  string(services.ValidationTagCount),
		})
		return
	}

	req := models.SubmitIssueRequest{
		UserID:   userID,
		Location: strings.TrimSpace(r.FormValue("location")),
		Lat:      parseCoordinate(r.FormValue("lat")),
		Lng:      parseCoordinate(r.FormValue("lng")),
		Tags:     tags,
		Date:     strings.TrimSpace(r.FormValue("date")),
	}

	if file, header, err := r.FormFile("photo"); err == nil {
		data, readErr := io.ReadAll(file)
		file.Close()
		if readErr != nil {
			writeJSON(w, http.StatusBadRequest, models.SubmitIssueError{Error: "Failed to read photo"})
			return
		}
		req.Photo = data
		req.PhotoMimeType = photoMimeType(header.Header.Get("Content-Type"), data)
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.intake.Submit(ctx, req)
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, models.SubmitIssueError{Error: ve.Message, Code: string(ve.Kind)})
			return
		}
		h.logger.Error("issue submission failed", slog.String("user", userID), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, models.SubmitIssueError{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, models.SubmitIssueResponse{Response: report.Department})
}

// Heatmap returns a bare array of {lat, lng, weight}.
func (h *IssueHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	filter, fieldErrs := parseIssueFilter(r)
	if len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(fieldErrs))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	points, err := h.heatmap.Heatmap(ctx, filter)
	if err != nil {
		h.logger.Error("heatmap query failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to load heatmap"))
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *IssueHandler) GetIssue(w http.ResponseWriter, r *http.Request) {
	issueID := chi.URLParam(r, "issueId")

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.issues.Get(ctx, issueID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Issue not found"))
			return
		}
		h.logger.Error("issue lookup failed", slog.String("issue_id", issueID), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to load issue"))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(report))
}

// parseCoordinate returns nil for a missing or unparsable value, which the
// intake service reports as a missing location.
func parseCoordinate(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseTags(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// photoMimeType trusts the part's declared type unless it is missing or
// generic, in which case the bytes are sniffed.
func photoMimeType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(data) == 0 {
		return declared
	}
	return mimetype.Detect(data).String()
}

func parseIssueFilter(r *http.Request) (models.IssueFilter, map[string]string) {
	q := r.URL.Query()
	errs := map[string]string{}

	filter := models.IssueFilter{
		Department: strings.TrimSpace(q.Get("department")),
		UserID:     strings.TrimSpace(q.Get("user")),
	}

	if raw := strings.TrimSpace(q.Get("severity")); raw != "" {
		sev, ok := models.ParseSeverity(raw)
		if !ok {
			errs["severity"] = "must be low, medium or high"
		}
		filter.Severity = sev
	}

	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"since", &filter.Since}, {"until", &filter.Until}} {
		raw := strings.TrimSpace(q.Get(p.key))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errs[p.key] = "must be an RFC 3339 timestamp"
			continue
		}
		*p.dst = t
	}

	keys := []string{"min_lat", "max_lat", "min_lng", "max_lng"}
	vals := make([]float64, len(keys))
	present := 0
	for i, k := range keys {
		raw := strings.TrimSpace(q.Get(k))
		if raw == "" {
			continue
		}
		present++
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs[k] = "must be a number"
			continue
		}
		vals[i] = v
	}
	switch {
	case present == len(keys) && len(errs) == 0:
		b := models.Bounds{MinLat: vals[0], MaxLat: vals[1], MinLng: vals[2], MaxLng: vals[3]}
		if !models.ValidLatitude(b.MinLat) || !models.ValidLatitude(b.MaxLat) || b.MinLat > b.MaxLat {
			errs["min_lat"] = "latitude bounds must be ordered and within [-90, 90]"
		} else if !models.ValidLongitude(b.MinLng) || !models.ValidLongitude(b.MaxLng) || b.MinLng > b.MaxLng {
			errs["min_lng"] = "longitude bounds must be ordered and within [-180, 180]"
		} else {
			filter.Bounds = &b
		}
	case present > 0 && present < len(keys):
		errs["bounds"] = "min_lat, max_lat, min_lng and max_lng must be given together"
	}

	return filter, errs
}
