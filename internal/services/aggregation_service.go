package services

import (
	"context"
	"log/slog"

	"github.com/civichub/backend/internal/models"
)

// IssueReader is the read side of IssueStore used for aggregation.
type IssueReader interface {
	QueryAll(ctx context.Context, filter models.IssueFilter) ([]*models.IssueReport, error)
}

// WeightFunc overrides the weight given to a report. Returning ok=false
// falls back to the default rule.
type WeightFunc func(r *models.IssueReport) (weight float64, ok bool)

// AggregationService projects stored reports into heatmap points. It keeps
// no state: each call reads a fresh snapshot.
type AggregationService struct {
	issues IssueReader
	weight WeightFunc
	logger *slog.Logger
}

type AggregationOption func(*AggregationService)

func WithWeightFunc(fn WeightFunc) AggregationOption {
	return func(s *AggregationService) { s.weight = fn }
}

func NewAggregationService(issues IssueReader, logger *slog.Logger, opts ...AggregationOption) *AggregationService {
	s := &AggregationService{issues: issues, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Heatmap returns one point per matching report. Reports without valid
// coordinates are skipped and logged. Point order is unspecified.
func (s *AggregationService) Heatmap(ctx context.Context, filter models.IssueFilter) ([]models.HeatmapPoint, error) {
	reports, err := s.issues.QueryAll(ctx, filter)
	if err != nil {
		return nil, err
	}

	points := make([]models.HeatmapPoint, 0, len(reports))
	skipped := 0
	for _, r := range reports {
		lat, lng, ok := r.Coordinates()
		if !ok {
			skipped++
			s.logger.Debug("heatmap skip", slog.String("issue_id", r.ID), slog.String("reason", "missing or invalid coordinates"))
			continue
		}
		points = append(points, models.HeatmapPoint{Lat: lat, Lng: lng, Weight: s.weightOf(r)})
	}

	if skipped > 0 {
		s.logger.Warn("heatmap skipped malformed reports", slog.Int("skipped", skipped), slog.Int("points", len(points)))
	}
	return points, nil
}

func (s *AggregationService) weightOf(r *models.IssueReport) float64 {
	if s.weight != nil {
		if w, ok := s.weight(r); ok {
			return w
		}
	}
	if r.Weight != nil {
		return *r.Weight
	}
	return models.DefaultHeatmapWeight
}
