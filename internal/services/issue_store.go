package services

import (
	"context"

	"github.com/civichub/backend/internal/models"
)

// IssueStore is the append-only record store for issue reports. Create must
// not return before the write is durable.
type IssueStore interface {
	Create(ctx context.Context, report *models.IssueReport) (string, error)
	Get(ctx context.Context, id string) (*models.IssueReport, error)
	QueryAll(ctx context.Context, filter models.IssueFilter) ([]*models.IssueReport, error)
}
