package services

import (
	"context"

	"github.com/civichub/backend/internal/models"
)

// AccountDirectory stores account profiles keyed by identity UID.
// Create returns ErrAccountExists when the UID is already present; Get
// returns ErrNotFound for an unknown UID.
type AccountDirectory interface {
	Create(ctx context.Context, account *models.Account) (string, error)
	Get(ctx context.Context, userID string) (*models.Account, error)
	QueryAll(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)
}
