package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/civichub/backend/internal/models"
	"github.com/civichub/backend/internal/storage"
)

// FileIssueStore keeps issue reports in DATA_DIR/issues.json.
type FileIssueStore struct {
	col *storage.Collection[models.IssueReport]
}

func NewFileIssueStore(dataDir string) (*FileIssueStore, error) {
	col, err := storage.OpenCollection[models.IssueReport](dataDir, "issues.json")
	if err != nil {
		return nil, err
	}
	return &FileIssueStore{col: col}, nil
}

func (s *FileIssueStore) Create(ctx context.Context, report *models.IssueReport) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rec := *report
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.Tags = append([]string(nil), report.Tags...)
	if err := s.col.Insert(rec.ID, rec); err != nil {
		return "", fmt.Errorf("file issue store: %w", err)
	}
	return rec.ID, nil
}

func (s *FileIssueStore) Get(ctx context.Context, id string) (*models.IssueReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := s.col.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *FileIssueStore) QueryAll(ctx context.Context, filter models.IssueFilter) ([]*models.IssueReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := s.col.All()
	out := make([]*models.IssueReport, 0, len(all))
	for i := range all {
		if filter.Matches(&all[i]) {
			out = append(out, &all[i])
		}
	}
	return out, nil
}

// FileAccountDirectory keeps accounts in DATA_DIR/accounts.json.
type FileAccountDirectory struct {
	col *storage.Collection[models.Account]
}

func NewFileAccountDirectory(dataDir string) (*FileAccountDirectory, error) {
	col, err := storage.OpenCollection[models.Account](dataDir, "accounts.json")
	if err != nil {
		return nil, err
	}
	return &FileAccountDirectory{col: col}, nil
}

func (d *FileAccountDirectory) Create(ctx context.Context, account *models.Account) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if account.UserID == "" {
		return "", errors.New("file account directory: empty user id")
	}
	if err := d.col.Insert(account.UserID, *account); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return "", ErrAccountExists
		}
		return "", fmt.Errorf("file account directory: %w", err)
	}
	return account.UserID, nil
}

func (d *FileAccountDirectory) Get(ctx context.Context, userID string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := d.col.Get(userID)
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (d *FileAccountDirectory) QueryAll(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := d.col.All()
	out := make([]*models.Account, 0, len(all))
	for i := range all {
		if filter.Matches(&all[i]) {
			out = append(out, &all[i])
		}
	}
	return out, nil
}
