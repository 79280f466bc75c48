package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/civichub/backend/internal/models"
)

// Collection names used by the web client.
const (
	firestoreIssueCollection   = "IssueDetails"
	firestoreAccountCollection = "Users"
)

// FirestoreIssueStore keeps reports in the IssueDetails collection.
// Equality filters run server-side; date and bounds are applied after.
type FirestoreIssueStore struct {
	client *firestore.Client
	logger *slog.Logger
}

func NewFirestoreIssueStore(client *firestore.Client, logger *slog.Logger) *FirestoreIssueStore {
	return &FirestoreIssueStore{client: client, logger: logger}
}

func (s *FirestoreIssueStore) Create(ctx context.Context, report *models.IssueReport) (string, error) {
	col := s.client.Collection(firestoreIssueCollection)
	if report.ID != "" {
		if _, err := col.Doc(report.ID).Create(ctx, report); err != nil {
			return "", fmt.Errorf("firestore issue create: %w", err)
		}
		return report.ID, nil
	}
	ref, _, err := col.Add(ctx, report)
	if err != nil {
		return "", fmt.Errorf("firestore issue add: %w", err)
	}
	return ref.ID, nil
}

func (s *FirestoreIssueStore) Get(ctx context.Context, id string) (*models.IssueReport, error) {
	snap, err := s.client.Collection(firestoreIssueCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return issueFromFirestore(snap.Ref.ID, snap.Data())
}

func (s *FirestoreIssueStore) QueryAll(ctx context.Context, f models.IssueFilter) ([]*models.IssueReport, error) {
	q := s.client.Collection(firestoreIssueCollection).Query
	if f.Department != "" {
		q = q.Where("department", "==", f.Department)
	}
	if f.Severity != "" {
		q = q.Where("severity", "==", string(f.Severity))
	}
	if f.UserID != "" {
		q = q.Where("user", "==", f.UserID)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := make([]*models.IssueReport, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		r, err := issueFromFirestore(snap.Ref.ID, snap.Data())
		if err != nil {
			s.logger.Warn("skipping undecodable issue document",
				slog.String("doc_id", snap.Ref.ID), slog.Any("error", err))
			continue
		}
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// issueFromFirestore decodes an IssueDetails document. Documents written by
// the web form carry lat and lng as strings and tags as a JSON-encoded
// string; both shapes are accepted next to the native ones.
func issueFromFirestore(id string, data map[string]interface{}) (*models.IssueReport, error) {
	r := &models.IssueReport{
		ID:            id,
		UserID:        stringField(data, "user"),
		SubmittedDate: stringField(data, "submittedDate"),
		Location:      stringField(data, "location"),
		PhotoURL:      stringField(data, "photoUrl"),
		Department:    stringField(data, "department"),
		Severity:      models.Severity(stringField(data, "severity")),
	}

	var err error
	if r.Date, err = timeField(data, "date"); err != nil {
		return nil, err
	}
	if r.Lat, err = floatField(data, "lat"); err != nil {
		return nil, err
	}
	if r.Lng, err = floatField(data, "lng"); err != nil {
		return nil, err
	}
	if r.Weight, err = floatField(data, "weight"); err != nil {
		return nil, err
	}
	if r.Tags, err = tagsField(data, "tags"); err != nil {
		return nil, err
	}
	progress, err := floatField(data, "progress")
	if err != nil {
		return nil, err
	}
	if progress != nil {
		r.Progress = int(*progress)
	}
	return r, nil
}

func stringField(data map[string]interface{}, key string) string {
	v, _ := data[key].(string)
	return v
}

func floatField(data map[string]interface{}, key string) (*float64, error) {
	var f float64
	switch v := data[key].(type) {
	case nil:
		return nil, nil
	case float64:
		f = v
	case int64:
		f = float64(v)
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("field %s: unsupported type %T", key, v)
	}
	return &f, nil
}

func timeField(data map[string]interface{}, key string) (time.Time, error) {
	switch v := data[key].(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("field %s: %w", key, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("field %s: unsupported type %T", key, v)
	}
}

func tagsField(data map[string]interface{}, key string) ([]string, error) {
	switch v := data[key].(type) {
	case nil:
		return nil, nil
	case []interface{}:
		tags := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var tags []string
		if err := json.Unmarshal([]byte(v), &tags); err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		return tags, nil
	default:
		return nil, fmt.Errorf("field %s: unsupported type %T", key, v)
	}
}

// FirestoreAccountDirectory keeps accounts in the Users collection, one
// document per UID.
type FirestoreAccountDirectory struct {
	client *firestore.Client
}

func NewFirestoreAccountDirectory(client *firestore.Client) *FirestoreAccountDirectory {
	return &FirestoreAccountDirectory{client: client}
}

func (d *FirestoreAccountDirectory) Create(ctx context.Context, account *models.Account) (string, error) {
	_, err := d.client.Collection(firestoreAccountCollection).Doc(account.UserID).Create(ctx, account)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return "", ErrAccountExists
		}
		return "", fmt.Errorf("firestore account create: %w", err)
	}
	return account.UserID, nil
}

func (d *FirestoreAccountDirectory) Get(ctx context.Context, userID string) (*models.Account, error) {
	snap, err := d.client.Collection(firestoreAccountCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var a models.Account
	if err := snap.DataTo(&a); err != nil {
		return nil, err
	}
	a.UserID = snap.Ref.ID
	return &a, nil
}

func (d *FirestoreAccountDirectory) QueryAll(ctx context.Context, f models.AccountFilter) ([]*models.Account, error) {
	q := d.client.Collection(firestoreAccountCollection).Query
	if f.Role != "" {
		q = q.Where("role", "==", string(f.Role))
	}
	if f.Enabled != nil {
		q = q.Where("isEnabled", "==", *f.Enabled)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := make([]*models.Account, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var a models.Account
		if err := snap.DataTo(&a); err != nil {
			return nil, err
		}
		a.UserID = snap.Ref.ID
		out = append(out, &a)
	}
	return out, nil
}
