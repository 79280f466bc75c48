package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/civichub/backend/internal/models"
)

type mongoGeoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"` // [lng, lat]
}

type mongoIssueDoc struct {
	ID            string         `bson:"_id"`
	UserID        string         `bson:"user"`
	Date          time.Time      `bson:"date"`
	SubmittedDate string         `bson:"submitted_date,omitempty"`
	Location      string         `bson:"location"`
	Lat           *float64       `bson:"lat,omitempty"`
	Lng           *float64       `bson:"lng,omitempty"`
	Geo           *mongoGeoPoint `bson:"geo,omitempty"`
	PhotoURL      string         `bson:"photo_url"`
	Tags          []string       `bson:"tags"`
	Department    string         `bson:"department"`
	Severity      string         `bson:"severity"`
	Progress      int            `bson:"progress"`
	Weight        *float64       `bson:"weight,omitempty"`
}

// MongoIssueStore persists reports in the "issues" collection with a
// GeoJSON point for geo indexing.
type MongoIssueStore struct {
	col    *mongo.Collection
	logger *slog.Logger
}

func NewMongoIssueStore(ctx context.Context, db *mongo.Database, logger *slog.Logger) *MongoIssueStore {
	// Majority write concern: Create acknowledges only durable writes.
	col := db.Collection("issues", options.Collection().SetWriteConcern(writeconcern.Majority()))

	// Best-effort indexes.
	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: -1}}},
		{Keys: bson.D{{Key: "user", Value: 1}}},
		{Keys: bson.D{{Key: "department", Value: 1}}},
		{Keys: bson.D{{Key: "lat", Value: 1}, {Key: "lng", Value: 1}}},
		{Keys: bson.D{{Key: "geo", Value: "2dsphere"}}},
	})

	return &MongoIssueStore{col: col, logger: logger}
}

func issueToDoc(r *models.IssueReport) mongoIssueDoc {
	d := mongoIssueDoc{
		ID:            r.ID,
		UserID:        r.UserID,
		Date:          r.Date,
		SubmittedDate: r.SubmittedDate,
		Location:      r.Location,
		Lat:           r.Lat,
		Lng:           r.Lng,
		PhotoURL:      r.PhotoURL,
		Tags:          r.Tags,
		Department:    r.Department,
		Severity:      string(r.Severity),
		Progress:      r.Progress,
		Weight:        r.Weight,
	}
	if lat, lng, ok := r.Coordinates(); ok {
		d.Geo = &mongoGeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
	}
	return d
}

func issueDocToModel(d mongoIssueDoc) *models.IssueReport {
	return &models.IssueReport{
		ID:            d.ID,
		UserID:        d.UserID,
		Date:          d.Date,
		SubmittedDate: d.SubmittedDate,
		Location:      d.Location,
		Lat:           d.Lat,
		Lng:           d.Lng,
		PhotoURL:      d.PhotoURL,
		Tags:          d.Tags,
		Department:    d.Department,
		Severity:      models.Severity(d.Severity),
		Progress:      d.Progress,
		Weight:        d.Weight,
	}
}

func (s *MongoIssueStore) Create(ctx context.Context, report *models.IssueReport) (string, error) {
	doc := issueToDoc(report)
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("mongo issue insert: %w", err)
	}
	return doc.ID, nil
}

func (s *MongoIssueStore) Get(ctx context.Context, id string) (*models.IssueReport, error) {
	var doc mongoIssueDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return issueDocToModel(doc), nil
}

func issueFilterToBSON(f models.IssueFilter) bson.M {
	filter := bson.M{}
	if f.Department != "" {
		filter["department"] = f.Department
	}
	if f.Severity != "" {
		filter["severity"] = string(f.Severity)
	}
	if f.UserID != "" {
		filter["user"] = f.UserID
	}
	date := bson.M{}
	if !f.Since.IsZero() {
		date["$gte"] = f.Since
	}
	if !f.Until.IsZero() {
		date["$lte"] = f.Until
	}
	if len(date) > 0 {
		filter["date"] = date
	}
	if b := f.Bounds; b != nil {
		filter["lat"] = bson.M{"$gte": b.MinLat, "$lte": b.MaxLat}
		filter["lng"] = bson.M{"$gte": b.MinLng, "$lte": b.MaxLng}
	}
	return filter
}

// QueryAll skips documents that fail to decode; they are logged, not
// returned as errors.
func (s *MongoIssueStore) QueryAll(ctx context.Context, f models.IssueFilter) ([]*models.IssueReport, error) {
	cur, err := s.col.Find(ctx, issueFilterToBSON(f), options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]*models.IssueReport, 0)
	for cur.Next(ctx) {
		var d mongoIssueDoc
		if err := cur.Decode(&d); err != nil {
			s.logger.Warn("skipping undecodable issue document", slog.Any("error", err))
			continue
		}
		out = append(out, issueDocToModel(d))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
