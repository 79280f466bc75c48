package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/civichub/backend/internal/models"
)

// MongoAccountDirectory stores accounts in the "accounts" collection with
// the identity UID as _id.
type MongoAccountDirectory struct {
	col *mongo.Collection
}

func NewMongoAccountDirectory(ctx context.Context, db *mongo.Database) *MongoAccountDirectory {
	col := db.Collection("accounts", options.Collection().SetWriteConcern(writeconcern.Majority()))

	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "is_enabled", Value: 1}}},
	})

	return &MongoAccountDirectory{col: col}
}

func (d *MongoAccountDirectory) Create(ctx context.Context, account *models.Account) (string, error) {
	if _, err := d.col.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrAccountExists
		}
		return "", fmt.Errorf("mongo account insert: %w", err)
	}
	return account.UserID, nil
}

func (d *MongoAccountDirectory) Get(ctx context.Context, userID string) (*models.Account, error) {
	var a models.Account
	if err := d.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&a); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (d *MongoAccountDirectory) QueryAll(ctx context.Context, f models.AccountFilter) ([]*models.Account, error) {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = string(f.Role)
	}
	if f.Enabled != nil {
		filter["is_enabled"] = *f.Enabled
	}

	cur, err := d.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]*models.Account, 0)
	for cur.Next(ctx) {
		var a models.Account
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
