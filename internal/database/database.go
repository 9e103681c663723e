package database

import (
	"context"
	"fmt"
	"time"

	"github.com/studytrack/core/internal/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// Connect opens the MongoDB connection, verifies it, and ensures indexes.
func Connect(ctx context.Context, cfg *config.AppConfig) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	if err := ensureIndexes(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return db, nil
}

// Disconnect closes the underlying client.
func Disconnect(ctx context.Context, db *mongo.Database) error {
	if db == nil {
		return nil
	}
	return db.Client().Disconnect(ctx)
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		"students": {
			{Keys: bson.D{{Key: "teacher_id", Value: 1}, {Key: "archived", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		},
		"programs": {
			{Keys: bson.D{{Key: "student_id", Value: 1}, {Key: "week_start", Value: -1}}},
		},
		"exams": {
			{Keys: bson.D{{Key: "student_id", Value: 1}, {Key: "taken_at", Value: -1}}},
		},
		"topics": {
			{Keys: bson.D{{Key: "student_id", Value: 1}, {Key: "subject", Value: 1}}},
		},
		"users": {
			{Keys: bson.D{{Key: "last_seen_at", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("collection %s: %w", coll, err)
		}
	}
	return nil
}
