package history

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bizpulse/internal/constants"
	"bizpulse/pkg/metrics"
)

type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

type MongoDBRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) *MongoDBRepository {
	return &MongoDBRepository{
		collection: db.Collection(constants.AlertHistoryCollection),
	}
}

func (r *MongoDBRepository) Insert(ctx context.Context, entry Entry) error {
	start := time.Now()
	_, err := r.collection.InsertOne(ctx, entry)
	observe("insert", err, start)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Severity != "" {
		query["severity"] = filter.Severity
	}
	if filter.EventType != "" {
		query["event_type"] = filter.EventType
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "handled_at", Value: -1}}).
		SetLimit(int64(filter.Limit))

	start := time.Now()
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		observe("find", err, start)
		return nil, fmt.Errorf("failed to find history entries: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []Entry{}
	err = cursor.All(ctx, &entries)
	observe("find", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to decode history entries: %w", err)
	}
	return entries, nil
}

func observe(op string, err error, start time.Time) {
	metrics.IncDatabaseQuery("history", "mongodb", op, metrics.StatusLabel(err))
	metrics.ObserveDatabaseQueryDuration("history", "mongodb", op, time.Since(start))
}
