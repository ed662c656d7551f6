package migrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bizpulse/internal/constants"
)

// AlertHistoryRetention is how long delivery history documents are kept.
const AlertHistoryRetention = 90 * 24 * time.Hour

func EnsureAlertHistoryIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(constants.AlertHistoryCollection)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "handled_at", Value: -1}},
			Options: options.Index().
				SetName("idx_alert_history_handled_at_ttl").
				SetExpireAfterSeconds(int32(AlertHistoryRetention.Seconds())),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "handled_at", Value: -1}},
			Options: options.Index().SetName("idx_alert_history_status_handled_at"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "severity", Value: 1}, {Key: "handled_at", Value: -1}},
			Options: options.Index().SetName("idx_alert_history_category_severity_handled_at"),
		},
		{
			Keys:    bson.D{{Key: "event_type", Value: 1}, {Key: "fingerprint", Value: 1}},
			Options: options.Index().SetName("idx_alert_history_type_fingerprint"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
