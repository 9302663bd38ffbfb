package audit

import (
	"context"
	"time"

	"github.com/sing3demons/oryfm/internal/database"
	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/logger"
	"github.com/sing3demons/oryfm/pkg/mlog"
	"github.com/sing3demons/oryfm/pkg/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "audit_events"

type IAuditRepository interface {
	Publisher
	FindBySubject(ctx context.Context, subject string, limit int64) ([]Event, error)
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(ctx context.Context, db *database.Database) (*MongoRepository, error) {
	r := &MongoRepository{collection: db.GetCollection(collectionName)}
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "subject", Value: 1}, {Key: "time", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, database.HandleMongoError(err)
	}
	return r, nil
}

func (r *MongoRepository) Publish(c context.Context, e Event) error {
	start := time.Now()
	log := mlog.L(c)
	ctx, cancel := context.WithTimeout(c, 5*time.Second)
	defer cancel()

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: collectionName,
	}).Debug(logAction.DB_REQUEST(logAction.DB_CREATE, query.Render(collectionName, query.InsertOne, e)), map[string]any{
		"body": e,
	})

	_, err := r.collection.InsertOne(ctx, e)
	elapsedMs := time.Since(start).Milliseconds()

	resp := map[string]any{"data": e.ID}
	if err != nil {
		resp = map[string]any{"error": err.Error()}
	}
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   collectionName,
		ResponseTime: elapsedMs,
	}).Debug(logAction.DB_RESPONSE(logAction.DB_CREATE, "mongo response"), resp)

	return database.HandleMongoError(err)
}

// FindBySubject returns the newest events first.
func (r *MongoRepository) FindBySubject(c context.Context, subject string, limit int64) ([]Event, error) {
	start := time.Now()
	log := mlog.L(c)
	ctx, cancel := context.WithTimeout(c, 15*time.Second)
	defer cancel()

	filter := bson.M{"subject": subject}
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: -1}}).SetLimit(limit)
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: collectionName,
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, query.Render(collectionName, query.Find, filter, map[string]int64{"limit": limit})), filter)

	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, database.HandleMongoError(err)
	}
	defer cur.Close(ctx)

	var events []Event
	err = cur.All(ctx, &events)
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   collectionName,
		ResponseTime: time.Since(start).Milliseconds(),
	}).Debug(logAction.DB_RESPONSE(logAction.DB_READ, "mongo response"), map[string]any{"count": len(events)})
	if err != nil {
		return nil, database.HandleMongoError(err)
	}
	return events, nil
}
