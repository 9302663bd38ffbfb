package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sing3demons/oryfm/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Database struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewDatabase(cfg config.MongoConfig) (*Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("%w: mongo connect: %v", ErrConnection, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: mongo ping: %v", ErrConnection, err)
	}

	return &Database{
		client: client,
		db:     client.Database(cfg.Database),
	}, nil
}

func (d *Database) GetCollection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

func (d *Database) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func (d *Database) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Ping(ctx, nil)
}

var (
	ErrDatabaseTimeout   = errors.New("timeout")
	ErrDuplicate         = errors.New("duplicate")
	ErrConnection        = errors.New("connection_error")
	ErrNotFound          = errors.New("not_found")
	ErrServerUnavailable = errors.New("server_unavailable")
)

// HandleMongoError maps driver errors onto the package sentinels.
func HandleMongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsTimeout(err):
		return fmt.Errorf("%w: %v", ErrDatabaseTimeout, err)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case mongo.IsNetworkError(err):
		return fmt.Errorf("%w: %v", ErrConnection, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	return err
}
