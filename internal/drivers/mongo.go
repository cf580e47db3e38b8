package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FairForge/sal/internal/engine"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoConfig configures a MongoDB backend
type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

type mongoBlob struct {
	Key       string            `bson:"_id"`
	Data      []byte            `bson:"data"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// MongoDriver stores one document per blob. Documents are capped at
// 16MB by the server.
type MongoDriver struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoDriver connects to MongoDB
func NewMongoDriver(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoDriver, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo driver: uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "sal"
	}
	if cfg.Collection == "" {
		cfg.Collection = "blobs"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout)
	if cfg.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return &MongoDriver{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     logger,
	}, nil
}

// Name returns the driver name
func (d *MongoDriver) Name() string {
	return "mongo"
}

// Put upserts the blob document
func (d *MongoDriver) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	doc := mongoBlob{
		Key:       key,
		Data:      data,
		Metadata:  metadata,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := d.collection.ReplaceOne(ctx,
		bson.M{"_id": key},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo put %s: %w", key, err)
	}
	return nil
}

// Get reads a blob document
func (d *MongoDriver) Get(ctx context.Context, key string) ([]byte, error) {
	var doc mongoBlob
	err := d.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, key)
		}
		return nil, fmt.Errorf("mongo get %s: %w", key, err)
	}
	return doc.Data, nil
}

// Metadata returns the metadata stored with key
func (d *MongoDriver) Metadata(ctx context.Context, key string) (map[string]string, error) {
	var doc mongoBlob
	err := d.collection.FindOne(ctx, bson.M{"_id": key},
		options.FindOne().SetProjection(bson.M{"metadata": 1})).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, key)
		}
		return nil, fmt.Errorf("mongo metadata %s: %w", key, err)
	}
	return doc.Metadata, nil
}

// HealthCheck pings the primary
func (d *MongoDriver) HealthCheck(ctx context.Context) error {
	if err := d.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}

// Close disconnects the client
func (d *MongoDriver) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
