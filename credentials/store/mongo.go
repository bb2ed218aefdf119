package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "github.com/sweetpotato0/toolbridge/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore reads credentials from a MongoDB collection
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "toolbridge",
		Collection: "credentials",
	}
}

type mongoCredential struct {
	Ref       string    `bson:"_id"`
	Secret    string    `bson:"secret"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore connects to MongoDB
func NewMongoStore(ctx context.Context, config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}, nil
}

// Lookup returns the secret stored under ref
func (s *MongoStore) Lookup(ctx context.Context, ref string) (string, error) {
	var doc mongoCredential
	err := s.collection.FindOne(ctx, bson.M{"_id": ref}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", fmt.Errorf("credential %q: %w", ref, errs.ErrNotFound)
		}
		return "", fmt.Errorf("failed to find credential: %w", err)
	}
	return doc.Secret, nil
}

// Put inserts or replaces a secret
func (s *MongoStore) Put(ctx context.Context, ref, secret string) error {
	doc := mongoCredential{Ref: ref, Secret: secret, UpdatedAt: time.Now()}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": ref}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Delete removes a secret
func (s *MongoStore) Delete(ctx context.Context, ref string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": ref})
	return err
}

// Close disconnects from MongoDB
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
