package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "users"

type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

func NewMongoStorage(uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	collection := client.Database(database).Collection(collectionName)

	// Create index on chat_id for faster lookups
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		log.Warn("creating index", slog.String("error", err.Error()))
	}

	return &MongoStorage{
		client:     client,
		collection: collection,
		log:        log,
	}, nil
}

func (m *MongoStorage) GetOrCreate(ctx context.Context, chatID int64) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{
		"$setOnInsert": bson.M{
			"chat_id":    chatID,
			"unit":       UnitCelsius,
			"created_at": time.Now(),
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user User
	err := m.collection.FindOneAndUpdate(ctx, bson.M{"chat_id": chatID}, update, opts).Decode(&user)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	return &user, nil
}

func (m *MongoStorage) SavedLocation(ctx context.Context, chatID int64) (*Location, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var user User
	err := m.collection.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return user.Location, nil
}

func (m *MongoStorage) SetSavedLocation(ctx context.Context, chatID int64, loc Location) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{"location": loc},
		"$setOnInsert": bson.M{
			"chat_id":    chatID,
			"unit":       UnitCelsius,
			"created_at": time.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := m.collection.UpdateOne(ctx, bson.M{"chat_id": chatID}, update, opts)
	return err
}

func (m *MongoStorage) Unit(ctx context.Context, chatID int64) (Unit, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var user User
	err := m.collection.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return UnitCelsius, nil
	}
	if err != nil {
		return "", fmt.Errorf("finding user: %w", err)
	}
	if user.Unit == "" {
		return UnitCelsius, nil
	}
	return user.Unit, nil
}

func (m *MongoStorage) ToggleUnit(ctx context.Context, chatID int64) (Unit, error) {
	current, err := m.Unit(ctx, chatID)
	if err != nil {
		return "", err
	}
	next := current.Flip()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{"unit": next},
		"$setOnInsert": bson.M{
			"chat_id":    chatID,
			"created_at": time.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := m.collection.UpdateOne(ctx, bson.M{"chat_id": chatID}, update, opts); err != nil {
		return "", err
	}
	return next, nil
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
