package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/intersection-twin/internal/controller"
	"github.com/ukydev/intersection-twin/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventsCollection is the collection controller events are stored in.
const EventsCollection = "events"

// ConnectMongo connects to MongoDB at uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	// Ping to verify connection
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// MongoCollection wraps a MongoDB collection for event operations.
type MongoCollection struct {
	Collection *mongo.Collection
}

// EnsureIndexes creates the index used to list a unit's newest events.
func (c *MongoCollection) EnsureIndexes(ctx context.Context) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "unit_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	return err
}

// InsertEvent inserts an event record into the collection.
func (c *MongoCollection) InsertEvent(ctx context.Context, event models.EventRecord) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, event)
	return err
}

// mongoEventCursor wraps a MongoDB cursor for event queries.
type mongoEventCursor struct {
	cursor *mongo.Cursor
}

// All retrieves all results from the cursor.
func (m *mongoEventCursor) All(ctx context.Context, out interface{}) error {
	return m.cursor.All(ctx, out)
}

// Close closes the cursor.
func (m *mongoEventCursor) Close(ctx context.Context) error {
	return m.cursor.Close(ctx)
}

// FindEvents queries event records from the collection.
func (c *MongoCollection) FindEvents(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (EventCursor, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &mongoEventCursor{cursor: cursor}, nil
}

// EventStore persists controller events of one unit.
type EventStore struct {
	Collection EventCollection
	UnitID     string
}

// NewRecord converts a controller event into its stored form.
func NewRecord(unitID string, ev controller.Event) models.EventRecord {
	return models.EventRecord{
		ID:        uuid.NewString(),
		UnitID:    unitID,
		Kind:      string(ev.Kind),
		Lane:      models.LaneRef(ev.Lane),
		From:      models.LaneRef(ev.From),
		Message:   ev.Message(),
		Timestamp: ev.At,
	}
}

// Publish stores ev.
func (s *EventStore) Publish(ctx context.Context, ev controller.Event) error {
	if err := s.Collection.InsertEvent(ctx, NewRecord(s.UnitID, ev)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events of the unit, newest first.
func (s *EventStore) Recent(ctx context.Context, limit int64) ([]models.EventRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := s.Collection.FindEvents(ctx, bson.M{"unit_id": s.UnitID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []models.EventRecord{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}
