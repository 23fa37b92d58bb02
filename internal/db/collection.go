package db

import (
	"context"

	"github.com/ukydev/intersection-twin/internal/models"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventCollection defines the interface for event data operations.
type EventCollection interface {
	InsertEvent(ctx context.Context, event models.EventRecord) error
	FindEvents(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (EventCursor, error)
}

// EventCursor defines the interface for event cursor operations.
type EventCursor interface {
	All(ctx context.Context, out interface{}) error
	Close(ctx context.Context) error
}
