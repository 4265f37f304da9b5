// Package store holds the persistent collections spec §5 requires to
// live in a "MongoDB-like" store with per-document optimistic
// concurrency: Deployment records and UNode records. Only the
// Deployment Engine mutates the deployments collection and only the
// Node Manager mutates the nodes collection, per the shared-resource
// policy in spec §5.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client wraps a mongo.Client plus the database ushadow uses, giving
// each collection-specific store a consistent way to reach its
// collection without repeating connection setup.
type Client struct {
	mongo *mongo.Client
	db    *mongo.Database
}

// Connect dials uri and pings the server, matching the teacher's
// fail-fast startup philosophy (core/config loads and validates once,
// hard-erroring before the component is considered ready).
func Connect(ctx context.Context, uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging store: %w", err)
	}
	return &Client{mongo: client, db: client.Database(database)}, nil
}

// Disconnect closes the underlying connection pool.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.mongo.Disconnect(ctx)
}

func (c *Client) collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// ErrConflict is returned by a store's Update method when the
// in-memory Version does not match the persisted document's current
// version, i.e. another writer updated it first.
var ErrConflict = fmt.Errorf("optimistic concurrency conflict")
