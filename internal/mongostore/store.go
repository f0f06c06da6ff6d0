// Package mongostore is the MongoDB side of bsonmend: it lists collections,
// streams raw records and performs identity-keyed replaces. It carries no
// repair logic.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/bsonmend/internal/driver"
)

// systemPrefix marks collections owned by the server.
const systemPrefix = "system."

// Store wraps one database on a connected client.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, pings the deployment and selects database.
// Timeouts come from the URI options (connectTimeoutMS, socketTimeoutMS, ...).
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Store{
		client: client,
		db:     client.Database(database),
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Collections returns the names of all user collections, sorted.
// Views are skipped: they cannot be written to.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "type", Value: "collection"}})
	if err != nil {
		return nil, fmt.Errorf("list collections in %s: %w", s.db.Name(), err)
	}

	out := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, systemPrefix) {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Stream opens a cursor over every record in collection, in natural order.
func (s *Store) Stream(ctx context.Context, collection string) (driver.Stream, error) {
	cur, err := s.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	return &cursor{cur: cur}, nil
}

// ReplaceByID replaces the record whose _id equals id with doc.
// matched is false when no such record exists any more.
func (s *Store) ReplaceByID(ctx context.Context, collection string, id bson.RawValue, doc bson.Raw) (bool, error) {
	res, err := s.db.Collection(collection).ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// IsConnectivityError reports whether err means the deployment is unreachable
// or stopped answering, as opposed to a rejection of one write.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected)
}

// cursor adapts *mongo.Cursor to driver.Stream.
type cursor struct {
	cur *mongo.Cursor
}

func (c *cursor) Next(ctx context.Context) bool { return c.cur.Next(ctx) }

// Current returns the record at the cursor. The driver reuses the backing
// batch on the next call to Next; the rewriter copies what it keeps.
func (c *cursor) Current() bson.Raw { return c.cur.Current }

func (c *cursor) Err() error { return c.cur.Err() }

func (c *cursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
