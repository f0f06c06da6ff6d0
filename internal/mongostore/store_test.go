package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"
)

func TestIsConnectivityError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "validation", err: errors.New("document failed validation"), want: false},
		{name: "disconnected", err: mongo.ErrClientDisconnected, want: true},
		{name: "wrapped disconnected", err: fmt.Errorf("replace: %w", mongo.ErrClientDisconnected), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectivityError(tt.err))
		})
	}
}

// testStore connects to BSONMEND_TEST_MONGODB_URI or skips.
func testStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("BSONMEND_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("BSONMEND_TEST_MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := fmt.Sprintf("bsonmend_test_%d", time.Now().UnixNano())
	s, err := Connect(ctx, uri, db)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	idx, doc := bsoncore.AppendDocumentStart(nil)
	doc = bsoncore.AppendInt32Element(doc, "_id", 7)
	doc = bsoncore.AppendStringElement(doc, "name", "before")
	doc, err := bsoncore.AppendDocumentEnd(doc, idx)
	require.NoError(t, err)

	_, err = s.db.Collection("people").InsertOne(ctx, bson.Raw(doc))
	require.NoError(t, err)

	names, err := s.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"people"}, names)

	stream, err := s.Stream(ctx, "people")
	require.NoError(t, err)
	require.True(t, stream.Next(ctx))
	rec := append(bson.Raw(nil), stream.Current()...)
	assert.False(t, stream.Next(ctx))
	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close(ctx))

	idx, repl := bsoncore.AppendDocumentStart(nil)
	repl = bsoncore.AppendInt32Element(repl, "_id", 7)
	repl = bsoncore.AppendStringElement(repl, "name", "after")
	repl, err = bsoncore.AppendDocumentEnd(repl, idx)
	require.NoError(t, err)

	matched, err := s.ReplaceByID(ctx, "people", rec.Lookup("_id"), repl)
	require.NoError(t, err)
	assert.True(t, matched)

	var got bson.Raw
	require.NoError(t, s.db.Collection("people").FindOne(ctx, bson.D{}).Decode(&got))
	assert.Equal(t, "after", got.Lookup("name").StringValue())

	gone := rec.Lookup("_id")
	_, err = s.db.Collection("people").DeleteOne(ctx, bson.D{{Key: "_id", Value: gone}})
	require.NoError(t, err)

	matched, err = s.ReplaceByID(ctx, "people", gone, repl)
	require.NoError(t, err)
	assert.False(t, matched)
}
