package cli

import (
	"context"

	"github.com/roach88/bsonmend/internal/driver"
	"github.com/roach88/bsonmend/internal/mongostore"
	"github.com/roach88/bsonmend/internal/processor"
)

// Backend is the store surface a run needs.
type Backend interface {
	driver.Source
	processor.Replacer
	Close(ctx context.Context) error
}

// Connector opens a Backend. Tests substitute an in-memory one.
type Connector func(ctx context.Context, uri, database string) (Backend, error)

// connectMongo is the default Connector.
func connectMongo(ctx context.Context, uri, database string) (Backend, error) {
	s, err := mongostore.Connect(ctx, uri, database)
	if err != nil {
		return nil, err
	}
	return s, nil
}
