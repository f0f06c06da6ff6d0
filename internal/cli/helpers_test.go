package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/roach88/bsonmend/internal/driver"
	"github.com/roach88/bsonmend/internal/journal"
)

var corrupt = string([]byte{0xC1, 0xEE})

// person builds {_id: id, name: name}.
func person(t *testing.T, id int32, name string) bson.Raw {
	t.Helper()
	idx, doc := bsoncore.AppendDocumentStart(nil)
	doc = bsoncore.AppendInt32Element(doc, "_id", id)
	doc = bsoncore.AppendStringElement(doc, "name", name)
	doc, err := bsoncore.AppendDocumentEnd(doc, idx)
	require.NoError(t, err)
	return doc
}

// memoryBackend is an in-memory Backend keyed by collection.
type memoryBackend struct {
	mu          sync.Mutex
	collections map[string][]bson.Raw
	replaced    []string
	connectedTo []string
	closed      int
}

func newMemoryBackend(collections map[string][]bson.Raw) *memoryBackend {
	return &memoryBackend{collections: collections}
}

func (m *memoryBackend) connector(_ context.Context, uri, database string) (Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectedTo = append(m.connectedTo, uri+"/"+database)
	return m, nil
}

func (m *memoryBackend) Collections(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.collections))
	for n := range m.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryBackend) Stream(_ context.Context, collection string) (driver.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("no collection %q", collection)
	}
	return &memoryStream{records: append([]bson.Raw(nil), records...)}, nil
}

func (m *memoryBackend) ReplaceByID(_ context.Context, collection string, id bson.RawValue, doc bson.Raw) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.collections[collection] {
		if rec.Lookup("_id").Equal(id) {
			m.collections[collection][i] = append(bson.Raw(nil), doc...)
			m.replaced = append(m.replaced, fmt.Sprintf("%s/%s", collection, id.String()))
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryBackend) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *memoryBackend) name(collection string, i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collections[collection][i].Lookup("name").StringValue()
}

type memoryStream struct {
	records []bson.Raw
	pos     int
}

func (s *memoryStream) Next(context.Context) bool {
	if s.pos >= len(s.records) {
		return false
	}
	s.pos++
	return true
}

func (s *memoryStream) Current() bson.Raw           { return s.records[s.pos-1] }
func (s *memoryStream) Err() error                  { return nil }
func (s *memoryStream) Close(context.Context) error { return nil }

// commandResult captures one command execution.
type commandResult struct {
	stdout string
	stderr string
	err    error
}

// execute runs cmd with args and stdin, capturing both streams.
func execute(cmd *cobra.Command, stdin string, args ...string) commandResult {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return commandResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func fixCommand(format string, backend *memoryBackend, runIDs ...string) *cobra.Command {
	return newFixCommand(&FixOptions{
		RootOptions: &RootOptions{Format: format},
		Connect:     backend.connector,
		RunIDs:      journal.NewFixedGenerator(runIDs...),
	})
}

func scanCommand(format string, backend *memoryBackend) *cobra.Command {
	return newScanCommand(&FixOptions{
		RootOptions: &RootOptions{Format: format},
		Connect:     backend.connector,
		RunIDs:      journal.NewFixedGenerator("scan-1"),
	})
}

var errUnreachable = errors.New("server selection timeout")

func unreachable(context.Context, string, string) (Backend, error) {
	return nil, errUnreachable
}
