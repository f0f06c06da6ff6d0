package review

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/roach88/bsonmend/internal/repair"
)

func newRequest(raw []byte) Request {
	return Request{
		Collection: "people",
		Identity:   "64b7f0c2a1e4d3b2c1a09f8e",
		Path:       "name",
		Raw:        raw,
		Original:   repair.Lossy(raw),
		Candidate:  repair.Repair(raw),
	}
}

type fixedDecider struct {
	answer bool
	calls  int
}

func (d *fixedDecider) Decide(context.Context, Request) (bool, error) {
	d.calls++
	return d.answer, nil
}

type failingDecider struct{ t *testing.T }

func (d failingDecider) Decide(context.Context, Request) (bool, error) {
	d.t.Fatal("decider must not be consulted")
	return false, nil
}

type memoryHistory struct {
	declined map[string]bool
	recorded []Decision
}

func (h *memoryHistory) WasDeclined(_ context.Context, req Request) (bool, error) {
	return h.declined[req.Identity+"/"+req.Path+"/"+string(req.Raw)], nil
}

func (h *memoryHistory) Record(_ context.Context, d Decision) error {
	h.recorded = append(h.recorded, d)
	return nil
}

func TestFieldDiffGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	var buf bytes.Buffer
	s := NewStyles(&buf)

	req := newRequest([]byte{0xC1, 0xEE})
	g.Assert(t, "field_diff", []byte(s.FieldDiff(req.Identity, req.Path, req.Original, req.Candidate)))

	raw := []byte{'c', 'a', 'f', 0xE9}
	g.Assert(t, "field_diff_nested", []byte(s.FieldDiff("42", "address.lines.1", repair.Lossy(raw), repair.Repair(raw))))
}

func TestReviewerAutoApprove(t *testing.T) {
	var out bytes.Buffer
	r := NewReviewer(AutoApprove{}, &out)

	d, err := r.Review(context.Background(), newRequest([]byte{0xC1, 0xEE}))
	require.NoError(t, err)
	assert.True(t, d.Accepted)
	assert.Equal(t, "Áî", d.Value())
	assert.Contains(t, out.String(), "[64b7f0c2a1e4d3b2c1a09f8e][name]")
	assert.Contains(t, out.String(), `+ "Áî"`)
}

func TestReviewerDeclineKeepsValidText(t *testing.T) {
	var out bytes.Buffer
	decider := &fixedDecider{answer: false}
	r := NewReviewer(decider, &out)

	req := newRequest([]byte{0xC1, 0xEE})
	d, err := r.Review(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, d.Accepted)
	assert.Equal(t, 1, decider.calls)
	assert.Equal(t, req.Original, d.Value())
	assert.True(t, repair.Valid([]byte(d.Value())))
	assert.NotEqual(t, string(req.Raw), d.Value())
	assert.Empty(t, out.String())
}

func TestReviewerRecordsHistory(t *testing.T) {
	h := &memoryHistory{}
	r := NewReviewer(&fixedDecider{answer: true}, io.Discard, WithHistory(h, false))

	_, err := r.Review(context.Background(), newRequest([]byte{0xC1, 0xEE}))
	require.NoError(t, err)
	require.Len(t, h.recorded, 1)
	assert.True(t, h.recorded[0].Accepted)
	assert.Equal(t, "name", h.recorded[0].Path)
}

func TestReviewerSkipsPreviouslyDeclined(t *testing.T) {
	req := newRequest([]byte{0xC1, 0xEE})
	h := &memoryHistory{declined: map[string]bool{
		req.Identity + "/" + req.Path + "/" + string(req.Raw): true,
	}}
	r := NewReviewer(failingDecider{t: t}, io.Discard, WithHistory(h, true))

	d, err := r.Review(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, d.Accepted)
	assert.Equal(t, req.Original, d.Value())
	assert.Empty(t, h.recorded, "a skipped field is not recorded again")
}

func TestReviewerHistoryWithoutSkipStillAsks(t *testing.T) {
	req := newRequest([]byte{0xC1, 0xEE})
	h := &memoryHistory{declined: map[string]bool{
		req.Identity + "/" + req.Path + "/" + string(req.Raw): true,
	}}
	decider := &fixedDecider{answer: true}
	r := NewReviewer(decider, io.Discard, WithHistory(h, false))

	d, err := r.Review(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, d.Accepted)
	assert.Equal(t, 1, decider.calls)
}

func TestPrompterAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"  Y  \n", true},
		{"YES", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(strings.NewReader(tt.input), &out)

			got, err := p.Decide(context.Background(), newRequest([]byte{0xC1, 0xEE}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Apply this repair? [y/N]")
			assert.Contains(t, out.String(), `- "��"`)
		})
	}
}

func TestPrompterClosedInput(t *testing.T) {
	p := NewPrompter(strings.NewReader(""), io.Discard)
	_, err := p.Decide(context.Background(), newRequest([]byte{0xC1, 0xEE}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestPrompterReadsSequentialAnswers(t *testing.T) {
	p := NewPrompter(strings.NewReader("y\nn\n"), io.Discard)
	req := newRequest([]byte{0xC1, 0xEE})

	first, err := p.Decide(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Decide(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestPrompterHonoursCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPrompter(pr, io.Discard)
	_, err := p.Decide(ctx, newRequest([]byte{0xC1, 0xEE}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestPrompterKeepsLineAfterCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	p := NewPrompter(pr, io.Discard)
	req := newRequest([]byte{0xC1, 0xEE})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Decide(ctx, req)
	require.ErrorIs(t, err, context.Canceled)

	go func() {
		_, _ = io.WriteString(pw, "y\n")
	}()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := p.Decide(ctx, req)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestPrompterClosedInputStaysClosed(t *testing.T) {
	p := NewPrompter(strings.NewReader("y"), io.Discard)
	req := newRequest([]byte{0xC1, 0xEE})

	got, err := p.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, got)

	for i := 0; i < 2; i++ {
		_, err = p.Decide(context.Background(), req)
		require.ErrorIs(t, err, io.EOF)
	}
}

func TestReviewerWithPrompterShowsDiffOnce(t *testing.T) {
	var out bytes.Buffer
	r := NewReviewer(NewPrompter(strings.NewReader("y\n"), &out), &out)

	d, err := r.Review(context.Background(), newRequest([]byte{0xC1, 0xEE}))
	require.NoError(t, err)

	assert.True(t, d.Accepted)
	assert.Equal(t, 1, strings.Count(out.String(), `+ "Áî"`))
}

func TestRecordDiff(t *testing.T) {
	build := func(name string) []byte {
		idx, doc := bsoncore.AppendDocumentStart(nil)
		doc = bsoncore.AppendInt32Element(doc, "_id", 1)
		doc = bsoncore.AppendStringElement(doc, "name", name)
		doc, err := bsoncore.AppendDocumentEnd(doc, idx)
		require.NoError(t, err)
		return doc
	}

	same, err := RecordDiff(build("x"), build("x"))
	require.NoError(t, err)
	assert.Empty(t, same)

	diff, err := RecordDiff(build(string([]byte{0xC1, 0xEE})), build("Áî"))
	require.NoError(t, err)
	assert.NotEmpty(t, diff)
	assert.Contains(t, diff, "Áî")
}
