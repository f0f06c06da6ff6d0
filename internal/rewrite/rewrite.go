// Package rewrite rebuilds a BSON document with corrupted strings repaired.
//
// The rewriter walks the input element by element and appends to a fresh
// buffer. Every element is copied byte for byte except a string whose payload
// is not valid UTF-8: that one is re-encoded with the value the Reviewer
// settles on. Embedded documents and arrays are rebuilt recursively under the
// same key, so an untouched subtree comes out identical to its input.
//
// The input buffer is never written to.
package rewrite

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/roach88/bsonmend/internal/layout"
	"github.com/roach88/bsonmend/internal/repair"
	"github.com/roach88/bsonmend/internal/review"
)

const identityKey = "_id"

// Reviewer decides the value of each corrupted field.
// Implemented by *review.Reviewer.
type Reviewer interface {
	Review(ctx context.Context, req review.Request) (review.Decision, error)
}

// Target identifies the record being rewritten, for diagnostics only.
type Target struct {
	Collection string
	Identity   string
}

// Result is the outcome of rewriting one document.
type Result struct {
	// Document is the rebuilt document. It is a new buffer.
	Document bson.Raw

	// Changed is true when at least one candidate was accepted.
	Changed bool

	// Decisions lists one entry per corrupted field in traversal order.
	Decisions []review.Decision
}

// Rewriter rebuilds documents, delegating each repair decision to a Reviewer.
type Rewriter struct {
	reviewer Reviewer
}

// New creates a Rewriter.
func New(reviewer Reviewer) *Rewriter {
	return &Rewriter{reviewer: reviewer}
}

// Rewrite rebuilds doc. A *layout.StructuralError means doc is malformed and
// nothing was produced; any other error comes from the Reviewer.
func (rw *Rewriter) Rewrite(ctx context.Context, target Target, doc bson.Raw) (Result, error) {
	w := &walk{
		ctx:      ctx,
		target:   target,
		reviewer: rw.reviewer,
	}
	out, err := w.document(doc, "")
	if err != nil {
		return Result{}, err
	}
	return Result{
		Document:  out,
		Changed:   w.changed,
		Decisions: w.decisions,
	}, nil
}

// walk carries the state of one Rewrite call.
type walk struct {
	ctx       context.Context
	target    Target
	reviewer  Reviewer
	changed   bool
	decisions []review.Decision
}

// document rebuilds one document or array. Arrays share the document layout,
// with keys "0", "1", ..., and are rebuilt the same way.
func (w *walk) document(doc []byte, path string) ([]byte, error) {
	it, err := layout.Elements(doc)
	if err != nil {
		return nil, withPath(err, path)
	}

	idx, out := bsoncore.AppendDocumentStart(make([]byte, 0, len(doc)))
	for it.Next() {
		el := it.Element()
		fieldPath := joinPath(path, el.Key)

		switch el.Type {
		case layout.TypeEmbeddedDocument, layout.TypeArray:
			span, err := layout.Locate(doc, el)
			if err != nil {
				return nil, withPath(err, fieldPath)
			}
			sub, err := w.document(span.Slice(doc), fieldPath)
			if err != nil {
				return nil, err
			}
			if el.Type == layout.TypeArray {
				out = bsoncore.AppendArrayElement(out, el.Key, sub)
			} else {
				out = bsoncore.AppendDocumentElement(out, el.Key, sub)
			}

		case layout.TypeString:
			span, err := layout.Locate(doc, el)
			if err != nil {
				return nil, withPath(err, fieldPath)
			}
			raw := span.Slice(doc)
			if repair.Valid(raw) {
				out = append(out, el.Bytes(doc)...)
				continue
			}
			if fieldPath == identityKey {
				// _id is immutable in the store; rewriting it would make the
				// replace fail, so it is left as found.
				slog.Warn("_id is not valid UTF-8, left unchanged",
					"collection", w.target.Collection, "id", w.target.Identity)
				out = append(out, el.Bytes(doc)...)
				continue
			}
			value, err := w.repair(fieldPath, raw)
			if err != nil {
				return nil, err
			}
			out = bsoncore.AppendStringElement(out, el.Key, value)

		default:
			out = append(out, el.Bytes(doc)...)
		}
	}
	if err := it.Err(); err != nil {
		return nil, withPath(err, path)
	}

	out, err = bsoncore.AppendDocumentEnd(out, idx)
	if err != nil {
		return nil, fmt.Errorf("seal %q: %w", path, err)
	}
	return out, nil
}

func (w *walk) repair(path string, raw []byte) (string, error) {
	req := review.Request{
		Collection: w.target.Collection,
		Identity:   w.target.Identity,
		Path:       path,
		Raw:        append([]byte(nil), raw...),
		Original:   repair.Lossy(raw),
		Candidate:  repair.Repair(raw),
	}

	d, err := w.reviewer.Review(w.ctx, req)
	if err != nil {
		return "", err
	}

	w.decisions = append(w.decisions, d)
	if d.Accepted {
		w.changed = true
	}
	return d.Value(), nil
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// withPath annotates a structural error with the field path it was found under.
func withPath(err error, path string) error {
	if path == "" {
		return err
	}
	return fmt.Errorf("at %s: %w", path, err)
}
