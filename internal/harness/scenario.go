package harness

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"
	"gopkg.in/yaml.v3"
)

// Scenario defines a repair conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Collection is the name records are streamed from.
	Collection string `yaml:"collection"`

	// DryRun suppresses write-back.
	DryRun bool `yaml:"dry_run,omitempty"`

	// Answers are fed to the confirmation prompt in order. Empty means every
	// repair is approved without asking.
	Answers []string `yaml:"answers,omitempty"`

	// Records are the collection contents, in natural order.
	Records []Record `yaml:"records"`

	// Expect lists per-record expectations.
	Expect []Expectation `yaml:"expect"`
}

// Record is one stored record.
type Record struct {
	// ID becomes an int32 _id as the first element. Nil means no _id.
	ID *int32 `yaml:"id,omitempty"`

	Fields []Field `yaml:"fields"`

	// Truncate cuts this many bytes off the encoded record.
	Truncate int `yaml:"truncate,omitempty"`
}

// Field is one element. Exactly one of Text, Hex, Int, Doc and Array is set.
// Keys of array items are ignored; items are numbered.
type Field struct {
	Key   string  `yaml:"key,omitempty"`
	Text  *string `yaml:"text,omitempty"`
	Hex   *string `yaml:"hex,omitempty"` // string payload given as raw bytes
	Int   *int64  `yaml:"int,omitempty"`
	Doc   []Field `yaml:"doc,omitempty"`
	Array []Field `yaml:"array,omitempty"`
}

// Expectation describes one record after the run.
type Expectation struct {
	// Record indexes Scenario.Records.
	Record int `yaml:"record"`

	Changed  bool `yaml:"changed"`
	Replaced bool `yaml:"replaced"`
	Failed   bool `yaml:"failed,omitempty"`

	// Reviewed lists the field paths handed to review, in order.
	Reviewed []string `yaml:"reviewed,omitempty"`

	// Fields maps dotted paths to the stored text after the run.
	Fields map[string]string `yaml:"fields,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if len(s.Records) == 0 {
		return fmt.Errorf("records list is required and must be non-empty")
	}

	for i, r := range s.Records {
		if err := validateFields(r.Fields, fmt.Sprintf("records[%d]", i), false); err != nil {
			return err
		}
		if r.Truncate < 0 {
			return fmt.Errorf("records[%d]: truncate must not be negative", i)
		}
	}

	for i, e := range s.Expect {
		if e.Record < 0 || e.Record >= len(s.Records) {
			return fmt.Errorf("expect[%d]: record %d out of range (%d records)", i, e.Record, len(s.Records))
		}
	}

	return nil
}

func validateFields(fields []Field, where string, inArray bool) error {
	for i, f := range fields {
		at := fmt.Sprintf("%s.fields[%d]", where, i)
		if !inArray && f.Key == "" {
			return fmt.Errorf("%s: key is required", at)
		}

		kinds := 0
		if f.Text != nil {
			kinds++
		}
		if f.Hex != nil {
			kinds++
			if _, err := hex.DecodeString(*f.Hex); err != nil {
				return fmt.Errorf("%s: bad hex: %w", at, err)
			}
		}
		if f.Int != nil {
			kinds++
		}
		if f.Doc != nil {
			kinds++
		}
		if f.Array != nil {
			kinds++
		}
		if kinds != 1 {
			return fmt.Errorf("%s: exactly one of text, hex, int, doc, array is required", at)
		}

		if f.Doc != nil {
			if err := validateFields(f.Doc, at, false); err != nil {
				return err
			}
		}
		if f.Array != nil {
			if err := validateFields(f.Array, at, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Encode builds the record's BSON bytes.
func (r Record) Encode() (bson.Raw, error) {
	idx, doc := bsoncore.AppendDocumentStart(nil)
	if r.ID != nil {
		doc = bsoncore.AppendInt32Element(doc, "_id", *r.ID)
	}

	doc, err := appendFields(doc, r.Fields, false)
	if err != nil {
		return nil, err
	}

	doc, err = bsoncore.AppendDocumentEnd(doc, idx)
	if err != nil {
		return nil, err
	}

	if r.Truncate > 0 {
		if r.Truncate >= len(doc) {
			return nil, fmt.Errorf("truncate %d removes the whole %d-byte record", r.Truncate, len(doc))
		}
		doc = doc[:len(doc)-r.Truncate]
	}
	return doc, nil
}

func appendFields(dst []byte, fields []Field, inArray bool) ([]byte, error) {
	for i, f := range fields {
		key := f.Key
		if inArray {
			key = fmt.Sprint(i)
		}

		switch {
		case f.Text != nil:
			dst = bsoncore.AppendStringElement(dst, key, *f.Text)
		case f.Hex != nil:
			raw, err := hex.DecodeString(*f.Hex)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}
			dst = bsoncore.AppendStringElement(dst, key, string(raw))
		case f.Int != nil:
			dst = bsoncore.AppendInt64Element(dst, key, *f.Int)
		case f.Doc != nil:
			idx, sub := bsoncore.AppendDocumentStart(nil)
			sub, err := appendFields(sub, f.Doc, false)
			if err != nil {
				return nil, err
			}
			if sub, err = bsoncore.AppendDocumentEnd(sub, idx); err != nil {
				return nil, err
			}
			dst = bsoncore.AppendDocumentElement(dst, key, sub)
		case f.Array != nil:
			idx, sub := bsoncore.AppendArrayStart(nil)
			sub, err := appendFields(sub, f.Array, true)
			if err != nil {
				return nil, err
			}
			if sub, err = bsoncore.AppendArrayEnd(sub, idx); err != nil {
				return nil, err
			}
			dst = bsoncore.AppendArrayElement(dst, key, sub)
		}
	}
	return dst, nil
}
