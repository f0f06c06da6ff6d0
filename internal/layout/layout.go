package layout

import (
	"bytes"

	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"
)

// Element type tags as they appear on the wire.
const (
	TypeDouble           byte = 0x01
	TypeString           byte = 0x02
	TypeEmbeddedDocument byte = 0x03
	TypeArray            byte = 0x04
	TypeBinary           byte = 0x05
	TypeUndefined        byte = 0x06
	TypeObjectID         byte = 0x07
	TypeBoolean          byte = 0x08
	TypeDateTime         byte = 0x09
	TypeNull             byte = 0x0A
	TypeRegex            byte = 0x0B
	TypeDBPointer        byte = 0x0C
	TypeJavaScript       byte = 0x0D
	TypeSymbol           byte = 0x0E
	TypeCodeWithScope    byte = 0x0F
	TypeInt32            byte = 0x10
	TypeTimestamp        byte = 0x11
	TypeInt64            byte = 0x12
	TypeDecimal128       byte = 0x13
	TypeMinKey           byte = 0xFF
	TypeMaxKey           byte = 0x7F
)

const (
	lengthWidth = 4 // int32 length prefix
	minDocument = lengthWidth + 1
)

// Element is one key/value pair as found by an Iterator. The value is not
// decoded; only its position is known.
type Element struct {
	// Offset is the position of the type tag within the parent buffer.
	Offset int

	// Type is the wire type tag.
	Type byte

	// Key is the element key, copied verbatim from the buffer.
	Key string

	// Length is the encoded length: tag, key, key terminator and value.
	Length int
}

// Bytes returns the element's full encoding within doc.
func (e Element) Bytes(doc []byte) []byte {
	return doc[e.Offset : e.Offset+e.Length]
}

// RawSpan is the byte range of a value payload within a document buffer.
type RawSpan struct {
	Start  int
	Length int
}

// End returns the exclusive end offset of the span.
func (s RawSpan) End() int {
	return s.Start + s.Length
}

// Slice returns the payload bytes. The result aliases doc.
func (s RawSpan) Slice(doc []byte) []byte {
	return doc[s.Start:s.End():s.End()]
}

// Iterator walks the top-level elements of one document in order.
//
// The cursor advances by each element's self-reported encoded length, so a
// payload that fails to decode never stops the walk.
type Iterator struct {
	doc     []byte
	cursor  int
	end     int // offset of the document terminator
	current Element
	err     error
}

// Elements checks the document frame and returns an iterator over its elements.
//
// The frame is valid when the declared total length equals len(doc) and the
// final byte is the 0x00 terminator.
func Elements(doc []byte) (*Iterator, error) {
	if err := CheckFrame(doc); err != nil {
		return nil, err
	}
	return &Iterator{
		doc:    doc,
		cursor: lengthWidth,
		end:    len(doc) - 1,
	}, nil
}

// CheckFrame validates the length header and terminator of a document.
func CheckFrame(doc []byte) error {
	declared, _, ok := bsoncore.ReadLength(doc)
	if !ok || len(doc) < minDocument {
		return structuralf(ErrCodeTruncated, 0, "", "document shorter than minimum of %d bytes", minDocument)
	}
	if int(declared) != len(doc) {
		return structuralf(ErrCodeLengthMismatch, 0, "", "declared length %d, buffer holds %d", declared, len(doc))
	}
	if doc[len(doc)-1] != 0x00 {
		return structuralf(ErrCodeBadTerminator, len(doc)-1, "", "document does not end with 0x00")
	}
	return nil
}

// Next advances to the next element. It returns false at the end of the
// document or on error; check Err afterwards.
func (it *Iterator) Next() bool {
	if it.err != nil || it.cursor >= it.end {
		return false
	}

	rest := it.doc[it.cursor:it.end]
	if rest[0] == 0x00 {
		it.err = structuralf(ErrCodeLengthMismatch, it.cursor, "", "terminator found %d bytes before declared end", it.end-it.cursor)
		return false
	}

	keyLen := bytes.IndexByte(rest[1:], 0x00)
	if keyLen < 0 {
		it.err = structuralf(ErrCodeUnterminatedKey, it.cursor, "", "element key runs to end of document")
		return false
	}
	key := string(rest[1 : 1+keyLen])

	elem, _, ok := bsoncore.ReadElement(rest)
	if !ok {
		it.err = structuralf(ErrCodeTruncated, it.cursor, key, "element of type 0x%02x overruns document", rest[0])
		return false
	}

	it.current = Element{
		Offset: it.cursor,
		Type:   rest[0],
		Key:    key,
		Length: len(elem),
	}
	it.cursor += len(elem)
	return true
}

// Element returns the element at the cursor. Valid only after Next returned true.
func (it *Iterator) Element() Element {
	return it.current
}

// Err returns the structural error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Locate computes the value payload span of el within doc.
//
//	start = offset + 1 (tag) + len(key) + 1 (terminator) + prefix
//	end   = offset + encoded length - trailer
//
// prefix and trailer depend on the type: string-like values carry an int32
// length before and a 0x00 after their bytes, binary carries a length and a
// subtype byte. Embedded documents and arrays are returned whole, length
// header included, since they are themselves self-contained documents.
//
// Locate never inspects the payload itself beyond the framing bytes.
func Locate(doc []byte, el Element) (RawSpan, error) {
	prefix, trailer := framing(el.Type)

	start := el.Offset + 1 + len(el.Key) + 1 + prefix
	end := el.Offset + el.Length - trailer
	if el.Offset < 0 || start > end || end+trailer > len(doc) {
		return RawSpan{}, structuralf(ErrCodeSpanOutOfRange, el.Offset, el.Key,
			"payload [%d,%d) outside buffer of %d bytes", start, end, len(doc))
	}

	if isStringLike(el.Type) {
		n, _, _ := bsoncore.ReadLength(doc[start-lengthWidth:])
		declared := int(n)
		if declared != end-start+1 {
			return RawSpan{}, structuralf(ErrCodeLengthMismatch, el.Offset, el.Key,
				"string declares %d bytes, element holds %d", declared, end-start+1)
		}
		if doc[end] != 0x00 {
			return RawSpan{}, structuralf(ErrCodeBadTerminator, end, el.Key, "string does not end with 0x00")
		}
	}

	return RawSpan{Start: start, Length: end - start}, nil
}

func framing(t byte) (prefix, trailer int) {
	switch t {
	case TypeString, TypeJavaScript, TypeSymbol:
		return lengthWidth, 1
	case TypeBinary:
		return lengthWidth + 1, 0
	case TypeCodeWithScope:
		return lengthWidth, 0
	default:
		return 0, 0
	}
}

func isStringLike(t byte) bool {
	return t == TypeString || t == TypeJavaScript || t == TypeSymbol
}
