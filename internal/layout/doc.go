// Package layout locates element payloads inside a raw BSON document buffer.
//
// The typed accessors of a BSON library decode a value before handing it
// out. A string payload holding invalid UTF-8 is exactly the case where the
// caller still needs the bytes, so this package works only from the lengths
// the format declares:
//
//	document := int32 total-length, element*, 0x00
//	element  := type-tag (1 byte), key (cstring), value
//
// An Iterator walks the elements of one document with a running byte cursor
// and reports, per element, its offset in the parent buffer and its encoded
// length. Locate turns that into the RawSpan of the value payload.
//
// # Errors
//
// Any declared length that points outside the buffer is reported as a
// *StructuralError. Structural errors mean the record itself is malformed and
// are distinct from text that merely fails UTF-8 validation, which is not an
// error at this level.
package layout
