package layout

import (
	"errors"
	"fmt"
)

// StructuralErrorCode categorizes structural corruption.
type StructuralErrorCode string

const (
	// ErrCodeTruncated indicates the buffer ends before a declared length.
	ErrCodeTruncated StructuralErrorCode = "TRUNCATED"

	// ErrCodeLengthMismatch indicates a declared length disagrees with the bytes present.
	ErrCodeLengthMismatch StructuralErrorCode = "LENGTH_MISMATCH"

	// ErrCodeBadTerminator indicates a missing 0x00 where the format requires one.
	ErrCodeBadTerminator StructuralErrorCode = "BAD_TERMINATOR"

	// ErrCodeSpanOutOfRange indicates a computed payload span falls outside the buffer.
	ErrCodeSpanOutOfRange StructuralErrorCode = "SPAN_OUT_OF_RANGE"

	// ErrCodeUnterminatedKey indicates an element key with no cstring terminator.
	ErrCodeUnterminatedKey StructuralErrorCode = "UNTERMINATED_KEY"
)

// StructuralError reports a document whose declared layout cannot be trusted.
// Processing of the affected record must stop; other records are unaffected.
type StructuralError struct {
	// Code identifies the corruption category.
	Code StructuralErrorCode

	// Message is a human-readable description.
	Message string

	// Offset is the byte offset within the document being walked.
	Offset int

	// Key is the element key, when the corruption was found inside an element.
	Key string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (offset=%d, key=%q)", e.Code, e.Message, e.Offset, e.Key)
	}
	return fmt.Sprintf("%s: %s (offset=%d)", e.Code, e.Message, e.Offset)
}

// IsStructural returns true if err is, or wraps, a *StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

func structuralf(code StructuralErrorCode, offset int, key, format string, args ...any) *StructuralError {
	return &StructuralError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Offset:  offset,
		Key:     key,
	}
}
