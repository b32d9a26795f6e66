package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindInput: missing document, invalid page index.
	KindInput
	// KindRegion: a computed crop region is empty or out of bounds.
	KindRegion
	// KindRecognition: the OCR engine failed on a region.
	KindRecognition
	// KindParse: a pattern did not match the recognized text.
	KindParse
	// KindBatchRender: rasterizing a batch of pages failed.
	KindBatchRender
	// KindPage: any other failure while processing one page.
	KindPage
)

var kindNames = map[ErrorKind]string{
	KindNone:        "none",
	KindInput:       "input",
	KindRegion:      "region",
	KindRecognition: "recognition",
	KindParse:       "parse",
	KindBatchRender: "batch_render",
	KindPage:        "page",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinel errors, one per kind.
var (
	ErrInput       = errors.New("invalid input")
	ErrRegion      = errors.New("region is empty or out of bounds")
	ErrRecognition = errors.New("text recognition failed")
	ErrParse       = errors.New("no match in recognized text")
	ErrBatchRender = errors.New("batch rendering failed")
	ErrPage        = errors.New("page processing failed")
)

var kindSentinels = map[ErrorKind]error{
	KindInput:       ErrInput,
	KindRegion:      ErrRegion,
	KindRecognition: ErrRecognition,
	KindParse:       ErrParse,
	KindBatchRender: ErrBatchRender,
	KindPage:        ErrPage,
}

// ExtractionError wraps a failure with its kind and the operation that raised it.
type ExtractionError struct {
	// Kind is the taxonomy bucket.
	Kind ErrorKind

	// Op is the operation that failed (e.g., "DetectGrades", "ReadGrade").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s failed: %s: %v", e.Kind, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is matches both the underlying error and the sentinel of the error's kind.
func (e *ExtractionError) Is(target error) bool {
	if sentinel, ok := kindSentinels[e.Kind]; ok && target == sentinel {
		return true
	}
	return errors.Is(e.Err, target)
}

// NewExtractionError creates a new ExtractionError. A nil err is replaced by
// the kind's sentinel.
func NewExtractionError(kind ErrorKind, op string, err error, details string) *ExtractionError {
	if err == nil {
		err = kindSentinels[kind]
	}
	return &ExtractionError{
		Kind:    kind,
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// KindOf returns the kind of the first ExtractionError in err's chain, or
// KindNone.
func KindOf(err error) ErrorKind {
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Kind
	}
	return KindNone
}
