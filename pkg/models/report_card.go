package models

import (
	"encoding/json"
	"errors"
	"image"
)

// NotAvailable is the sentinel persisted when a field cannot be recognized.
const NotAvailable = "N/A"

// Field is a subject name detected during calibration together with the
// row band it was read from.
type Field struct {
	Name string          // Cleaned subject name
	Box  image.Rectangle // Row band in page pixels
}

// GradeBox is a numeric token detected in the grade column.
type GradeBox struct {
	Text string          // Recognized token text
	Box  image.Rectangle // Padded box in page pixels
	Raw  image.Rectangle // Box as reported by the OCR engine, in page pixels
}

// Pair links a subject row to the grade read on the same rank.
type Pair struct {
	Subject Field
	Grade   GradeBox
}

// PageRecord is the structured result extracted from one rendered page.
type PageRecord struct {
	SchoolYear   string            `json:"school_year"`   // Ano letivo
	StudentName  string            `json:"student_name"`  // Aluno(a)
	EnrollmentID string            `json:"enrollment_id"` // Matrícula
	Disciplines  map[string]string `json:"disciplines"`   // Subject -> grade or NotAvailable
}

// PageEntry is one element of a BatchRun: either a record or an error marker
// for a page that could not be processed.
type PageEntry struct {
	Page   int // 1-based page number, not persisted
	Record *PageRecord
	Error  string
}

// Failed reports whether the entry is an error marker.
func (e PageEntry) Failed() bool {
	return e.Record == nil
}

type errorEntry struct {
	Error string `json:"error"`
}

// MarshalJSON writes the record itself, or {"error": ...} for failed pages.
func (e PageEntry) MarshalJSON() ([]byte, error) {
	if e.Record == nil {
		return json.Marshal(errorEntry{Error: e.Error})
	}
	return json.Marshal(e.Record)
}

// UnmarshalJSON accepts both record and error shapes.
func (e *PageEntry) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["error"]; ok {
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		e.Record = nil
		e.Error = msg
		return nil
	}
	var rec PageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.Disciplines == nil {
		rec.Disciplines = map[string]string{}
	}
	e.Record = &rec
	e.Error = ""
	return nil
}

// NewPageRecord returns a record with every field set to the sentinel.
func NewPageRecord() *PageRecord {
	return &PageRecord{
		SchoolYear:   NotAvailable,
		StudentName:  NotAvailable,
		EnrollmentID: NotAvailable,
		Disciplines:  make(map[string]string),
	}
}

// Result carries either a recognized value or the reason it is missing.
type Result struct {
	Value string
	Err   *ExtractionError
}

// Ok wraps a recognized value.
func Ok(value string) Result {
	return Result{Value: value}
}

// Fail wraps a classified failure.
func Fail(kind ErrorKind, op string, err error, details string) Result {
	return Result{Err: NewExtractionError(kind, op, err, details)}
}

// Or returns the value, or fallback when the result carries an error.
func (r Result) Or(fallback string) string {
	if r.Err != nil {
		return fallback
	}
	return r.Value
}

// Kind returns the failure kind, or KindNone for a successful result.
func (r Result) Kind() ErrorKind {
	if r.Err == nil {
		return KindNone
	}
	return r.Err.Kind
}

// Absent reports whether the value is legitimately missing (nothing matched)
// as opposed to detection having failed.
func (r Result) Absent() bool {
	return r.Err != nil && errors.Is(r.Err, ErrParse)
}
