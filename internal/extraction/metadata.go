package extraction

import (
	"fmt"
	"regexp"
	"strings"

	"gradecard/internal/layout"
	"gradecard/pkg/models"
)

// Metadata holds the three student fields read from the page header.
type Metadata struct {
	SchoolYear   models.Result
	StudentName  models.Result
	EnrollmentID models.Result
}

// MetadataParser matches the layout's metadata patterns against page text.
type MetadataParser struct {
	schoolYear   *regexp.Regexp
	studentName  *regexp.Regexp
	enrollmentID *regexp.Regexp
}

// NewMetadataParser compiles the patterns case-insensitively.
func NewMetadataParser(m layout.Metadata) (*MetadataParser, error) {
	compile := func(field, pattern string) (*regexp.Regexp, error) {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("metadata pattern %s: %w", field, err)
		}
		return re, nil
	}

	var (
		p   MetadataParser
		err error
	)
	if p.schoolYear, err = compile("school_year", m.SchoolYear); err != nil {
		return nil, err
	}
	if p.studentName, err = compile("student_name", m.StudentName); err != nil {
		return nil, err
	}
	if p.enrollmentID, err = compile("enrollment_id", m.EnrollmentID); err != nil {
		return nil, err
	}
	return &p, nil
}

// Parse extracts the fields from text. A field whose pattern does not match
// carries a parse error; Parse itself never fails.
func (p *MetadataParser) Parse(text string) Metadata {
	return Metadata{
		SchoolYear:   match(p.schoolYear, "school_year", text),
		StudentName:  match(p.studentName, "student_name", text),
		EnrollmentID: match(p.enrollmentID, "enrollment_id", text),
	}
}

func match(re *regexp.Regexp, field, text string) models.Result {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return models.Fail(models.KindParse, "ParseMetadata", nil, field)
	}
	return models.Ok(strings.TrimSpace(m[1]))
}

var gradeToken = regexp.MustCompile(`\d+[.,]?\d*`)

// ParseGrade returns the first numeric token of text with a comma decimal
// separator normalized to a point.
func ParseGrade(text string) models.Result {
	tok := gradeToken.FindString(text)
	if tok == "" {
		return models.Fail(models.KindParse, "ParseGrade", nil, "no numeric token")
	}
	return models.Ok(strings.ReplaceAll(tok, ",", "."))
}
