// Package calibration derives a coordinate template from one exemplar page:
// it reads the subject names and grade tokens, pairs them by rank and
// records where each sits relative to the page.
package calibration

import (
	"context"
	"errors"
	"image"

	"github.com/rs/zerolog"

	"gradecard/internal/layout"
	"gradecard/internal/ocr"
	"gradecard/internal/template"
	"gradecard/pkg/models"
)

var (
	// ErrNoSubjects is returned when no subject row could be read.
	ErrNoSubjects = errors.New("no subjects detected")

	// ErrNoGrades is returned when the grade column yielded no token.
	ErrNoGrades = errors.New("no grades detected in the grade column")
)

// Options configures a Calibrator.
type Options struct {
	Padding          int
	SubjectLanguages []string
	Log              zerolog.Logger
}

// Calibrator runs segmentation, grade detection and matching on one page.
type Calibrator struct {
	Layout    *layout.Descriptor
	Segmenter *Segmenter
	Detector  *Detector
	Log       zerolog.Logger
}

// New wires a Calibrator around a single OCR engine.
func New(l *layout.Descriptor, engine ocr.Engine, opts Options) *Calibrator {
	return &Calibrator{
		Layout: l,
		Segmenter: &Segmenter{
			Layout:    l,
			Engine:    engine,
			Languages: opts.SubjectLanguages,
			Log:       opts.Log.With().Str("step", "segment").Logger(),
		},
		Detector: &Detector{
			Layout:  l,
			Engine:  engine,
			Padding: opts.Padding,
			Log:     opts.Log.With().Str("step", "detect").Logger(),
		},
		Log: opts.Log,
	}
}

// Result is everything a calibration run found.
type Result struct {
	Template   *template.CoordinateTemplate
	Subjects   []models.Field
	Grades     []models.GradeBox
	Pairs      []models.Pair
	Mismatch   *MatchCountMismatch
	Duplicates []string
}

// Calibrate builds a template from page. The returned fields, grades and
// pairs are in page coordinates; the template is relative to the page origin.
func (c *Calibrator) Calibrate(ctx context.Context, page image.Image) (*Result, error) {
	bounds := page.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, models.NewExtractionError(models.KindInput, "Calibrate", nil, "page has no pixels")
	}

	subjects, err := c.Segmenter.Segment(ctx, page)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, ErrNoSubjects
	}

	grades, err := c.Detector.DetectGrades(ctx, page)
	if err != nil {
		return nil, err
	}
	if len(grades) == 0 {
		return nil, ErrNoGrades
	}

	match := Match(subjects, grades)
	if match.Mismatch != nil {
		c.Log.Warn().
			Int("subjects", match.Mismatch.Subjects).
			Int("grades", match.Mismatch.Grades).
			Msg("Subject and grade counts differ, rank pairing may be shifted")
	}

	subjectX0 := c.Layout.SubjectColumn.Main.Rect(w, h).Min.X
	tpl, duplicates := template.Build(relativeTo(match.Pairs, bounds.Min), w, h, subjectX0)
	for _, name := range duplicates {
		c.Log.Warn().Str("subject", name).Msg("Subject detected more than once, keeping the last row")
	}

	c.Log.Info().
		Int("subjects", len(subjects)).
		Int("grades", len(grades)).
		Int("pairs", len(match.Pairs)).
		Msg("Calibration completed")

	return &Result{
		Template:   tpl,
		Subjects:   subjects,
		Grades:     grades,
		Pairs:      match.Pairs,
		Mismatch:   match.Mismatch,
		Duplicates: duplicates,
	}, nil
}

// relativeTo shifts pair boxes so origin becomes (0,0).
func relativeTo(pairs []models.Pair, origin image.Point) []models.Pair {
	out := make([]models.Pair, len(pairs))
	for i, p := range pairs {
		p.Subject.Box = p.Subject.Box.Sub(origin)
		p.Grade.Box = p.Grade.Box.Sub(origin)
		p.Grade.Raw = p.Grade.Raw.Sub(origin)
		out[i] = p
	}
	return out
}
