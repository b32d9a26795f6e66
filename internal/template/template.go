// Package template holds the resolution-independent coordinate template built
// during calibration and consumed by batch extraction.
package template

import (
	"image"
	"sort"

	"gradecard/pkg/models"
)

// GradeRegion is a relative grade box plus the value read at calibration.
type GradeRegion struct {
	Value string `json:"value"`
	RelativeRegion
}

// Dimensions are the pixel dimensions of the calibration page.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CoordinateTemplate maps subject names to where their name and grade sit on
// a page.
type CoordinateTemplate struct {
	Subjects            map[string]RelativeRegion `json:"subjects"`
	Grades              map[string][]GradeRegion  `json:"grades"`
	ReferenceDimensions Dimensions                `json:"reference_dimensions"`
}

// Build creates a template from matched pairs found on a w×h page. Boxes and
// subjectX0 are relative to the page origin; subject boxes are re-anchored at
// subjectX0, the left margin of the subject column.
// A repeated subject name overwrites the subject region and appends another
// grade region; the repeated names are returned.
func Build(pairs []models.Pair, w, h, subjectX0 int) (*CoordinateTemplate, []string) {
	t := &CoordinateTemplate{
		Subjects:            make(map[string]RelativeRegion, len(pairs)),
		Grades:              make(map[string][]GradeRegion, len(pairs)),
		ReferenceDimensions: Dimensions{Width: w, Height: h},
	}

	var duplicates []string
	for _, p := range pairs {
		name := p.Subject.Name
		if _, seen := t.Subjects[name]; seen {
			duplicates = append(duplicates, name)
		}

		box := p.Subject.Box
		anchored := image.Rect(subjectX0, box.Min.Y, subjectX0+box.Dx(), box.Max.Y)
		t.Subjects[name] = Normalize(anchored, w, h)
		t.Grades[name] = append(t.Grades[name], GradeRegion{
			Value:          p.Grade.Text,
			RelativeRegion: Normalize(p.Grade.Box, w, h),
		})
	}
	return t, duplicates
}

// SubjectNames returns the subjects that have at least one grade region, in
// sorted order.
func (t *CoordinateTemplate) SubjectNames() []string {
	names := make([]string, 0, len(t.Grades))
	for name, regions := range t.Grades {
		if len(regions) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GradeBox returns the first grade region of subject denormalized onto a w×h
// page.
func (t *CoordinateTemplate) GradeBox(subject string, w, h int) (image.Rectangle, bool) {
	regions := t.Grades[subject]
	if len(regions) == 0 {
		return image.Rectangle{}, false
	}
	return Denormalize(regions[0].RelativeRegion, w, h), true
}
