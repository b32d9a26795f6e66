package ocrtest

import (
	"image"

	"gradecard/internal/layout"
)

// Synthetic report card used across packages: a 1000×1000 page with two
// subject rows separated by table rules, two grades and the two metadata
// bands.
const (
	CardSize = 1000

	Subject1 = "MATEMATICA"
	Subject2 = "HISTORIA"
	Grade1   = "85"
	Grade2   = "7,5"
	Header   = "ANO LETIVO 2024"
	Student  = "ALUNO(A): MARIA SILVA NASCIMENTO: 01/01/2010 MATRÍCULA: 123456"
)

// Ink boxes of the card, in page pixels.
var (
	Subject1Ink = image.Rect(50, 340, 130, 360)
	Subject2Ink = image.Rect(50, 480, 140, 500)
	Grade1Ink   = image.Rect(580, 340, 610, 360)
	Grade2Ink   = image.Rect(580, 480, 620, 500)
	HeaderInk   = image.Rect(600, 40, 800, 60)
	StudentInk  = image.Rect(100, 140, 400, 160)
	RuleTop     = image.Rect(20, 300, 400, 303)
	RuleMiddle  = image.Rect(20, 400, 400, 403)
)

// CardLayout describes the card: the subject column spans x 2%-40% and
// y 20%-60% with its header band ignored, the grade column x 55%-65%.
func CardLayout() *layout.Descriptor {
	return &layout.Descriptor{
		Name: "synthetic",
		SubjectColumn: layout.SubjectColumn{
			Main:            layout.Band{Label: "subjects", X0: 0.02, Y0: 0.20, X1: 0.40, Y1: 0.60},
			Ignore:          []layout.Band{{Label: "table-header", X0: 0.02, Y0: 0.20, X1: 0.40, Y1: 0.25}},
			RuleKernelWidth: 50,
			RuleIterations:  2,
		},
		GradeColumn:    layout.Band{Label: "grades", X0: 0.55, Y0: 0.25, X1: 0.65, Y1: 0.60},
		Header:         layout.Band{Label: "header", X0: 0.50, Y0: 0, X1: 1, Y1: 0.10},
		Student:        layout.Band{Label: "student_data", X0: 0, Y0: 0.11, X1: 1, Y1: 0.19},
		GradeThreshold: 150,
		Metadata:       layout.Default().Metadata,
	}
}

// CardEngine reads every ink box of the card.
func CardEngine() *BlobEngine {
	e := NewBlobEngine()
	for _, g := range []struct {
		r    image.Rectangle
		text string
	}{
		{Subject1Ink, Subject1},
		{Subject2Ink, Subject2},
		{Grade1Ink, Grade1},
		{Grade2Ink, Grade2},
		{HeaderInk, Header},
		{StudentInk, Student},
	} {
		e.Add(g.r.Dx(), g.r.Dy(), g.text)
	}
	return e
}

// CardPage renders the card.
func CardPage() *image.RGBA {
	page := NewPage(CardSize, CardSize)
	for _, r := range []image.Rectangle{
		Subject1Ink, Subject2Ink, Grade1Ink, Grade2Ink,
		HeaderInk, StudentInk, RuleTop, RuleMiddle,
	} {
		Ink(page, r)
	}
	return page
}
