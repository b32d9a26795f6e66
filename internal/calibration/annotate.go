package calibration

import (
	"image"
	"image/color"

	"gradecard/internal/imgproc"
	"gradecard/pkg/models"
)

var palette = []color.RGBA{
	{R: 220, A: 255},                 // red
	{B: 220, A: 255},                 // blue
	{G: 160, A: 255},                 // green
	{R: 128, B: 128, A: 255},         // purple
	{R: 255, G: 140, A: 255},         // orange
	{R: 139, G: 69, B: 19, A: 255},   // brown
	{R: 255, G: 105, B: 180, A: 255}, // pink
	{R: 128, G: 128, B: 128, A: 255}, // gray
}

// Annotate draws each pair on a copy of page: a box around the subject row
// and the grade, their labels, and a line joining them. Boxes are in page
// coordinates; the result is anchored at (0,0).
func Annotate(page image.Image, pairs []models.Pair) (image.Image, error) {
	canvas, err := imgproc.NewCanvas(page)
	if err != nil {
		return nil, err
	}
	defer canvas.Close()

	for i, p := range pairs {
		c := palette[i%len(palette)]
		canvas.Rect(p.Subject.Box, c, 2)
		canvas.Rect(p.Grade.Box, c, 2)
		canvas.Label(p.Subject.Box.Min.Add(image.Pt(0, -4)), p.Subject.Name, c)
		canvas.Label(p.Grade.Box.Min.Add(image.Pt(0, -4)), p.Grade.Text, c)

		from := image.Pt(p.Subject.Box.Max.X, (p.Subject.Box.Min.Y+p.Subject.Box.Max.Y)/2)
		to := image.Pt(p.Grade.Box.Min.X, (p.Grade.Box.Min.Y+p.Grade.Box.Max.Y)/2)
		canvas.Line(from, to, c, 2)
	}
	return canvas.Image()
}
