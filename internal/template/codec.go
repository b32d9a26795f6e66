package template

import (
	"image"
	"math"
)

// RelativeRegion is a box expressed by its center and extent as fractions of
// the page width (x, width) and height (y, height).
type RelativeRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Normalize converts a pixel box on a w×h page to a RelativeRegion.
func Normalize(box image.Rectangle, w, h int) RelativeRegion {
	fw, fh := float64(w), float64(h)
	return RelativeRegion{
		X:      float64(box.Min.X+box.Max.X) / 2 / fw,
		Y:      float64(box.Min.Y+box.Max.Y) / 2 / fh,
		Width:  float64(box.Dx()) / fw,
		Height: float64(box.Dy()) / fh,
	}
}

// Denormalize rebuilds a pixel box on a w×h page, expanding symmetrically
// from the scaled center. Normalize followed by Denormalize on the same
// dimensions returns the original box.
func Denormalize(r RelativeRegion, w, h int) image.Rectangle {
	cx, cy := r.X*float64(w), r.Y*float64(h)
	hw, hh := r.Width*float64(w)/2, r.Height*float64(h)/2
	return image.Rect(
		int(math.Round(cx-hw)),
		int(math.Round(cy-hh)),
		int(math.Round(cx+hw)),
		int(math.Round(cy+hh)),
	)
}
