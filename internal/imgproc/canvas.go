package imgproc

import (
	"fmt"
	"image"
	"image/color"
	"runtime"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// Canvas is a BGR copy of an image for drawing overlays. Coordinates are given
// in the source image's space and shifted by its origin. Close releases the
// underlying Mat.
type Canvas struct {
	mat    gocv.Mat
	origin image.Point
}

// NewCanvas copies img onto a new canvas; img itself is never drawn on.
func NewCanvas(img image.Image) (*Canvas, error) {
	const op = "imgproc.NewCanvas"

	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%s: empty image %v", op, b)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer src.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(src, &bgr, gocv.ColorRGBAToBGR)
	runtime.KeepAlive(rgba.Pix)
	return &Canvas{mat: bgr, origin: b.Min}, nil
}

// Rect outlines r.
func (c *Canvas) Rect(r image.Rectangle, col color.RGBA, thickness int) {
	gocv.Rectangle(&c.mat, r.Sub(c.origin), col, thickness)
}

// Line joins a and b.
func (c *Canvas) Line(a, b image.Point, col color.RGBA, thickness int) {
	gocv.Line(&c.mat, a.Sub(c.origin), b.Sub(c.origin), col, thickness)
}

// Label writes text with its baseline starting at at. Labels that would be
// clipped by the top edge move down by one line.
func (c *Canvas) Label(at image.Point, text string, col color.RGBA) {
	at = at.Sub(c.origin)
	if at.Y < 12 {
		at.Y += 16
	}
	gocv.PutText(&c.mat, text, at, gocv.FontHersheySimplex, 0.4, col, 1)
}

// Image returns the drawing as an origin-anchored image.
func (c *Canvas) Image() (image.Image, error) {
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("imgproc.Canvas.Image: %w", err)
	}
	return img, nil
}

// Close releases the canvas.
func (c *Canvas) Close() error {
	return c.mat.Close()
}
