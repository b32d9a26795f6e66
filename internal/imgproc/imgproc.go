// Package imgproc wraps the OpenCV operations the detectors need: grayscale
// conversion, Gaussian smoothing, global thresholding and horizontal rule
// detection. Images cross the package boundary as origin-anchored Go images;
// Mats never escape and inputs are never mutated.
package imgproc

import (
	"fmt"
	"image"
	"runtime"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

const (
	// Foreground is the value of ink pixels in binarized images.
	Foreground = 255
	// Background is the value of paper pixels in binarized images.
	Background = 0
)

// Clamp intersects r with bounds. ok is false when nothing is left.
func Clamp(r, bounds image.Rectangle) (image.Rectangle, bool) {
	r = r.Intersect(bounds)
	return r, !r.Empty()
}

// Crop copies the part of img inside r into a new image anchored at (0,0).
// A region straddling the border is clamped; ok is false when the clamped
// region is degenerate.
func Crop(img image.Image, r image.Rectangle) (*image.RGBA, bool) {
	r, ok := Clamp(r, img.Bounds())
	if !ok {
		return nil, false
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, true
}

// Pad grows r by pad pixels on every side, clamped to bounds.
func Pad(r image.Rectangle, pad int, bounds image.Rectangle) image.Rectangle {
	return image.Rect(
		max(bounds.Min.X, r.Min.X-pad),
		max(bounds.Min.Y, r.Min.Y-pad),
		min(bounds.Max.X, r.Max.X+pad),
		min(bounds.Max.Y, r.Max.Y+pad),
	)
}

// Gray converts img to an origin-anchored 8-bit grayscale image.
func Gray(img image.Image) (*image.Gray, error) {
	const op = "imgproc.Gray"

	b := img.Bounds()
	if b.Empty() {
		return image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy())), nil
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.CvtColor(src, &dst, gocv.ColorRGBAToGray)
	runtime.KeepAlive(rgba.Pix)

	return toGray(dst)
}

// GaussianBlur3 smooths g with a 3×3 Gaussian kernel (sigma derived from the
// size) and OpenCV's default reflect-101 border.
func GaussianBlur3(g *image.Gray) (*image.Gray, error) {
	return apply("imgproc.GaussianBlur3", g, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.GaussianBlur(src, dst, image.Pt(3, 3), 0, 0, gocv.BorderDefault)
	})
}

// BinarizeInv thresholds with Otsu and inverts, so dark ink becomes
// Foreground on a Background page.
func BinarizeInv(g *image.Gray) (*image.Gray, error) {
	return apply("imgproc.BinarizeInv", g, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Threshold(src, dst, 0, Foreground, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)
	})
}

// Threshold maps pixels above t to white and the rest to black, keeping dark
// ink on a white page.
func Threshold(g *image.Gray, t uint8) (*image.Gray, error) {
	return apply("imgproc.Threshold", g, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Threshold(src, dst, float32(t), 255, gocv.ThresholdBinary)
	})
}

// apply runs fn over g as a single-channel Mat and copies the result back.
// Empty images are returned as empty copies; OpenCV rejects them.
func apply(op string, g *image.Gray, fn func(src gocv.Mat, dst *gocv.Mat)) (*image.Gray, error) {
	if g.Rect.Empty() {
		return image.NewGray(image.Rect(0, 0, g.Rect.Dx(), g.Rect.Dy())), nil
	}
	src, err := fromGray(g)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	fn(src, &dst)

	out, err := toGray(dst)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// fromGray copies g into an owned CV_8UC1 Mat.
func fromGray(g *image.Gray) (gocv.Mat, error) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		copy(pix[y*w:(y+1)*w], g.Pix[y*g.Stride:y*g.Stride+w])
	}
	view, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, pix)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer view.Close()
	m := view.Clone()
	runtime.KeepAlive(pix)
	return m, nil
}

func toGray(m gocv.Mat) (*image.Gray, error) {
	if m.Empty() {
		return nil, fmt.Errorf("empty result mat")
	}
	if m.Channels() != 1 {
		return nil, fmt.Errorf("want 1 channel, got %d", m.Channels())
	}
	dst := image.NewGray(image.Rect(0, 0, m.Cols(), m.Rows()))
	data := m.ToBytes()
	if len(data) != len(dst.Pix) {
		return nil, fmt.Errorf("mat holds %d bytes, want %d", len(data), len(dst.Pix))
	}
	copy(dst.Pix, data)
	return dst, nil
}
