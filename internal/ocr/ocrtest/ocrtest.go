// Package ocrtest provides a deterministic ocr.Engine for tests. It "reads"
// solid ink rectangles by their size, so synthetic pages can be run through
// the real detection pipeline without a Tesseract installation.
package ocrtest

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"gradecard/internal/imgproc"
	"gradecard/internal/ocr"
)

// DefaultTolerance is the size slack, in pixels, applied when matching blobs.
const DefaultTolerance = 4

type glyph struct {
	size image.Point
	text string
}

// BlobEngine recognizes ink blobs whose size matches a registered glyph.
// Unknown blobs (rule lines, noise) are ignored.
type BlobEngine struct {
	// Tolerance is the allowed size difference per axis.
	Tolerance int

	// Err, when set, is returned by every call.
	Err error

	mu     sync.Mutex
	glyphs []glyph
	calls  []ocr.Options
}

// NewBlobEngine returns an engine with DefaultTolerance.
func NewBlobEngine() *BlobEngine {
	return &BlobEngine{Tolerance: DefaultTolerance}
}

// Add registers text for blobs of w×h pixels.
func (e *BlobEngine) Add(w, h int, text string) *BlobEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.glyphs = append(e.glyphs, glyph{size: image.Pt(w, h), text: text})
	return e
}

// Calls returns the options of every recognition call so far.
func (e *BlobEngine) Calls() []ocr.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ocr.Options(nil), e.calls...)
}

// Name implements ocr.Engine.
func (e *BlobEngine) Name() string { return "blob" }

// Text implements ocr.Engine. Recognized blobs are joined by spaces in
// reading order.
func (e *BlobEngine) Text(ctx context.Context, img image.Image, opts ocr.Options) (string, error) {
	tokens, err := e.Tokens(ctx, img, opts)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ") + "\n", nil
}

// Tokens implements ocr.Engine.
func (e *BlobEngine) Tokens(ctx context.Context, img image.Image, opts ocr.Options) ([]ocr.Token, error) {
	e.mu.Lock()
	e.calls = append(e.calls, opts)
	glyphs := append([]glyph(nil), e.glyphs...)
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, ocr.NewOCRError("Tokens", ocr.ErrEmptyImage, "")
	}

	gray, err := imgproc.Gray(img)
	if err != nil {
		return nil, ocr.NewOCRError("Tokens", err, "")
	}
	boxes, err := imgproc.Components(inkMask(gray))
	if err != nil {
		return nil, ocr.NewOCRError("Tokens", err, "")
	}

	origin := img.Bounds().Min
	var tokens []ocr.Token
	for _, box := range boxes {
		text, ok := e.lookup(glyphs, box.Size())
		if !ok {
			continue
		}
		text = strings.TrimSpace(ocr.FilterWhitelist(text, opts.Whitelist))
		if text == "" {
			continue
		}
		tokens = append(tokens, ocr.Token{Text: text, Box: box.Add(origin), Confidence: 1})
	}
	return tokens, nil
}

func (e *BlobEngine) lookup(glyphs []glyph, size image.Point) (string, bool) {
	for _, g := range glyphs {
		if abs(g.size.X-size.X) <= e.Tolerance && abs(g.size.Y-size.Y) <= e.Tolerance {
			return g.text, true
		}
	}
	return "", false
}

// inkMask marks the minority tone as ink, so both dark-on-light and
// binarized light-on-dark images read the same.
func inkMask(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	dark := 0
	for y := 0; y < h; y++ {
		for _, p := range g.Pix[y*g.Stride : y*g.Stride+w] {
			if p < 128 {
				dark++
			}
		}
	}
	inkIsDark := dark*2 <= w*h

	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := g.Pix[y*g.Stride+x]
			if (p < 128) == inkIsDark {
				mask.Pix[y*mask.Stride+x] = imgproc.Foreground
			}
		}
	}
	return mask
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// NewPage returns a white w×h page.
func NewPage(w, h int) *image.RGBA {
	page := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(page, page.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return page
}

// Ink paints r solid black on page.
func Ink(page draw.Image, r image.Rectangle) {
	draw.Draw(page, r, image.NewUniform(color.Black), image.Point{}, draw.Src)
}
