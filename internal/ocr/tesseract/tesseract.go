// Package tesseract implements ocr.Engine with a local Tesseract installation
// through gosseract. A fresh client is created for every call so the engine
// is safe for concurrent use.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"gradecard/internal/ocr"
)

// Engine is the Tesseract-backed OCR engine.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract-backed OCR engine.
func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return "tesseract" }

// Text implements ocr.Engine.
func (e *Engine) Text(ctx context.Context, img image.Image, opts ocr.Options) (string, error) {
	const op = "Text"

	c, err := e.prepare(ctx, img, opts)
	if err != nil {
		return "", ocr.WrapOCRError(op, err, "")
	}
	defer c.Close()

	text, err := c.Text()
	if err != nil {
		return "", ocr.WrapOCRError(op, fmt.Errorf("%w: %v", ocr.ErrOCRFailed, err), "recognize text")
	}
	return text, nil
}

// Tokens implements ocr.Engine using word-level bounding boxes.
func (e *Engine) Tokens(ctx context.Context, img image.Image, opts ocr.Options) ([]ocr.Token, error) {
	const op = "Tokens"

	c, err := e.prepare(ctx, img, opts)
	if err != nil {
		return nil, ocr.WrapOCRError(op, err, "")
	}
	defer c.Close()

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, ocr.WrapOCRError(op, fmt.Errorf("%w: %v", ocr.ErrOCRFailed, err), "word boxes")
	}

	origin := img.Bounds().Min
	tokens := make([]ocr.Token, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		tokens = append(tokens, ocr.Token{
			Text:       word,
			Box:        b.Box.Add(origin),
			Confidence: b.Confidence / 100.0,
		})
	}
	return tokens, nil
}

func (e *Engine) prepare(ctx context.Context, img image.Image, opts ocr.Options) (*gosseract.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, ocr.ErrEmptyImage
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	c := e.clientFactory()
	if err := configure(c, buf.Bytes(), opts); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func configure(c *gosseract.Client, data []byte, opts ocr.Options) error {
	if err := c.SetImageFromBytes(data); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	if len(opts.Languages) > 0 {
		if err := c.SetLanguage(opts.Languages...); err != nil {
			return fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(opts.Mode())); err != nil {
		return fmt.Errorf("set page segmentation mode: %w", err)
	}
	if opts.Whitelist != "" {
		if err := c.SetWhitelist(opts.Whitelist); err != nil {
			return fmt.Errorf("set whitelist: %w", err)
		}
	}
	if opts.PreserveInterwordSpaces {
		if err := c.SetVariable("preserve_interword_spaces", "1"); err != nil {
			return fmt.Errorf("set preserve_interword_spaces: %w", err)
		}
	}
	return nil
}
