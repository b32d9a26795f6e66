// Package ocr defines the text recognition boundary used by calibration and
// extraction.
//
// An Engine reads text from an in-memory image. Two engines ship with the
// module:
//   - tesseract.Engine runs Tesseract locally through gosseract (default)
//   - GoogleVisionEngine calls the Cloud Vision TEXT_DETECTION feature
//
// Required environment variables for the Vision engine:
//   - GOOGLE_APPLICATION_CREDENTIALS: path to a service account JSON file, OR
//   - GOOGLE_CREDENTIALS: inline JSON credentials
//
// Token boxes are always expressed relative to the bounds of the image handed
// to the engine.
package ocr

import (
	"context"
	"image"
	"strings"
)

// PageSegMode selects how an engine splits an image into text lines.
// Values follow Tesseract's numbering.
type PageSegMode int

const (
	// PSMAuto lets the engine decide.
	PSMAuto PageSegMode = 3
	// PSMSingleBlock treats the image as one uniform block of text.
	PSMSingleBlock PageSegMode = 6
	// PSMSingleLine treats the image as a single text line.
	PSMSingleLine PageSegMode = 7
)

// Options tunes a single recognition call.
type Options struct {
	// Languages are Tesseract language codes such as "por" or "eng".
	Languages []string

	// Whitelist restricts the recognized characters. Empty means no restriction.
	Whitelist string

	// PageSegMode is the segmentation mode; zero means PSMAuto.
	PageSegMode PageSegMode

	// PreserveInterwordSpaces keeps runs of spaces between words.
	PreserveInterwordSpaces bool
}

// Mode returns the effective segmentation mode.
func (o Options) Mode() PageSegMode {
	if o.PageSegMode == 0 {
		return PSMAuto
	}
	return o.PageSegMode
}

// Token is one recognized word and its box.
type Token struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// Engine recognizes text in images.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string

	// Text returns the full text of img.
	Text(ctx context.Context, img image.Image, opts Options) (string, error)

	// Tokens returns word-level results of img in reading order.
	Tokens(ctx context.Context, img image.Image, opts Options) ([]Token, error)
}

// FilterWhitelist drops every rune of s that is not in whitelist. An empty
// whitelist keeps s unchanged.
func FilterWhitelist(s, whitelist string) string {
	if whitelist == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(whitelist, r) || r == ' ' || r == '\n' {
			return r
		}
		return -1
	}, s)
}
