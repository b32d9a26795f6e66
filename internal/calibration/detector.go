package calibration

import (
	"context"
	"image"
	"strings"

	"github.com/rs/zerolog"

	"gradecard/internal/imgproc"
	"gradecard/internal/layout"
	"gradecard/internal/ocr"
	"gradecard/pkg/models"
)

// GradeWhitelist restricts grade recognition to digits and decimal separators.
const GradeWhitelist = "0123456789.,"

// DefaultPadding is the number of pixels added around each detected grade.
const DefaultPadding = 10

// Detector finds grade tokens in the grade column of a page.
type Detector struct {
	Layout  *layout.Descriptor
	Engine  ocr.Engine
	Padding int
	Log     zerolog.Logger
}

// DetectGrades returns the numeric tokens of the grade column in the order the
// engine emitted them. A degenerate column or an OCR failure yields an empty
// result; only context cancellation is returned as an error.
func (d *Detector) DetectGrades(ctx context.Context, page image.Image) ([]models.GradeBox, error) {
	const op = "DetectGrades"

	bounds := page.Bounds()
	region := d.Layout.GradeColumn.Rect(bounds.Dx(), bounds.Dy()).Add(bounds.Min)
	crop, ok := imgproc.Crop(page, region)
	if !ok {
		d.Log.Warn().
			Err(models.NewExtractionError(models.KindRegion, op, nil, region.String())).
			Msg("Grade column is outside the page")
		return nil, nil
	}
	region, _ = imgproc.Clamp(region, bounds)

	binary, err := binarize(crop, false)
	if err != nil {
		d.Log.Warn().
			Err(models.NewExtractionError(models.KindRegion, op, err, region.String())).
			Msg("Grade column could not be binarized")
		return nil, nil
	}
	tokens, err := d.Engine.Tokens(ctx, binary, ocr.Options{
		Whitelist:   GradeWhitelist,
		PageSegMode: ocr.PSMSingleBlock,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		d.Log.Warn().
			Err(models.NewExtractionError(models.KindRecognition, op, err, "")).
			Msg("Grade column OCR failed")
		return nil, nil
	}

	var grades []models.GradeBox
	for _, tok := range tokens {
		text := strings.TrimSpace(tok.Text)
		if !numericLike(text) {
			continue
		}
		raw := tok.Box.Add(region.Min)
		box := imgproc.Pad(raw, d.padding(), bounds)
		if box.Empty() {
			continue
		}
		grades = append(grades, models.GradeBox{Text: text, Box: box, Raw: raw})
	}

	d.Log.Debug().Int("tokens", len(tokens)).Int("grades", len(grades)).Msg("Grade column scanned")
	return grades, nil
}

func (d *Detector) padding() int {
	if d.Padding < 0 {
		return 0
	}
	return d.Padding
}

// numericLike accepts tokens with a digit or a decimal separator.
func numericLike(s string) bool {
	return s != "" && strings.ContainsAny(s, "0123456789.,")
}
