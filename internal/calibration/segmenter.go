package calibration

import (
	"context"
	"image"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"gradecard/internal/imgproc"
	"gradecard/internal/layout"
	"gradecard/internal/ocr"
	"gradecard/pkg/models"
)

// Segmenter splits the subject column into table rows and reads one subject
// name per row.
type Segmenter struct {
	Layout    *layout.Descriptor
	Engine    ocr.Engine
	Languages []string
	Log       zerolog.Logger
}

// Segment returns the subject names of page, top to bottom. Rows without
// usable text are dropped, which can shift the rank order against the grade
// column; Match reports the resulting count mismatch.
func (s *Segmenter) Segment(ctx context.Context, page image.Image) ([]models.Field, error) {
	const op = "Segment"

	bounds := page.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	binary, err := binarize(page, true)
	if err != nil {
		return nil, models.NewExtractionError(models.KindRegion, op, err, "")
	}
	col := s.Layout.SubjectColumn

	var fields []models.Field
	for _, region := range s.Layout.ValidRegions(w, h) {
		strip, ok := imgproc.Clamp(region, binary.Rect)
		if !ok {
			s.Log.Debug().Err(models.NewExtractionError(models.KindRegion, op, nil, region.String())).Msg("Skipping empty strip")
			continue
		}
		roi, err := imgproc.Gray(binary.SubImage(strip))
		if err != nil {
			return nil, models.NewExtractionError(models.KindRegion, op, err, region.String())
		}
		rules, err := imgproc.RuleTops(roi, col.RuleKernelWidth, col.RuleIterations)
		if err != nil {
			return nil, models.NewExtractionError(models.KindRegion, op, err, region.String())
		}
		ys := append([]int{0}, rules...)
		ys = append(ys, roi.Rect.Dy())

		for i := 0; i+1 < len(ys); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			start, end := ys[i], ys[i+1]
			if start >= end {
				continue
			}
			row := roi.SubImage(image.Rect(0, start, roi.Rect.Dx(), end))
			text, err := s.Engine.Text(ctx, row, ocr.Options{
				Languages:               s.Languages,
				PageSegMode:             ocr.PSMSingleBlock,
				PreserveInterwordSpaces: true,
			})
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				s.Log.Warn().Err(models.NewExtractionError(models.KindRecognition, op, err, "")).
					Int("row_y", strip.Min.Y+start).
					Msg("Subject row OCR failed")
				continue
			}

			name, ok := CleanSubject(text)
			if !ok {
				continue
			}
			fields = append(fields, models.Field{
				Name: name,
				Box:  image.Rect(strip.Min.X, strip.Min.Y+start, strip.Max.X, strip.Min.Y+end).Add(bounds.Min),
			})
		}
	}

	s.Log.Debug().Int("subjects", len(fields)).Msg("Subject column segmented")
	return fields, nil
}

// binarize converts img to gray, optionally smooths it, and inverts it with
// Otsu so ink becomes foreground.
func binarize(img image.Image, blur bool) (*image.Gray, error) {
	g, err := imgproc.Gray(img)
	if err != nil {
		return nil, err
	}
	if blur {
		if g, err = imgproc.GaussianBlur3(g); err != nil {
			return nil, err
		}
	}
	return imgproc.BinarizeInv(g)
}

// CleanSubject normalizes the OCR text of one row. It reports false for rows
// that do not look like a subject name: three characters or fewer, no letter,
// or a leading punctuation mark.
func CleanSubject(text string) (string, bool) {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= 3 {
		return "", false
	}
	if !strings.ContainsFunc(text, unicode.IsLetter) {
		return "", false
	}
	if strings.ContainsRune(".,;-", []rune(text)[0]) {
		return "", false
	}

	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' {
			return r
		}
		return -1
	}, text)
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return "", false
	}
	return clean, true
}
