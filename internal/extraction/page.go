package extraction

import (
	"context"
	"image"
	"strings"

	"github.com/rs/zerolog"

	"gradecard/internal/imgproc"
	"gradecard/internal/layout"
	"gradecard/internal/ocr"
	"gradecard/internal/template"
	"gradecard/pkg/models"
)

// PageOutcome is the record of one page plus what happened to each field.
type PageOutcome struct {
	Record   *models.PageRecord
	Metadata Metadata
	Grades   map[string]models.Result
}

// PageExtractor applies a template and the layout's metadata bands to one
// rendered page.
type PageExtractor struct {
	Layout    *layout.Descriptor
	Template  *template.CoordinateTemplate
	Engine    ocr.Engine
	Languages []string
	Parser    *MetadataParser
	Log       zerolog.Logger
}

// NewPageExtractor compiles the layout's metadata patterns.
func NewPageExtractor(l *layout.Descriptor, t *template.CoordinateTemplate, engine ocr.Engine, languages []string, log zerolog.Logger) (*PageExtractor, error) {
	parser, err := NewMetadataParser(l.Metadata)
	if err != nil {
		return nil, err
	}
	return &PageExtractor{
		Layout:    l,
		Template:  t,
		Engine:    engine,
		Languages: languages,
		Parser:    parser,
		Log:       log,
	}, nil
}

// Extract reads metadata and every template subject's grade from page.
// Field-level failures become the sentinel in the record; only context
// cancellation is returned as an error.
func (e *PageExtractor) Extract(ctx context.Context, page image.Image, debug DebugSink) (PageOutcome, error) {
	if debug == nil {
		debug = NopSink{}
	}
	bounds := page.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	header := e.readRegion(ctx, page, e.Layout.Header.Rect(w, h).Add(bounds.Min), "header", debug)
	student := e.readRegion(ctx, page, e.Layout.Student.Rect(w, h).Add(bounds.Min), "student_data", debug)
	if err := ctx.Err(); err != nil {
		return PageOutcome{}, err
	}
	for _, r := range []models.Result{header, student} {
		if r.Err != nil {
			e.Log.Debug().Err(r.Err).Str("kind", r.Kind().String()).Msg("Metadata band unreadable")
		}
	}

	meta := e.Parser.Parse(header.Or("") + " " + student.Or(""))
	record := models.NewPageRecord()
	record.SchoolYear = meta.SchoolYear.Or(models.NotAvailable)
	record.StudentName = meta.StudentName.Or(models.NotAvailable)
	record.EnrollmentID = meta.EnrollmentID.Or(models.NotAvailable)

	grades := make(map[string]models.Result)
	for _, name := range e.Template.SubjectNames() {
		if err := ctx.Err(); err != nil {
			return PageOutcome{}, err
		}
		subject := strings.TrimSpace(name)
		box, _ := e.Template.GradeBox(name, w, h)
		box = box.Add(bounds.Min)
		id := regionID(subject)

		res := e.readRegion(ctx, page, box, id, debug)
		if res.Err == nil {
			res = ParseGrade(res.Value)
		}
		if res.Err != nil {
			e.Log.Debug().Err(res.Err).Str("kind", res.Kind().String()).Str("subject", subject).Msg("Grade replaced by sentinel")
		}
		grades[subject] = res
		record.Disciplines[subject] = res.Or(models.NotAvailable)

		if debug.Enabled() {
			if img, err := marked(page, box); err == nil {
				e.save(debug, "marked_"+id, img)
			} else {
				e.Log.Warn().Err(err).Str("image", "marked_"+id).Msg("Failed to draw debug image")
			}
		}
	}

	return PageOutcome{Record: record, Metadata: meta, Grades: grades}, nil
}

// readRegion crops box, binarizes it with the layout's fixed threshold and
// returns the recognized text with whitespace collapsed.
func (e *PageExtractor) readRegion(ctx context.Context, page image.Image, box image.Rectangle, name string, debug DebugSink) models.Result {
	const op = "ReadRegion"

	crop, ok := imgproc.Crop(page, box)
	if !ok {
		return models.Fail(models.KindRegion, op, nil, name)
	}
	e.save(debug, "region_"+name, crop)

	gray, err := imgproc.Gray(crop)
	if err != nil {
		return models.Fail(models.KindRegion, op, err, name)
	}
	processed, err := imgproc.Threshold(gray, e.Layout.GradeThreshold)
	if err != nil {
		return models.Fail(models.KindRegion, op, err, name)
	}
	e.save(debug, "processed_"+name, processed)

	text, err := e.Engine.Text(ctx, processed, ocr.Options{
		Languages:   e.Languages,
		PageSegMode: ocr.PSMSingleBlock,
	})
	if err != nil {
		return models.Fail(models.KindRecognition, op, err, name)
	}
	return models.Ok(strings.Join(strings.Fields(text), " "))
}

func (e *PageExtractor) save(debug DebugSink, name string, img image.Image) {
	if !debug.Enabled() {
		return
	}
	if err := debug.Save(name, img); err != nil {
		e.Log.Warn().Err(err).Str("image", name).Msg("Failed to write debug image")
	}
}

// regionID names a subject's debug images: "nota_" plus the lower-cased
// subject with spaces replaced by underscores.
func regionID(subject string) string {
	return "nota_" + strings.ReplaceAll(strings.ToLower(subject), " ", "_")
}
