package extraction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"gradecard/internal/checkpoint"
	"gradecard/internal/layout"
	"gradecard/internal/logger"
	"gradecard/internal/ocr"
	"gradecard/internal/ocr/ocrtest"
	"gradecard/internal/template"
	"gradecard/pkg/models"
)

func TestParseMetadata(t *testing.T) {
	p, err := NewMetadataParser(layout.Default().Metadata)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		text      string
		year      string
		student   string
		enrolment string
	}{
		{
			name:      "full header",
			text:      "ANO LETIVO 2024 ALUNO(A): MARIA SILVA NASCIMENTO: 01/01/2010 MATRÍCULA: 123456",
			year:      "2024",
			student:   "MARIA SILVA",
			enrolment: "123456",
		},
		{
			name:      "lower case and no accent",
			text:      "ano 2023 aluno(a): joao pedro nascimento: 02/03/2011 matricula: 98765",
			year:      "2023",
			student:   "joao pedro",
			enrolment: "98765",
		},
		{
			name:      "nothing matches",
			text:      "BOLETIM ESCOLAR",
			year:      models.NotAvailable,
			student:   models.NotAvailable,
			enrolment: models.NotAvailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := p.Parse(tt.text)
			if got := m.SchoolYear.Or(models.NotAvailable); got != tt.year {
				t.Errorf("SchoolYear = %q, want %q", got, tt.year)
			}
			if got := m.StudentName.Or(models.NotAvailable); got != tt.student {
				t.Errorf("StudentName = %q, want %q", got, tt.student)
			}
			if got := m.EnrollmentID.Or(models.NotAvailable); got != tt.enrolment {
				t.Errorf("EnrollmentID = %q, want %q", got, tt.enrolment)
			}
		})
	}

	if m := p.Parse(""); !m.SchoolYear.Absent() {
		t.Errorf("unmatched field kind = %v, want parse", m.SchoolYear.Kind())
	}
}

func TestNewMetadataParserRejectsBadPattern(t *testing.T) {
	if _, err := NewMetadataParser(layout.Metadata{SchoolYear: "(", StudentName: "(x)", EnrollmentID: "(x)"}); err == nil {
		t.Error("NewMetadataParser() accepted an invalid pattern")
	}
}

func TestParseGrade(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"7,5", "7.5"},
		{"85", "85"},
		{" 10.0 ", "10.0"},
		{"nota 9,", "9."},
		{"| 6,25 |", "6.25"},
		{"8 9", "8"},
		{"", models.NotAvailable},
		{"--", models.NotAvailable},
	}
	for _, tt := range tests {
		if got := ParseGrade(tt.in).Or(models.NotAvailable); got != tt.want {
			t.Errorf("ParseGrade(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func cardTemplate() *template.CoordinateTemplate {
	tpl, _ := template.Build([]models.Pair{
		{
			Subject: models.Field{Name: ocrtest.Subject1, Box: image.Rect(20, 303, 400, 400)},
			Grade:   models.GradeBox{Text: ocrtest.Grade1, Box: image.Rect(570, 330, 620, 370)},
		},
		{
			Subject: models.Field{Name: ocrtest.Subject2, Box: image.Rect(20, 403, 400, 600)},
			Grade:   models.GradeBox{Text: ocrtest.Grade2, Box: image.Rect(570, 470, 630, 510)},
		},
	}, ocrtest.CardSize, ocrtest.CardSize, 20)
	return tpl
}

func cardExtractor(t *testing.T, engine ocr.Engine) *PageExtractor {
	t.Helper()
	e, err := NewPageExtractor(ocrtest.CardLayout(), cardTemplate(), engine, []string{"por"}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestExtractCard(t *testing.T) {
	out, err := cardExtractor(t, ocrtest.CardEngine()).Extract(context.Background(), ocrtest.CardPage(), nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := &models.PageRecord{
		SchoolYear:   "2024",
		StudentName:  "MARIA SILVA",
		EnrollmentID: "123456",
		Disciplines: map[string]string{
			ocrtest.Subject1: "85",
			ocrtest.Subject2: "7.5",
		},
	}
	if !reflect.DeepEqual(out.Record, want) {
		t.Errorf("Record = %+v, want %+v", out.Record, want)
	}
	for name, res := range out.Grades {
		if res.Err != nil {
			t.Errorf("grade %s error = %v", name, res.Err)
		}
	}
}

// A page whose regions hold no readable ink still yields a full record with
// every field set to the sentinel.
func TestExtractBlankPage(t *testing.T) {
	out, err := cardExtractor(t, ocrtest.CardEngine()).Extract(context.Background(), ocrtest.NewPage(ocrtest.CardSize, ocrtest.CardSize), nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	rec := out.Record
	for _, v := range []string{rec.SchoolYear, rec.StudentName, rec.EnrollmentID, rec.Disciplines[ocrtest.Subject1], rec.Disciplines[ocrtest.Subject2]} {
		if v != models.NotAvailable {
			t.Errorf("field = %q, want %q", v, models.NotAvailable)
		}
	}
	if len(rec.Disciplines) != 2 {
		t.Errorf("Disciplines = %v, want both template subjects", rec.Disciplines)
	}
}

func TestExtractClassifiesFailures(t *testing.T) {
	failing := ocrtest.CardEngine()
	failing.Err = ocr.ErrOCRFailed
	out, err := cardExtractor(t, failing).Extract(context.Background(), ocrtest.CardPage(), nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if k := out.Grades[ocrtest.Subject1].Kind(); k != models.KindRecognition {
		t.Errorf("engine failure kind = %v, want recognition", k)
	}

	// On a 1×1 page every region collapses to nothing.
	out, err = cardExtractor(t, ocrtest.CardEngine()).Extract(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)), nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := out.Record.Disciplines[ocrtest.Subject1]; got != models.NotAvailable {
		t.Errorf("tiny page grade = %q", got)
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cardExtractor(t, ocrtest.CardEngine()).Extract(ctx, ocrtest.CardPage(), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Extract() error = %v, want context.Canceled", err)
	}
}

func TestDirSinkWritesPageImages(t *testing.T) {
	root := t.TempDir()
	sink, err := DirSink{Root: root}.ForPage(4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cardExtractor(t, ocrtest.CardEngine()).Extract(context.Background(), ocrtest.CardPage(), sink); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "page_4"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	for _, want := range []string{
		"region_header.png", "processed_header.png", "region_student_data.png",
		"region_nota_matematica.png", "processed_nota_historia.png", "marked_nota_matematica.png",
	} {
		if !contains(names, want) {
			t.Errorf("debug dir missing %s, has %v", want, names)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestMarkedLeavesInputUntouched(t *testing.T) {
	page := ocrtest.NewPage(50, 50)
	out, err := marked(page, image.Rect(10, 10, 30, 30))
	if err != nil {
		t.Fatalf("marked: %v", err)
	}
	if got := rgbaAt(out, 10, 20); got != markColor {
		t.Errorf("outline pixel = %v", got)
	}
	if got := rgbaAt(out, 20, 20); got == markColor {
		t.Error("interior painted")
	}
	if r, _, _, _ := page.At(10, 20).RGBA(); r != 0xffff {
		t.Error("marked modified its input")
	}
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

// widthRasterizer renders page n as an n×1 image so the processor can tell
// pages apart. Calls listed in failOn return an error.
type widthRasterizer struct {
	failOn map[int]error
	calls  [][2]int
}

func (r *widthRasterizer) Render(_ context.Context, _ string, first, last int) ([]image.Image, error) {
	r.calls = append(r.calls, [2]int{first, last})
	if err, ok := r.failOn[len(r.calls)]; ok {
		return nil, err
	}
	var out []image.Image
	for p := first; p <= last; p++ {
		out = append(out, image.NewGray(image.Rect(0, 0, p, 1)))
	}
	return out, nil
}

type pageFunc func(ctx context.Context, page int) (PageOutcome, error)

func (f pageFunc) Extract(ctx context.Context, img image.Image, _ DebugSink) (PageOutcome, error) {
	return f(ctx, img.Bounds().Dx())
}

func namedRecord(_ context.Context, page int) (PageOutcome, error) {
	rec := models.NewPageRecord()
	rec.StudentName = fmt.Sprintf("ALUNO %d", page)
	return PageOutcome{Record: rec}, nil
}

// recordingStore counts snapshots and remembers their sizes.
type recordingStore struct {
	mu    sync.Mutex
	sizes []int
	last  []models.PageEntry
}

func (s *recordingStore) Save(_ context.Context, entries []models.PageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes = append(s.sizes, len(entries))
	s.last = entries
	return nil
}

func TestRunCheckpointsEveryPage(t *testing.T) {
	store := &recordingStore{}
	raster := &widthRasterizer{}
	var states []State
	b := &BatchExtractor{
		Rasterizer: raster,
		Pages:      pageFunc(namedRecord),
		Checkpoint: checkpoint.NewWriter(store),
		BatchSize:  3,
		OnState:    func(s State) { states = append(states, s) },
	}

	sum, err := b.Run(context.Background(), "doc.pdf", 7)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := [][2]int{{1, 3}, {4, 6}, {7, 7}}; !reflect.DeepEqual(raster.calls, want) {
		t.Errorf("render calls = %v, want %v", raster.calls, want)
	}
	if want := []int{1, 2, 3, 4, 5, 6, 7}; !reflect.DeepEqual(store.sizes, want) {
		t.Errorf("snapshot sizes = %v, want %v", store.sizes, want)
	}
	for i, e := range store.last {
		if e.Page != i+1 || e.Record.StudentName != fmt.Sprintf("ALUNO %d", i+1) {
			t.Errorf("entry %d = %+v", i, e)
		}
	}
	if sum.Extracted != 7 || sum.Failed != 0 || sum.State != Completed || sum.Entries() != 7 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.RunID == "" {
		t.Error("empty run id")
	}
	if states[0] != Idle || states[len(states)-1] != Completed || b.State() != Completed {
		t.Errorf("states = %v", states)
	}
}

func TestRunStopsOnBatchRenderFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	raster := &widthRasterizer{failOn: map[int]error{2: errors.New("pdftoppm exited 1")}}
	b := &BatchExtractor{
		Rasterizer: raster,
		Pages:      pageFunc(namedRecord),
		Checkpoint: checkpoint.NewWriter(&checkpoint.FileStore{Path: path}),
		BatchSize:  3,
	}

	sum, err := b.Run(context.Background(), "doc.pdf", 9)
	if !errors.Is(err, models.ErrBatchRender) {
		t.Fatalf("Run() error = %v, want ErrBatchRender", err)
	}
	if models.KindOf(err) != models.KindBatchRender {
		t.Errorf("KindOf() = %v", models.KindOf(err))
	}
	if sum.State != Failed || len(raster.calls) != 2 {
		t.Errorf("state = %v after %d render calls", sum.State, len(raster.calls))
	}

	saved, err := checkpoint.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 3 {
		t.Fatalf("saved %d entries, want pages 1-3", len(saved))
	}
	for i, e := range saved {
		if e.Failed() || e.Page != i+1 {
			t.Errorf("saved entry %d = %+v", i, e)
		}
	}
}

func TestRunTreatsEmptyRenderAsBatchFailure(t *testing.T) {
	b := &BatchExtractor{
		Rasterizer: emptyRasterizer{},
		Pages:      pageFunc(namedRecord),
		Checkpoint: checkpoint.NewWriter(&recordingStore{}),
		BatchSize:  2,
	}
	if _, err := b.Run(context.Background(), "doc.pdf", 4); !errors.Is(err, models.ErrBatchRender) {
		t.Errorf("Run() error = %v, want ErrBatchRender", err)
	}
}

type emptyRasterizer struct{}

func (emptyRasterizer) Render(context.Context, string, int, int) ([]image.Image, error) {
	return nil, nil
}

func TestRunRecordsPageFailures(t *testing.T) {
	store := &recordingStore{}
	b := &BatchExtractor{
		Rasterizer: &widthRasterizer{},
		Pages: pageFunc(func(ctx context.Context, page int) (PageOutcome, error) {
			switch page {
			case 2:
				return PageOutcome{}, errors.New("broken scan")
			case 3:
				var m map[string]string
				m["boom"] = "x"
			}
			return namedRecord(ctx, page)
		}),
		Checkpoint: checkpoint.NewWriter(store),
		BatchSize:  3,
	}

	sum, err := b.Run(context.Background(), "doc.pdf", 4)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Extracted != 2 || sum.Failed != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if len(store.last) != 4 {
		t.Fatalf("entries = %d, want 4", len(store.last))
	}
	for _, i := range []int{1, 2} {
		e := store.last[i]
		if !e.Failed() || !strings.Contains(e.Error, fmt.Sprintf("page %d", i+1)) {
			t.Errorf("entry %d = %+v, want error marker", i, e)
		}
	}
	if !strings.Contains(store.last[2].Error, "panic") {
		t.Errorf("panic entry = %q", store.last[2].Error)
	}
	if store.last[3].Failed() {
		t.Error("page after panic not processed")
	}
}

func TestRunCheckpointFailureIsFatal(t *testing.T) {
	boom := errors.New("disk full")
	raster := &widthRasterizer{}
	b := &BatchExtractor{
		Rasterizer: raster,
		Pages:      pageFunc(namedRecord),
		Checkpoint: checkpoint.NewWriter(failingStore{err: boom}),
		BatchSize:  3,
	}
	sum, err := b.Run(context.Background(), "doc.pdf", 6)
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if sum.State != Failed || len(raster.calls) != 1 {
		t.Errorf("state %v after %d render calls", sum.State, len(raster.calls))
	}
}

type failingStore struct{ err error }

func (s failingStore) Save(context.Context, []models.PageEntry) error { return s.err }

func TestRunCanceledFlushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &recordingStore{}
	b := &BatchExtractor{
		Rasterizer: &widthRasterizer{},
		Pages: pageFunc(func(c context.Context, page int) (PageOutcome, error) {
			if page == 2 {
				cancel()
				return PageOutcome{}, c.Err()
			}
			return namedRecord(c, page)
		}),
		Checkpoint: checkpoint.NewWriter(store),
		BatchSize:  3,
	}

	sum, err := b.Run(ctx, "doc.pdf", 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if sum.State != Failed {
		t.Errorf("state = %v", sum.State)
	}
	if want := []int{1, 1}; !reflect.DeepEqual(store.sizes, want) {
		t.Errorf("snapshot sizes = %v, want %v (append then flush)", store.sizes, want)
	}
}

type rasterizerFunc func(ctx context.Context, first, last int) ([]image.Image, error)

func (f rasterizerFunc) Render(ctx context.Context, _ string, first, last int) ([]image.Image, error) {
	return f(ctx, first, last)
}

// A rasterizer aborted by cancellation is a cancellation, not a render failure.
func TestRunCanceledDuringRender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &recordingStore{}
	b := &BatchExtractor{
		Rasterizer: rasterizerFunc(func(_ context.Context, first, last int) ([]image.Image, error) {
			if first > 1 {
				cancel()
				return nil, errors.New("pdftoppm: signal: killed")
			}
			return []image.Image{image.NewGray(image.Rect(0, 0, 1, 1))}, nil
		}),
		Pages:      pageFunc(namedRecord),
		Checkpoint: checkpoint.NewWriter(store),
		BatchSize:  1,
	}

	sum, err := b.Run(ctx, "doc.pdf", 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, models.ErrBatchRender) {
		t.Errorf("Run() error = %v, classified as a render failure", err)
	}
	if sum.State != Failed || sum.Extracted != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if want := []int{1, 1}; !reflect.DeepEqual(store.sizes, want) {
		t.Errorf("snapshot sizes = %v, want %v (append then flush)", store.sizes, want)
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	b := &BatchExtractor{Rasterizer: &widthRasterizer{}, Pages: pageFunc(namedRecord), Checkpoint: checkpoint.NewWriter(&recordingStore{})}
	for _, tc := range []struct{ pages, batch int }{{0, 3}, {3, 0}} {
		b.BatchSize = tc.batch
		if _, err := b.Run(context.Background(), "doc.pdf", tc.pages); !errors.Is(err, models.ErrInput) {
			t.Errorf("Run(pages=%d, batch=%d) error = %v, want ErrInput", tc.pages, tc.batch, err)
		}
	}
}

// The production extractor wired into a batch run over a rendered card.
func TestRunWithCardExtractor(t *testing.T) {
	root := t.TempDir()
	store := &recordingStore{}
	b := &BatchExtractor{
		Rasterizer: cardRasterizer{},
		Pages:      cardExtractor(t, ocrtest.CardEngine()),
		Checkpoint: checkpoint.NewWriter(store),
		BatchSize:  DefaultBatchSize,
		Debug:      DirSink{Root: root},
	}
	if _, err := b.Run(context.Background(), "doc.pdf", 2); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.last) != 2 {
		t.Fatalf("entries = %d", len(store.last))
	}
	for _, e := range store.last {
		if e.Failed() || e.Record.Disciplines[ocrtest.Subject2] != "7.5" {
			t.Errorf("entry = %+v", e)
		}
	}
	dirs, _ := os.ReadDir(root)
	var names []string
	for _, d := range dirs {
		names = append(names, d.Name())
	}
	sort.Strings(names)
	if want := []string{"page_1", "page_2"}; !reflect.DeepEqual(names, want) {
		t.Errorf("debug dirs = %v, want %v", names, want)
	}
	if _, err := os.Stat(filepath.Join(root, "page_1", "full_page.png")); err != nil {
		t.Errorf("full page image: %v", err)
	}
}

type cardRasterizer struct{}

func (cardRasterizer) Render(_ context.Context, _ string, first, last int) ([]image.Image, error) {
	var out []image.Image
	for p := first; p <= last; p++ {
		out = append(out, ocrtest.CardPage())
	}
	return out, nil
}

func TestStateString(t *testing.T) {
	if Checkpoint.String() != "checkpoint" || State(42).String() != "state(42)" {
		t.Errorf("got %s, %s", Checkpoint, State(42))
	}
}
