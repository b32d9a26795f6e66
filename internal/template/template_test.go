package template

import (
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gradecard/pkg/models"
)

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestNormalizeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		box  image.Rectangle
		w, h int
	}{
		{"grade box", image.Rect(1961, 1216, 2088, 1290), 3307, 4677},
		{"odd extents", image.Rect(3, 7, 10, 12), 17, 13},
		{"full page", image.Rect(0, 0, 4134, 5846), 4134, 5846},
		{"one pixel", image.Rect(99, 99, 100, 100), 101, 103},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Denormalize(Normalize(tt.box, tt.w, tt.h), tt.w, tt.h)
			for _, d := range []int{
				got.Min.X - tt.box.Min.X, got.Min.Y - tt.box.Min.Y,
				got.Max.X - tt.box.Max.X, got.Max.Y - tt.box.Max.Y,
			} {
				if abs(d) > 1 {
					t.Fatalf("round trip = %v, want %v ±1", got, tt.box)
				}
			}
		})
	}
}

func TestDenormalizeKeepsCenterFraction(t *testing.T) {
	r := Normalize(image.Rect(1961, 1216, 2088, 1290), 4134, 5846)
	for _, dims := range [][2]int{{3307, 4677}, {1654, 2339}, {4134, 5846}} {
		box := Denormalize(r, dims[0], dims[1])
		cx := float64(box.Min.X+box.Max.X) / 2 / float64(dims[0])
		cy := float64(box.Min.Y+box.Max.Y) / 2 / float64(dims[1])
		// Rounding each edge moves the center by at most one pixel.
		if math.Abs(cx-r.X) > 1/float64(dims[0]) || math.Abs(cy-r.Y) > 1/float64(dims[1]) {
			t.Errorf("dims %v: center (%f,%f), want (%f,%f)", dims, cx, cy, r.X, r.Y)
		}
	}
}

func pair(name string, subject image.Rectangle, grade string, gradeBox image.Rectangle) models.Pair {
	return models.Pair{
		Subject: models.Field{Name: name, Box: subject},
		Grade:   models.GradeBox{Text: grade, Box: gradeBox},
	}
}

func TestBuild(t *testing.T) {
	pairs := []models.Pair{
		pair("PORTUGUES", image.Rect(20, 300, 400, 340), "7,5", image.Rect(560, 305, 600, 335)),
		pair("MATEMATICA", image.Rect(20, 340, 400, 380), "8", image.Rect(560, 345, 590, 375)),
		pair("PORTUGUES", image.Rect(20, 380, 400, 420), "9", image.Rect(560, 385, 590, 415)),
	}
	tpl, dups := Build(pairs, 1000, 1000, 20)

	if !reflect.DeepEqual(dups, []string{"PORTUGUES"}) {
		t.Errorf("duplicates = %v", dups)
	}
	if got := len(tpl.Grades["PORTUGUES"]); got != 2 {
		t.Errorf("PORTUGUES grades = %d, want 2", got)
	}
	if got := tpl.Subjects["PORTUGUES"].Y; math.Abs(got-0.4) > 1e-9 {
		t.Errorf("duplicate did not overwrite subject region: y = %f", got)
	}
	if got := tpl.Grades["MATEMATICA"][0].Value; got != "8" {
		t.Errorf("MATEMATICA value = %q", got)
	}
	if want := []string{"MATEMATICA", "PORTUGUES"}; !reflect.DeepEqual(tpl.SubjectNames(), want) {
		t.Errorf("SubjectNames() = %v, want %v", tpl.SubjectNames(), want)
	}

	box, ok := tpl.GradeBox("MATEMATICA", 2000, 2000)
	if !ok || box != image.Rect(1120, 690, 1180, 750) {
		t.Errorf("GradeBox() = %v, %v", box, ok)
	}
	if _, ok := tpl.GradeBox("FISICA", 2000, 2000); ok {
		t.Error("GradeBox(unknown) ok")
	}
}

func TestSaveLoad(t *testing.T) {
	tpl, _ := Build([]models.Pair{
		pair("HISTORIA", image.Rect(20, 460, 400, 500), "10", image.Rect(570, 470, 610, 490)),
	}, 1000, 1000, 20)

	path := filepath.Join(t.TempDir(), "template.json")
	if err := tpl.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"subjects"`, `"grades"`, `"reference_dimensions"`, `"value": "10"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("saved template missing %s", key)
		}
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, tpl) {
		t.Errorf("Load() = %+v, want %+v", got, tpl)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing grades", `{"subjects": {}, "reference_dimensions": {"width": 10, "height": 10}}`},
		{"fraction above one", `{"subjects": {"A": {"x": 1.5, "y": 0.1, "width": 0.1, "height": 0.1}}, "grades": {}, "reference_dimensions": {"width": 10, "height": 10}}`},
		{"grade without value", `{"subjects": {}, "grades": {"A": [{"x": 0.5, "y": 0.1, "width": 0.1, "height": 0.1}]}, "reference_dimensions": {"width": 10, "height": 10}}`},
		{"zero width page", `{"subjects": {}, "grades": {}, "reference_dimensions": {"width": 0, "height": 10}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); !errors.Is(err, ErrInvalidTemplate) {
				t.Errorf("Parse() error = %v, want ErrInvalidTemplate", err)
			}
		})
	}
}
