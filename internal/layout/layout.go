// Package layout describes where things sit on a page of one report-card
// family. Positions are relative to the rendered page so one descriptor serves
// every resolution.
package layout

import (
	_ "embed"
	"errors"
	"fmt"
	"image"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalidLayout is returned when a descriptor fails validation.
var ErrInvalidLayout = errors.New("invalid layout descriptor")

// Band is a labeled rectangle in relative page coordinates.
type Band struct {
	Label string  `yaml:"label"`
	X0    float64 `yaml:"x0"`
	Y0    float64 `yaml:"y0"`
	X1    float64 `yaml:"x1"`
	Y1    float64 `yaml:"y1"`
}

// Rect converts the band to pixels on a w×h page, truncating like int(w*x).
func (b Band) Rect(w, h int) image.Rectangle {
	return image.Rect(
		int(float64(w)*b.X0),
		int(float64(h)*b.Y0),
		int(float64(w)*b.X1),
		int(float64(h)*b.Y1),
	)
}

func (b Band) validate() error {
	for _, v := range []float64{b.X0, b.Y0, b.X1, b.Y1} {
		if v < 0 || v > 1 {
			return fmt.Errorf("band %q: coordinate %v outside [0,1]", b.Label, v)
		}
	}
	if b.X0 >= b.X1 || b.Y0 >= b.Y1 {
		return fmt.Errorf("band %q: empty extent", b.Label)
	}
	return nil
}

// SubjectColumn describes the subject-name column and the rows to skip in it.
type SubjectColumn struct {
	Main            Band   `yaml:"main"`
	Ignore          []Band `yaml:"ignore"`
	RuleKernelWidth int    `yaml:"rule_kernel_width"`
	RuleIterations  int    `yaml:"rule_iterations"`
}

// Metadata holds one pattern per student field. Each pattern must have exactly
// one capture group; matching is case-insensitive.
type Metadata struct {
	SchoolYear   string `yaml:"school_year"`
	StudentName  string `yaml:"student_name"`
	EnrollmentID string `yaml:"enrollment_id"`
}

// Fields returns the patterns keyed by persisted field name.
func (m Metadata) Fields() map[string]string {
	return map[string]string{
		"school_year":   m.SchoolYear,
		"student_name":  m.StudentName,
		"enrollment_id": m.EnrollmentID,
	}
}

// Descriptor is a complete page layout.
type Descriptor struct {
	Name           string        `yaml:"name"`
	SubjectColumn  SubjectColumn `yaml:"subject_column"`
	GradeColumn    Band          `yaml:"grade_column"`
	Header         Band          `yaml:"header"`
	Student        Band          `yaml:"student"`
	GradeThreshold uint8         `yaml:"grade_threshold"`
	Metadata       Metadata      `yaml:"metadata"`
}

// Default returns the embedded descriptor.
func Default() *Descriptor {
	d, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("layout: embedded default is invalid: %v", err))
	}
	return d
}

// Load reads a descriptor from a YAML file. An empty path yields Default().
func Load(path string) (*Descriptor, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes and validates a YAML descriptor.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Marshal renders the descriptor back to YAML.
func (d *Descriptor) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Validate checks bounds, kernel parameters and metadata patterns.
func (d *Descriptor) Validate() error {
	bands := []Band{d.SubjectColumn.Main, d.GradeColumn, d.Header, d.Student}
	bands = append(bands, d.SubjectColumn.Ignore...)
	for _, b := range bands {
		if err := b.validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidLayout, err)
		}
	}
	if d.SubjectColumn.RuleKernelWidth <= 0 || d.SubjectColumn.RuleIterations <= 0 {
		return fmt.Errorf("%w: rule_kernel_width and rule_iterations must be positive", ErrInvalidLayout)
	}
	for name, pattern := range d.Metadata.Fields() {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: metadata %s: %v", ErrInvalidLayout, name, err)
		}
		if re.NumSubexp() != 1 {
			return fmt.Errorf("%w: metadata %s: want exactly one capture group, got %d", ErrInvalidLayout, name, re.NumSubexp())
		}
	}
	return nil
}

// ValidRegions carves the subject column into the vertical strips left over
// after removing the ignore bands, in pixels on a w×h page. Ignore bands are
// only used for their vertical extent.
func (d *Descriptor) ValidRegions(w, h int) []image.Rectangle {
	main := d.SubjectColumn.Main.Rect(w, h)

	ignores := make([]image.Rectangle, 0, len(d.SubjectColumn.Ignore))
	for _, b := range d.SubjectColumn.Ignore {
		ignores = append(ignores, b.Rect(w, h))
	}
	sort.SliceStable(ignores, func(i, j int) bool { return ignores[i].Min.Y < ignores[j].Min.Y })

	var regions []image.Rectangle
	current := main.Min.Y
	for _, ig := range ignores {
		if ig.Min.Y > current {
			regions = append(regions, image.Rect(main.Min.X, current, main.Max.X, min(ig.Min.Y, main.Max.Y)))
		}
		current = max(current, ig.Max.Y)
		if current >= main.Max.Y {
			break
		}
	}
	if current < main.Max.Y {
		regions = append(regions, image.Rect(main.Min.X, current, main.Max.X, main.Max.Y))
	}

	// Drop strips that collapsed to nothing after clamping.
	out := regions[:0]
	for _, r := range regions {
		if !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}
