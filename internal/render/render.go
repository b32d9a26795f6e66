// Package render turns PDF pages into raster images.
//
// Rasterization shells out to poppler's pdftoppm, which must be installed
// (or located through POPPLER_PATH). Page counting is done in-process with
// pdfcpu.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/tiff"
)

var (
	// ErrDocumentNotFound is returned when the document path does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrRenderFailed is returned when the rasterizer could not produce images.
	ErrRenderFailed = errors.New("rasterization failed")

	// ErrInvalidRange is returned for a page range outside 1..N or reversed.
	ErrInvalidRange = errors.New("invalid page range")
)

// RenderError wraps errors with the operation and page range that failed.
type RenderError struct {
	Op      string
	Err     error
	Details string
}

func (e *RenderError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("render: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("render: %s failed: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool { return errors.Is(e.Err, target) }

// Rasterizer renders an inclusive, 1-based page range of a document.
type Rasterizer interface {
	Render(ctx context.Context, path string, first, last int) ([]image.Image, error)
}

// Format is the intermediate raster format pdftoppm writes.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	TIFF Format = "tiff"
)

func (f Format) flag() string { return "-" + string(f) }

// Pdftoppm rasterizes with poppler's pdftoppm.
type Pdftoppm struct {
	// Bin is the pdftoppm executable. Empty means "pdftoppm" from $PATH.
	Bin string
	// DPI is the render resolution.
	DPI int
	// Format is the intermediate file format. Empty means PNG.
	Format Format
}

// NewPdftoppm builds a rasterizer. popplerDir, when set, is the directory
// holding the pdftoppm binary.
func NewPdftoppm(popplerDir string, dpi int, format Format) *Pdftoppm {
	bin := "pdftoppm"
	if popplerDir != "" {
		bin = filepath.Join(popplerDir, "pdftoppm")
	}
	return &Pdftoppm{Bin: bin, DPI: dpi, Format: format}
}

// Render implements Rasterizer. Images are returned in page order.
func (p *Pdftoppm) Render(ctx context.Context, path string, first, last int) ([]image.Image, error) {
	const op = "Render"
	span := fmt.Sprintf("pages %d-%d", first, last)

	if first < 1 || last < first {
		return nil, &RenderError{Op: op, Err: ErrInvalidRange, Details: span}
	}
	if err := checkDocument(path); err != nil {
		return nil, &RenderError{Op: op, Err: err, Details: path}
	}

	scratch := filepath.Join(os.TempDir(), "gradecard-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, &RenderError{Op: op, Err: err, Details: "create scratch dir"}
	}
	defer os.RemoveAll(scratch)

	format := p.Format
	if format == "" {
		format = PNG
	}
	bin := p.Bin
	if bin == "" {
		bin = "pdftoppm"
	}

	// -f/-l select the inclusive page range, -r the resolution.
	cmd := exec.CommandContext(ctx, bin,
		format.flag(),
		"-f", strconv.Itoa(first),
		"-l", strconv.Itoa(last),
		"-r", strconv.Itoa(p.DPI),
		path,
		filepath.Join(scratch, "page"),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, &RenderError{
			Op:      op,
			Err:     fmt.Errorf("%w: %v", ErrRenderFailed, err),
			Details: fmt.Sprintf("%s: %s", span, strings.TrimSpace(string(output))),
		}
	}

	images, err := DecodeDir(scratch)
	if err != nil {
		return nil, &RenderError{Op: op, Err: err, Details: span}
	}
	if want := last - first + 1; len(images) != want {
		return nil, &RenderError{
			Op:      op,
			Err:     ErrRenderFailed,
			Details: fmt.Sprintf("%s: got %d images, want %d", span, len(images), want),
		}
	}
	return images, nil
}

var pageSuffix = regexp.MustCompile(`-(\d+)\.[A-Za-z]+$`)

// DecodeDir decodes every raster file pdftoppm left in dir, ordered by the
// page number in the file name.
func DecodeDir(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read render output: %w", err)
	}

	type page struct {
		num  int
		path string
	}
	var pages []page
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pageSuffix.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		pages = append(pages, page{num: n, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	images := make([]image.Image, 0, len(pages))
	for _, pg := range pages {
		img, err := decodeFile(pg.path)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		img, err = png.Decode(f)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(f)
	case ".tif", ".tiff":
		img, err = tiff.Decode(f)
	default:
		return nil, fmt.Errorf("%w: unsupported raster %s", ErrRenderFailed, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	const op = "PageCount"

	if err := checkDocument(path); err != nil {
		return 0, &RenderError{Op: op, Err: err, Details: path}
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, &RenderError{Op: op, Err: err, Details: path}
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, &RenderError{Op: op, Err: err, Details: "failed to get page count"}
	}
	return n, nil
}

func checkDocument(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrDocumentNotFound
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrDocumentNotFound, path)
	}
	return nil
}
