package extraction

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"gradecard/internal/imgproc"
)

// Debug hands out a sink for the intermediate images of one page.
type Debug interface {
	ForPage(page int) (DebugSink, error)
}

// DebugSink stores named intermediate images.
type DebugSink interface {
	Enabled() bool
	Save(name string, img image.Image) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) ForPage(int) (DebugSink, error) { return NopSink{}, nil }

func (NopSink) Enabled() bool { return false }

func (NopSink) Save(string, image.Image) error { return nil }

// DirSink writes PNG files under Root/page_<n>/.
type DirSink struct {
	Root string
}

// ForPage implements Debug.
func (d DirSink) ForPage(page int) (DebugSink, error) {
	dir := filepath.Join(d.Root, fmt.Sprintf("page_%d", page))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	return pageDir(dir), nil
}

type pageDir string

func (pageDir) Enabled() bool { return true }

func (d pageDir) Save(name string, img image.Image) error {
	f, err := os.Create(filepath.Join(string(d), name+".png"))
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return f.Close()
}

var markColor = color.RGBA{R: 255, A: 255}

// marked returns a copy of page with a 3px red outline around box.
func marked(page image.Image, box image.Rectangle) (image.Image, error) {
	canvas, err := imgproc.NewCanvas(page)
	if err != nil {
		return nil, err
	}
	defer canvas.Close()
	canvas.Rect(box, markColor, 3)
	return canvas.Image()
}
