package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"gradecard/internal/ocr"
	"gradecard/internal/ocr/tesseract"
	"gradecard/internal/render"
)

// newEngine builds the configured OCR engine. The returned func releases it.
func newEngine(ctx context.Context, name string, log zerolog.Logger) (ocr.Engine, func(), error) {
	switch name {
	case "tesseract":
		return tesseract.New(), func() {}, nil
	case "vision":
		engine, err := ocr.NewGoogleVisionEngine(ctx)
		if err != nil {
			if errors.Is(err, ocr.ErrMissingCredentials) {
				return nil, nil, fmt.Errorf("Google Cloud credentials not configured. Set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS, or use OCR_ENGINE=tesseract: %w", err)
			}
			return nil, nil, fmt.Errorf("failed to create OCR engine: %w", err)
		}
		return engine, func() {
			if err := engine.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Vision client")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ocr.ErrUnknownEngine, name)
	}
}

// newRasterizer builds a pdftoppm rasterizer at dpi, or the configured
// default when dpi is zero.
func newRasterizer(dpi, fallback int) *render.Pdftoppm {
	if dpi <= 0 {
		dpi = fallback
	}
	return render.NewPdftoppm(cfg.PopplerPath, dpi, render.Format(cfg.RenderFormat))
}
